// Package session tracks the administrator's pending multi-step operation.
package session

import (
	"sync"

	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

// Kind is the operation an administrator has picked from the menu.
type Kind int

const (
	Idle Kind = iota
	AddGating
	AddRequired
	SetPostChannel
	Broadcasting
)

func (k Kind) String() string {
	switch k {
	case AddGating:
		return "add_gating"
	case AddRequired:
		return "add_required"
	case SetPostChannel:
		return "set_post_channel"
	case Broadcasting:
		return "broadcasting"
	}
	return "idle"
}

// AwaitsForward reports whether the next input must be a forwarded channel message.
func (k Kind) AwaitsForward() bool {
	return k == AddGating || k == AddRequired || k == SetPostChannel
}

// Tier maps a channel-adding kind to the store collection it fills.
func (k Kind) Tier() (store.Tier, bool) {
	switch k {
	case AddGating:
		return store.TierGating, true
	case AddRequired:
		return store.TierRequired, true
	}
	return "", false
}

// Sessions holds one pending Kind per administrator. Lost on restart.
type Sessions struct {
	mu      sync.Mutex
	pending map[int64]Kind
}

func New() *Sessions {
	return &Sessions{pending: map[int64]Kind{}}
}

// Begin starts kind for adminID, replacing anything pending.
func (s *Sessions) Begin(adminID int64, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == Idle {
		delete(s.pending, adminID)
		return
	}
	s.pending[adminID] = kind
}

func (s *Sessions) Current(adminID int64) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[adminID]
}

// Reset returns adminID to Idle and reports what was pending.
func (s *Sessions) Reset(adminID int64) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.pending[adminID]
	delete(s.pending, adminID)
	return k
}
