package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

// Membership is the result of one membership lookup. Known is false when the
// lookup itself failed; Reason then says why.
type Membership struct {
	Known  bool
	Status string
	Reason error
}

func Known(status string) Membership { return Membership{Known: true, Status: status} }

func Unknown(reason error) Membership { return Membership{Reason: reason} }

// Absent reports whether the user is known to be outside the chat.
func (m Membership) Absent() bool {
	return m.Known && (m.Status == "left" || m.Status == "kicked")
}

// Lookup resolves a user's membership in a chat.
type Lookup interface {
	Membership(ctx context.Context, chatID string, userID int64) Membership
}

// Decision is the gate verdict. When denied, Join lists every channel of the
// gate set, not just the one that failed.
type Decision struct {
	Allowed bool
	Join    store.Channels
}

type Gate struct {
	lookup Lookup
	log    *zap.Logger
}

func New(lookup Lookup, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{lookup: lookup, log: logger}
}

// Check walks channels in order and denies on the first channel the user has
// left or was kicked from. Lookups that fail count as passing so a broken or
// invisible channel never locks everyone out.
func (g *Gate) Check(ctx context.Context, userID int64, channels store.Channels) Decision {
	for _, ch := range channels {
		m := g.lookup.Membership(ctx, ch.ID, userID)
		if !m.Known {
			g.log.Debug("membership unknown, letting through",
				zap.String("chat", ch.ID),
				zap.Int64("user", userID),
				zap.Error(m.Reason),
			)
			continue
		}
		if m.Absent() {
			join := make(store.Channels, len(channels))
			copy(join, channels)
			return Decision{Join: join}
		}
	}
	return Decision{Allowed: true}
}
