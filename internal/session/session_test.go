package session

import (
	"testing"

	"github.com/Armin-kho/deal-gate-bot/internal/store"
)

func TestSessions_Transitions(t *testing.T) {
	t.Parallel()
	s := New()
	const admin = 7

	if got := s.Current(admin); got != Idle {
		t.Fatalf("initial = %v, want idle", got)
	}
	s.Begin(admin, AddGating)
	if got := s.Current(admin); got != AddGating {
		t.Fatalf("after Begin = %v", got)
	}
	// A new menu pick replaces the pending one.
	s.Begin(admin, Broadcasting)
	if got := s.Current(admin); got != Broadcasting {
		t.Fatalf("after second Begin = %v", got)
	}
	if got := s.Reset(admin); got != Broadcasting {
		t.Errorf("Reset returned %v", got)
	}
	if got := s.Current(admin); got != Idle {
		t.Errorf("after Reset = %v", got)
	}
	if got := s.Current(8); got != Idle {
		t.Errorf("other identity = %v", got)
	}
}

func TestKind_Helpers(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{AddGating, AddRequired, SetPostChannel} {
		if !k.AwaitsForward() {
			t.Errorf("%v should await a forward", k)
		}
	}
	if Broadcasting.AwaitsForward() || Idle.AwaitsForward() {
		t.Error("broadcasting/idle await a forward")
	}
	if tier, ok := AddRequired.Tier(); !ok || tier != store.TierRequired {
		t.Errorf("AddRequired tier = %v %v", tier, ok)
	}
	if tier, ok := AddGating.Tier(); !ok || tier != store.TierGating {
		t.Errorf("AddGating tier = %v %v", tier, ok)
	}
	if _, ok := SetPostChannel.Tier(); ok {
		t.Error("SetPostChannel has a tier")
	}
}
