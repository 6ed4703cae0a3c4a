package match

import (
	"context"
	"errors"
	"testing"

	"github.com/sugunalabs/callserver/internal/directory"
	"github.com/sugunalabs/callserver/internal/domain"
)

func seededStore() *directory.MemoryStore {
	store := directory.NewMemoryStore()
	store.PutPresence(domain.PresenceRecord{
		Identity: "target", CallEnabled: true, AudioEnabled: true, VideoEnabled: true, Language: "Hindi",
	})
	store.PutPresence(domain.PresenceRecord{
		Identity: "audio-off", CallEnabled: true, AudioEnabled: false, VideoEnabled: true,
	})
	store.PutPresence(domain.PresenceRecord{
		Identity: "busy", CallEnabled: true, AudioEnabled: true, VideoEnabled: true, Busy: true,
	})
	store.PutPresence(domain.PresenceRecord{
		Identity: "disabled", CallEnabled: false, AudioEnabled: true, VideoEnabled: true,
	})
	return store
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected a Rejection, got %v", err)
	}
	return rej.Reason
}

func TestDirectCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name       string
		target     domain.Identity
		callType   domain.CallType
		coins      int
		wantReason string
	}{
		{name: "accepted", target: "target", callType: domain.CallAudio, coins: 150},
		{name: "audio minimum enforced", target: "target", callType: domain.CallAudio, coins: 50, wantReason: "Insufficient Coins. Need 100."},
		{name: "video minimum enforced", target: "target", callType: domain.CallVideo, coins: 299, wantReason: "Insufficient Coins. Need 300."},
		{name: "unknown target", target: "ghost", callType: domain.CallAudio, coins: 150, wantReason: "User not registered for calls"},
		{name: "calls disabled", target: "disabled", callType: domain.CallAudio, coins: 150, wantReason: "User is not accepting calls"},
		{name: "audio disabled", target: "audio-off", callType: domain.CallAudio, coins: 150, wantReason: "Audio calls disabled"},
		{name: "busy", target: "busy", callType: domain.CallAudio, coins: 150, wantReason: "User is currently busy"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			engine := NewEngine()
			err := engine.DirectCall(ctx, seededStore(), "caller", test.target, test.callType, test.coins)
			if test.wantReason == "" {
				if err != nil {
					t.Fatalf("DirectCall: %v", err)
				}
				return
			}
			if got := rejectionReason(t, err); got != test.wantReason {
				t.Errorf("reason: got %q, want %q", got, test.wantReason)
			}
		})
	}
}

func TestDirectCallChecksBalanceBeforePresence(t *testing.T) {
	t.Parallel()
	// The coin check comes first, so even a busy target reports the
	// balance failure.
	engine := NewEngine()
	err := engine.DirectCall(context.Background(), seededStore(), "caller", "busy", domain.CallAudio, 10)
	if got := rejectionReason(t, err); got != "Insufficient Coins. Need 100." {
		t.Errorf("reason: got %q, want balance rejection", got)
	}
}

func TestRandomCallFiltersCandidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := seededStore()

	// Only "target" is eligible; run repeatedly to cover the random pick.
	engine := NewEngine()
	for i := 0; i < 20; i++ {
		picked, err := engine.RandomCall(ctx, store, "caller", domain.CallAudio, 500, "")
		if err != nil {
			t.Fatalf("RandomCall: %v", err)
		}
		if picked != "target" {
			t.Fatalf("picked ineligible candidate %q", picked)
		}
	}
}

func TestRandomCallNeverReturnsSelf(t *testing.T) {
	t.Parallel()
	store := directory.NewMemoryStore()
	store.PutPresence(domain.PresenceRecord{
		Identity: "caller", CallEnabled: true, AudioEnabled: true,
	})

	engine := NewEngine()
	_, err := engine.RandomCall(context.Background(), store, "caller", domain.CallAudio, 500, "")
	if got := rejectionReason(t, err); got != "No matching online users found." {
		t.Errorf("reason: got %q, want no-match rejection", got)
	}
}

func TestRandomCallLanguageFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := seededStore()
	engine := NewEngine()

	picked, err := engine.RandomCall(ctx, store, "caller", domain.CallAudio, 500, "hin")
	if err != nil {
		t.Fatalf("RandomCall with matching filter: %v", err)
	}
	if picked != "target" {
		t.Errorf("picked %q, want %q", picked, "target")
	}

	_, err = engine.RandomCall(ctx, store, "caller", domain.CallAudio, 500, "Tamil")
	if got := rejectionReason(t, err); got != "No matching online users found." {
		t.Errorf("reason: got %q, want no-match rejection", got)
	}
}

func TestRandomCallUsesInjectedRand(t *testing.T) {
	t.Parallel()
	store := directory.NewMemoryStore()
	store.PutPresence(domain.PresenceRecord{Identity: "a", CallEnabled: true, AudioEnabled: true})
	store.PutPresence(domain.PresenceRecord{Identity: "b", CallEnabled: true, AudioEnabled: true})
	store.PutPresence(domain.PresenceRecord{Identity: "c", CallEnabled: true, AudioEnabled: true})

	var sawN int
	engine := NewEngineWithRand(func(n int) int {
		sawN = n
		return 0
	})
	if _, err := engine.RandomCall(context.Background(), store, "caller", domain.CallAudio, 500, ""); err != nil {
		t.Fatalf("RandomCall: %v", err)
	}
	if sawN != 3 {
		t.Errorf("candidate count passed to rand: got %d, want 3", sawN)
	}
}
