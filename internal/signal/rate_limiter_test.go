package signal

import (
	"testing"
	"time"
)

func TestAttemptLimiterCapsWindow(t *testing.T) {
	t.Parallel()
	rl := NewAttemptLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("app", "user") {
			t.Fatalf("attempt %d refused inside limit", i+1)
		}
	}
	if rl.Allow("app", "user") {
		t.Error("attempt over the limit allowed")
	}
}

func TestAttemptLimiterKeysPerTenantAndIdentity(t *testing.T) {
	t.Parallel()
	rl := NewAttemptLimiter(1, time.Minute)

	if !rl.Allow("app_a", "user") {
		t.Fatal("first attempt refused")
	}
	if !rl.Allow("app_b", "user") {
		t.Error("same identity under another tenant shares the counter")
	}
	if !rl.Allow("app_a", "other") {
		t.Error("other identity under the same tenant shares the counter")
	}
}

func TestAttemptLimiterWindowSlides(t *testing.T) {
	t.Parallel()
	rl := NewAttemptLimiter(1, 20*time.Millisecond)

	if !rl.Allow("app", "user") {
		t.Fatal("first attempt refused")
	}
	if rl.Allow("app", "user") {
		t.Fatal("second attempt allowed inside the window")
	}
	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("app", "user") {
		t.Error("attempt refused after the window expired")
	}
}
