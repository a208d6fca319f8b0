package security

import (
	"testing"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.Allow("client-1") {
		t.Error("request beyond burst allowed")
	}

	// Other identifiers have their own bucket.
	if !rl.Allow("client-2") {
		t.Error("independent identifier denied")
	}
}

func TestRateLimiterEvictsLRU(t *testing.T) {
	rl := NewRateLimiterWithConfig(1, 1, 2, nil)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c") // evicts a

	rl.mu.Lock()
	_, aPresent := rl.limiters["a"]
	_, cPresent := rl.limiters["c"]
	entries := len(rl.limiters)
	rl.mu.Unlock()

	if aPresent {
		t.Error("least recently used entry was not evicted")
	}
	if !cPresent {
		t.Error("newest entry missing")
	}
	if entries != 2 {
		t.Errorf("tracked entries = %d, want 2", entries)
	}
}
