package analyser

import "testing"

func TestProfileForAttemptCycles(t *testing.T) {
	first := profileForAttempt(0)
	wrapped := profileForAttempt(len(proxyProfiles))
	if first.Name != wrapped.Name {
		t.Fatalf("expected profile selection to wrap around, got %s vs %s", first.Name, wrapped.Name)
	}
}

func TestProfileForAttemptDistinctOrder(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < len(proxyProfiles); i++ {
		seen[profileForAttempt(i).Name] = true
	}
	if len(seen) != len(proxyProfiles) {
		t.Fatalf("expected %d distinct profiles, got %d", len(proxyProfiles), len(seen))
	}
}
