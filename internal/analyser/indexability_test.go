package analyser

import "testing"

func TestComputeIndexabilityNoDirectives(t *testing.T) {
	r := computeIndexability("", "")
	if !r.Indexable || r.Reason != "" {
		t.Fatalf("expected indexable with no reason, got %+v", r)
	}
}

func TestComputeIndexabilityMetaNoindex(t *testing.T) {
	r := computeIndexability("noindex, nofollow", "")
	if r.Indexable {
		t.Fatalf("expected non-indexable")
	}
	if r.Reason == "" {
		t.Fatalf("expected a reason echoing the directive")
	}
}

func TestComputeIndexabilityXRobotsNone(t *testing.T) {
	r := computeIndexability("", "none")
	if r.Indexable {
		t.Fatalf("expected non-indexable for x-robots-tag none")
	}
}

func TestComputeIndexabilityNofollowAloneStillIndexable(t *testing.T) {
	r := computeIndexability("nofollow", "")
	if !r.Indexable {
		t.Fatalf("bare nofollow directive must not affect indexability")
	}
	if r.Reason == "" {
		t.Fatalf("expected the nofollow directive to still be recorded")
	}
}

func TestCanonicalMismatch(t *testing.T) {
	if !canonicalMismatch("https://example.com/a", "https://example.com/a?utm=1") {
		t.Fatalf("expected mismatch")
	}
	if canonicalMismatch("https://example.com/a", "https://example.com/a") {
		t.Fatalf("expected no mismatch when equal")
	}
	if canonicalMismatch("", "https://example.com/a") {
		t.Fatalf("expected no mismatch when canonical is absent")
	}
}
