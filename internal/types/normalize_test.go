package types

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tm
}

func TestNormaliseDomainLaw(t *testing.T) {
	got := NormaliseDomain("https://www.Foo.com/bar")
	want := NormaliseDomain("FOO.com")
	if got != want {
		t.Fatalf("normalisation law broken: %q != %q", got, want)
	}
	if got != "foo.com" {
		t.Fatalf("expected foo.com, got %q", got)
	}
}

func TestNormaliseDomainStripsPort(t *testing.T) {
	got := NormaliseDomain("www.Example.com:8080")
	if got != "example.com" {
		t.Fatalf("expected example.com, got %q", got)
	}
}

func TestHostMatchesTarget(t *testing.T) {
	cases := []struct {
		host, target string
		want         bool
	}{
		{"target.com", "target.com", true},
		{"sub.target.com", "target.com", true},
		{"www.target.com", "target.com", true},
		{"nottarget.com", "target.com", false},
		{"target.com.evil.com", "target.com", false},
	}
	for _, c := range cases {
		if got := HostMatchesTarget(c.host, c.target); got != c.want {
			t.Errorf("HostMatchesTarget(%q, %q) = %v, want %v", c.host, c.target, got, c.want)
		}
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://example.com/a"); err != nil {
		t.Fatalf("expected valid url, got %v", err)
	}
	if err := ValidateURL("ftp://example.com"); err == nil {
		t.Fatalf("expected rejection of non-http scheme")
	}
	if err := ValidateURL("not a url"); err == nil {
		t.Fatalf("expected rejection of malformed url")
	}
}

func TestDeterministicJobIDSuppressesDuplicates(t *testing.T) {
	a := DeterministicJobID(LinkKindBatch, "https://src.com/x", "proj-1", 0)
	b := DeterministicJobID(LinkKindBatch, "https://src.com/x", "proj-1", 0)
	if a != b {
		t.Fatalf("expected deterministic job id, got %q != %q", a, b)
	}
	c := DeterministicJobID(LinkKindBatch, "https://src.com/y", "proj-1", 0)
	if a == c {
		t.Fatalf("expected different job id for different source url")
	}
}

func TestDeterministicJobIDVariesByEpoch(t *testing.T) {
	a := DeterministicJobID(LinkKindSheet, "https://src.com/x", "proj-1", 0)
	b := DeterministicJobID(LinkKindSheet, "https://src.com/x", "proj-1", 1)
	if a == b {
		t.Fatalf("expected different job id across epochs, got %q for both", a)
	}
}

func TestSheetValidateResultRange(t *testing.T) {
	s := &Sheet{ResultRange: []string{"A", "B", "C"}}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for result range != 5")
	}
	s.ResultRange = []string{"A", "B", "C", "D", "E"}
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNextFireAfterMonthClamp(t *testing.T) {
	from := mustParse(t, "2026-01-31T00:00:00Z")
	next, ok := NextFireAfter(Interval1M, from)
	if !ok {
		t.Fatal("expected 1M to arm")
	}
	if next.Month() != 2 || next.Day() != 28 {
		t.Fatalf("expected clamp to Feb 28, got %v", next)
	}
}

func TestNextFireAfterManualNeverArms(t *testing.T) {
	_, ok := NextFireAfter(IntervalManual, mustParse(t, "2026-01-01T00:00:00Z"))
	if ok {
		t.Fatal("expected manual interval to never arm")
	}
}
