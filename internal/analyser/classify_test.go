package analyser

import (
	"testing"

	"github.com/scraplink/linkaudit/internal/types"
)

func TestClassifyCandidatesEmpty(t *testing.T) {
	if got := classifyCandidates(nil); got != types.LinkClassAbsent {
		t.Fatalf("expected absent, got %v", got)
	}
}

func TestClassifyCandidatesDofollow(t *testing.T) {
	candidates := []Candidate{{URL: "https://target.com/a"}}
	if got := classifyCandidates(candidates); got != types.LinkClassDofollow {
		t.Fatalf("expected dofollow, got %v", got)
	}
}

func TestClassifyCandidatesNofollowWhenNoSiblingDofollow(t *testing.T) {
	candidates := []Candidate{{URL: "https://target.com/a", Rel: []string{"nofollow"}}}
	if got := classifyCandidates(candidates); got != types.LinkClassNofollow {
		t.Fatalf("expected nofollow, got %v", got)
	}
}

func TestClassifyCandidatesDofollowWinsOverSiblingNofollow(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://target.com/a", Rel: []string{"nofollow"}},
		{URL: "https://target.com/b"},
	}
	if got := classifyCandidates(candidates); got != types.LinkClassDofollow {
		t.Fatalf("expected dofollow, got %v", got)
	}
}

func TestClassifyCandidatesSponsoredBeatsUGC(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://target.com/a", Rel: []string{"ugc"}},
		{URL: "https://target.com/b", Rel: []string{"sponsored", "nofollow"}},
	}
	if got := classifyCandidates(candidates); got != types.LinkClassSponsored {
		t.Fatalf("expected sponsored, got %v", got)
	}
}

func TestClassifyCandidatesUGCBeatsNofollow(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://target.com/a", Rel: []string{"ugc", "nofollow"}},
	}
	if got := classifyCandidates(candidates); got != types.LinkClassUGC {
		t.Fatalf("expected ugc, got %v", got)
	}
}

func TestBestMatchedHTMLPrefersDofollowCandidate(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://target.com/a", Rel: []string{"nofollow"}, OuterHTML: "<a rel=nofollow>"},
		{URL: "https://target.com/b", OuterHTML: "<a>plain</a>"},
	}
	got := bestMatchedHTML(candidates, types.LinkClassDofollow)
	if got != "<a>plain</a>" {
		t.Fatalf("expected the dofollow candidate's html, got %q", got)
	}
}

func TestBestMatchedHTMLEmpty(t *testing.T) {
	if got := bestMatchedHTML(nil, types.LinkClassAbsent); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
