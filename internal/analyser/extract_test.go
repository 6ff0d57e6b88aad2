package analyser

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseBase(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	return u
}

func TestExtractDOMCandidatesAnchor(t *testing.T) {
	html := `<html><body><a href="https://target.com/page" rel="sponsored">link</a></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	candidates := extractDOMCandidates(doc, parseBase(t, "https://source.com/"), "target.com")
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].URL != "https://target.com/page" {
		t.Fatalf("unexpected url: %s", candidates[0].URL)
	}
	if !hasRelToken(candidates[0].Rel, "sponsored") {
		t.Fatalf("expected sponsored rel token, got %v", candidates[0].Rel)
	}
}

func TestExtractDOMCandidatesIgnoresOtherHosts(t *testing.T) {
	html := `<html><body><a href="https://other.com/page">link</a></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://source.com/"), "target.com")
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestExtractDOMCandidatesResolvesRelative(t *testing.T) {
	html := `<html><body><a href="/page">link</a></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://target.com/dir/"), "target.com")
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].URL != "https://target.com/page" {
		t.Fatalf("unexpected resolved url: %s", candidates[0].URL)
	}
}

func TestExtractDOMCandidatesSubdomainMatches(t *testing.T) {
	html := `<html><body><a href="https://blog.target.com/post">link</a></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://source.com/"), "target.com")
	if len(candidates) != 1 {
		t.Fatalf("expected subdomain to match, got %d candidates", len(candidates))
	}
}

func TestExtractDOMCandidatesFormAction(t *testing.T) {
	html := `<html><body><form action="https://target.com/submit"></form></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://source.com/"), "target.com")
	if len(candidates) != 1 || candidates[0].Origin != originFormAction {
		t.Fatalf("expected 1 form-action candidate, got %+v", candidates)
	}
}

func TestExtractDOMCandidatesDataAttr(t *testing.T) {
	html := `<html><body><div data-href="https://target.com/x">x</div></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://source.com/"), "target.com")
	if len(candidates) != 1 || candidates[0].Origin != originDataAttr {
		t.Fatalf("expected 1 data-attr candidate, got %+v", candidates)
	}
}

func TestExtractDOMCandidatesSkipsFragmentAndJavascript(t *testing.T) {
	html := `<html><body><a href="#top">top</a><a href="javascript:void(0)">void</a></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	candidates := extractDOMCandidates(doc, parseBase(t, "https://target.com/"), "target.com")
	if len(candidates) != 0 {
		t.Fatalf("expected fragment/javascript hrefs to be skipped, got %+v", candidates)
	}
}
