package analyser

import "testing"

func TestRunCascadeRegexStage(t *testing.T) {
	html := `<p>see <a href="https://target.com/a" rel="nofollow">this</a></p>`
	candidates, stage := runCascade(html, parseBase(t, "https://source.com/"), "target.com", defaultCascade())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if stage != string(originRegexCascade) {
		t.Fatalf("expected regex stage to win, got %s", stage)
	}
	if !hasRelToken(candidates[0].Rel, "nofollow") {
		t.Fatalf("expected nofollow rel to be captured, got %v", candidates[0].Rel)
	}
}

func TestRunCascadeFallsThroughToTextStage(t *testing.T) {
	html := `plain text mentioning https://target.com/path with no markup`
	candidates, stage := runCascade(html, parseBase(t, "https://source.com/"), "target.com", defaultCascade())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if stage != string(originTextCascade) {
		t.Fatalf("expected text stage, got %s", stage)
	}
}

func TestRunCascadeJSONLD(t *testing.T) {
	html := `<script type="application/ld+json">{"@type":"Organization","url":"https://target.com/about"}</script>`
	candidates, stage := runCascade(html, parseBase(t, "https://source.com/"), "target.com", defaultCascade())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate from json-ld, got %d", len(candidates))
	}
	if stage != string(originJSONLDCascade) {
		t.Fatalf("expected jsonld stage, got %s", stage)
	}
}

func TestRunCascadeXPathStageCatchesUnquotedAttr(t *testing.T) {
	// Unquoted attribute values aren't matched by hrefAttrRe's quoted
	// capture group, so this should fall through every regex stage and
	// resolve only via the DOM-tree xpath sweep.
	html := `<a href=https://target.com/a>text</a>`
	candidates, stage := runCascade(html, parseBase(t, "https://source.com/"), "target.com", defaultCascade())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if stage != string(originXPathCascade) {
		t.Fatalf("expected xpath stage, got %s", stage)
	}
}

func TestRunCascadeNoMatch(t *testing.T) {
	html := `<html><body>nothing relevant here</body></html>`
	candidates, stage := runCascade(html, parseBase(t, "https://source.com/"), "target.com", defaultCascade())
	if len(candidates) != 0 || stage != "" {
		t.Fatalf("expected no candidates, got %d (%s)", len(candidates), stage)
	}
}
