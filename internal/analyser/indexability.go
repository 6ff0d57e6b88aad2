package analyser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IndexabilityResult is the outcome of step 6 (SPEC_FULL.md §4.3):
// whether the page may be indexed, and why when it may not.
type IndexabilityResult struct {
	Indexable bool
	Reason    string
	Canonical string
}

// metaRobotsContent reads <meta name="robots" content="...">.
func metaRobotsContent(doc *goquery.Document) string {
	content, _ := doc.Find(`meta[name="robots"]`).Attr("content")
	return content
}

// canonicalHref reads <link rel="canonical" href="...">.
func canonicalHref(doc *goquery.Document) string {
	href, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	return href
}

// directiveBlocksIndexing reports whether a robots directive string
// (either a meta content value or an X-Robots-Tag header value)
// contains noindex or none.
func directiveBlocksIndexing(directive string) bool {
	d := strings.ToLower(directive)
	for _, tok := range strings.Split(d, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "noindex" || tok == "none" {
			return true
		}
	}
	return false
}

// computeIndexability ORs the meta-robots and X-Robots-Tag directives:
// either one carrying noindex/none makes the page non-indexable. A
// bare nofollow directive (on either source) doesn't affect
// indexability but is still recorded in Reason for visibility.
func computeIndexability(metaRobots, xRobotsTag string) IndexabilityResult {
	if directiveBlocksIndexing(metaRobots) {
		return IndexabilityResult{Indexable: false, Reason: "meta robots: " + metaRobots}
	}
	if directiveBlocksIndexing(xRobotsTag) {
		return IndexabilityResult{Indexable: false, Reason: "x-robots-tag: " + xRobotsTag}
	}

	reason := ""
	if strings.Contains(strings.ToLower(metaRobots), "nofollow") {
		reason = "meta robots: " + metaRobots
	} else if strings.Contains(strings.ToLower(xRobotsTag), "nofollow") {
		reason = "x-robots-tag: " + xRobotsTag
	}
	return IndexabilityResult{Indexable: true, Reason: reason}
}

// canonicalMismatch reports whether the page's declared canonical URL
// differs from the URL actually served, which is recorded as an ok
// verdict annotated "canonicalised" rather than treated as a problem
// (SPEC_FULL.md §4.3 step 6).
func canonicalMismatch(canonical, finalURL string) bool {
	return canonical != "" && finalURL != "" && canonical != finalURL
}
