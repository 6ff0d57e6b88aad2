package analyser

// candidateOrigin names which carrier produced a Candidate, kept around
// for MatchedAnchorHTML annotation on non-anchor origins (SPEC_FULL.md
// §4.3 step 2: "capture outerHTML, or an annotated stub for
// script/attribute-origin matches").
type candidateOrigin string

const (
	originAnchor         candidateOrigin = "a"
	originImageMap       candidateOrigin = "area"
	originSVGLink        candidateOrigin = "svg"
	originImageInAnchor  candidateOrigin = "img-in-anchor"
	originFormAction     candidateOrigin = "form"
	originDataAttr       candidateOrigin = "data-attr"
	originInlineHandler  candidateOrigin = "inline-handler"
	originScriptLiteral  candidateOrigin = "script-literal"
	originRegexCascade   candidateOrigin = "cascade-regex"
	originTextCascade    candidateOrigin = "cascade-text"
	originMetaCascade    candidateOrigin = "cascade-meta"
	originJSONCascade    candidateOrigin = "cascade-json"
	originJSONLDCascade  candidateOrigin = "cascade-jsonld"
	originXPathCascade   candidateOrigin = "cascade-xpath"
)

// Candidate is one resolved URL found on the page that points at the
// target domain, together with enough context to classify and report
// it.
type Candidate struct {
	URL       string
	Rel       []string
	Origin    candidateOrigin
	OuterHTML string
}

func hasRelToken(rel []string, token string) bool {
	for _, r := range rel {
		if r == token {
			return true
		}
	}
	return false
}
