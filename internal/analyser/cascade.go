package analyser

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/scraplink/linkaudit/internal/types"
)

// cascadeStage is one attempt in the DOM-free extractor cascade
// (SPEC_FULL.md §4.3 step 5): given raw HTML returned by the rendering
// proxy, try to find candidates one way. Stages run in order and the
// cascade stops at the first stage that finds anything, mirroring the
// chain-of-responsibility shape used elsewhere in this codebase for
// ordered attempts over the same input.
type cascadeStage interface {
	Name() string
	Extract(html string, base *url.URL, targetDomain string) []Candidate
}

// runCascade tries each stage in turn and returns the first non-empty
// result, annotated with which stage produced it.
func runCascade(html string, base *url.URL, targetDomain string, stages []cascadeStage) ([]Candidate, string) {
	for _, stage := range stages {
		if candidates := stage.Extract(html, base, targetDomain); len(candidates) > 0 {
			return candidates, stage.Name()
		}
	}
	return nil, ""
}

// defaultCascade is the fixed stage order the spec names: regex
// anchors, then bare text-content URLs, then meta tags, then
// data-href/data-url/data-link attribute values (other data-*
// attributes are not read and attribute values are not decoded as
// JSON), then script/JSON-LD bodies, then a DOM-tree
// XPath sweep as the final fallback for markup the regex stages
// mis-tokenize (unquoted attributes, attribute values split across
// lines).
func defaultCascade() []cascadeStage {
	return []cascadeStage{
		regexAnchorStage{},
		textURLStage{},
		metaTagStage{},
		dataAttrJSONStage{},
		scriptJSONLDStage{},
		xpathAnchorStage{},
	}
}

var hrefAttrRe = regexp.MustCompile(`(?i)<a\b[^>]*\bhref\s*=\s*["']([^"']+)["'](?:[^>]*?\brel\s*=\s*["']([^"']*)["'])?[^>]*>`)

type regexAnchorStage struct{}

func (regexAnchorStage) Name() string { return string(originRegexCascade) }

func (regexAnchorStage) Extract(html string, base *url.URL, targetDomain string) []Candidate {
	var out []Candidate
	for _, m := range hrefAttrRe.FindAllStringSubmatch(html, -1) {
		href, rel := m[1], ""
		if len(m) > 2 {
			rel = m[2]
		}
		if c, ok := resolveCascadeURL(href, rel, base, targetDomain, originRegexCascade); ok {
			out = append(out, c)
		}
	}
	return out
}

var bareURLRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

type textURLStage struct{}

func (textURLStage) Name() string { return string(originTextCascade) }

func (textURLStage) Extract(html string, base *url.URL, targetDomain string) []Candidate {
	text := stripTags(html)
	var out []Candidate
	for _, raw := range bareURLRe.FindAllString(text, -1) {
		if c, ok := resolveCascadeURL(raw, "", base, targetDomain, originTextCascade); ok {
			out = append(out, c)
		}
	}
	return out
}

var metaURLTagRe = regexp.MustCompile(`(?i)<meta\b[^>]*\bcontent\s*=\s*["']([^"']+)["'][^>]*>`)

type metaTagStage struct{}

func (metaTagStage) Name() string { return string(originMetaCascade) }

func (metaTagStage) Extract(html string, base *url.URL, targetDomain string) []Candidate {
	var out []Candidate
	for _, m := range metaURLTagRe.FindAllStringSubmatch(html, -1) {
		if !strings.Contains(m[1], "://") {
			continue
		}
		if c, ok := resolveCascadeURL(m[1], "", base, targetDomain, originMetaCascade); ok {
			out = append(out, c)
		}
	}
	return out
}

var dataAttrValueRe = regexp.MustCompile(`(?i)\bdata-(?:href|url|link)\s*=\s*["']([^"']+)["']`)

type dataAttrJSONStage struct{}

func (dataAttrJSONStage) Name() string { return string(originJSONCascade) }

func (dataAttrJSONStage) Extract(html string, base *url.URL, targetDomain string) []Candidate {
	var out []Candidate
	for _, m := range dataAttrValueRe.FindAllStringSubmatch(html, -1) {
		if c, ok := resolveCascadeURL(m[1], "", base, targetDomain, originJSONCascade); ok {
			out = append(out, c)
		}
	}
	return out
}

var scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>(.*?)</script>`)

type scriptJSONLDStage struct{}

func (scriptJSONLDStage) Name() string { return string(originJSONLDCascade) }

func (scriptJSONLDStage) Extract(html string, base *url.URL, targetDomain string) []Candidate {
	var out []Candidate
	for _, block := range scriptBlockRe.FindAllStringSubmatch(html, -1) {
		body := block[1]

		var asJSON any
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &asJSON); err == nil {
			for _, u := range collectStringURLs(asJSON) {
				if c, ok := resolveCascadeURL(u, "", base, targetDomain, originJSONLDCascade); ok {
					out = append(out, c)
				}
			}
			continue
		}

		for _, raw := range bareURLRe.FindAllString(body, -1) {
			if c, ok := resolveCascadeURL(raw, "", base, targetDomain, originJSONLDCascade); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// xpathURLAttrQuery matches any element carrying a href, src, or
// data-href/url/link attribute, independent of tag name — broader than
// the DOM extractor's anchor/area/img-in-anchor/form/data-attr walk,
// since this stage only runs once every regex-based stage has already
// missed.
const xpathURLAttrQuery = "//*[@href or @src or @data-href or @data-url or @data-link]"

type xpathAnchorStage struct{}

func (xpathAnchorStage) Name() string { return string(originXPathCascade) }

func (xpathAnchorStage) Extract(rawHTML string, base *url.URL, targetDomain string) []Candidate {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, xpathURLAttrQuery)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, node := range nodes {
		for _, attr := range []string{"href", "src", "data-href", "data-url", "data-link"} {
			val := htmlquery.SelectAttr(node, attr)
			if val == "" {
				continue
			}
			if c, ok := resolveCascadeURL(val, htmlquery.SelectAttr(node, "rel"), base, targetDomain, originXPathCascade); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// collectStringURLs walks an arbitrary decoded-JSON value collecting
// every string that looks like a URL, covering JSON-LD's nested
// "url"/"@id" fields without needing a schema.
func collectStringURLs(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
			out = append(out, t)
		}
	case []any:
		for _, e := range t {
			out = append(out, collectStringURLs(e)...)
		}
	case map[string]any:
		for _, e := range t {
			out = append(out, collectStringURLs(e)...)
		}
	}
	return out
}

var (
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(?:script|style)>`)
)

// stripTags reduces html to its visible text, dropping script/style
// bodies entirely so the text-URL stage (which runs before the
// script/JSON-LD stage) doesn't pick up URLs embedded in markup or
// JSON payloads that belong to a later, more specific stage.
func stripTags(html string) string {
	html = scriptStyleRe.ReplaceAllString(html, " ")
	return tagRe.ReplaceAllString(html, " ")
}

func resolveCascadeURL(raw, rel string, base *url.URL, targetDomain string, origin candidateOrigin) (Candidate, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Candidate{}, false
	}
	resolved := base.ResolveReference(parsed)
	if !types.HostMatchesTarget(resolved.Host, targetDomain) {
		return Candidate{}, false
	}
	return Candidate{
		URL:       resolved.String(),
		Rel:       splitRelTokens(rel),
		Origin:    origin,
		OuterHTML: "<!-- matched via " + string(origin) + " -->",
	}, true
}
