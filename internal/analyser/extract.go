package analyser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scraplink/linkaudit/internal/types"
)

// inlineHandlerURLRe finds quoted URL-shaped literals inside an inline
// event handler attribute (onclick="location.href='https://...'").
var inlineHandlerURLRe = regexp.MustCompile(`['"]((?:https?:)?//[^'"]+)['"]`)

// extractDOMCandidates enumerates every carrier named in SPEC_FULL.md
// §4.3 step 2, resolves each href against base, and keeps only the
// ones pointing at targetDomain. The carriers are visited in the
// order the spec lists them; that order only matters for stub
// annotation readability, not classification, since classification
// looks at the whole merged set.
func extractDOMCandidates(doc *goquery.Document, base *url.URL, targetDomain string) []Candidate {
	var out []Candidate

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if c, ok := resolveAnchorLike(sel, base, targetDomain, originAnchor); ok {
			out = append(out, c)
		}
	})

	doc.Find("area[href]").Each(func(_ int, sel *goquery.Selection) {
		if c, ok := resolveAnchorLike(sel, base, targetDomain, originImageMap); ok {
			out = append(out, c)
		}
	})

	doc.Find("svg a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			href, ok = sel.Attr("xlink:href")
		}
		if !ok || href == "" {
			return
		}
		if c, ok := resolveHref(href, "", sel, base, targetDomain, originSVGLink); ok {
			out = append(out, c)
		}
	})

	doc.Find("a:has(img)").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		if c, ok := resolveHref(href, relAttr(sel), sel, base, targetDomain, originImageInAnchor); ok {
			out = append(out, c)
		}
	})

	doc.Find("form[action]").Each(func(_ int, sel *goquery.Selection) {
		action, _ := sel.Attr("action")
		if action == "" {
			return
		}
		if c, ok := resolveHref(action, "", sel, base, targetDomain, originFormAction); ok {
			out = append(out, c)
		}
	})

	for _, attr := range []string{"data-href", "data-url", "data-link"} {
		doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			val, ok := sel.Attr(attr)
			if !ok || val == "" {
				return
			}
			if c, ok := resolveHref(val, relAttr(sel), sel, base, targetDomain, originDataAttr); ok {
				out = append(out, c)
			}
		})
	}

	for _, attr := range []string{"onclick", "onmousedown", "onmouseup"} {
		doc.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			js, ok := sel.Attr(attr)
			if !ok || js == "" {
				return
			}
			for _, m := range inlineHandlerURLRe.FindAllStringSubmatch(js, -1) {
				if c, ok := resolveHref(m[1], "", sel, base, targetDomain, originInlineHandler); ok {
					out = append(out, c)
				}
			}
		})
	}

	doc.Find("script:not([src])").Each(func(_ int, sel *goquery.Selection) {
		body := sel.Text()
		if body == "" {
			return
		}
		for _, m := range inlineHandlerURLRe.FindAllStringSubmatch(body, -1) {
			if c, ok := resolveHref(m[1], "", sel, base, targetDomain, originScriptLiteral); ok {
				out = append(out, c)
			}
		}
	})

	return out
}

func relAttr(sel *goquery.Selection) string {
	rel, _ := sel.Attr("rel")
	return rel
}

func resolveAnchorLike(sel *goquery.Selection, base *url.URL, targetDomain string, origin candidateOrigin) (Candidate, bool) {
	href, _ := sel.Attr("href")
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return Candidate{}, false
	}
	return resolveHref(href, relAttr(sel), sel, base, targetDomain, origin)
}

func resolveHref(href, rel string, sel *goquery.Selection, base *url.URL, targetDomain string, origin candidateOrigin) (Candidate, bool) {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return Candidate{}, false
	}
	resolved := base.ResolveReference(parsed)
	if !types.HostMatchesTarget(resolved.Host, targetDomain) {
		return Candidate{}, false
	}

	outer := stubOrOuterHTML(sel, origin)
	return Candidate{
		URL:       resolved.String(),
		Rel:       splitRelTokens(rel),
		Origin:    origin,
		OuterHTML: outer,
	}, true
}

func splitRelTokens(rel string) []string {
	if rel == "" {
		return nil
	}
	fields := strings.Fields(strings.ToLower(rel))
	return fields
}

// stubOrOuterHTML returns the element's outerHTML for element-origin
// carriers (anchor, area, svg, form, data-attr), or a short annotated
// stub for origins that don't map to a single meaningful element
// (script bodies, inline handlers) per SPEC_FULL.md §4.3 step 2.
func stubOrOuterHTML(sel *goquery.Selection, origin candidateOrigin) string {
	switch origin {
	case originInlineHandler, originScriptLiteral:
		return "<!-- matched via " + string(origin) + " -->"
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "<!-- matched via " + string(origin) + " -->"
	}
	return html
}
