// Package analyser implements C3: given a source URL and a target
// domain, render the source page, look for a link to the target, and
// return a structured verdict (SPEC_FULL.md §4.3).
package analyser

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/types"
)

// Analyser runs the full direct-render / DOM-pass / retry / proxy-
// fallback pipeline for one (source_url, target_domain) pair.
type Analyser struct {
	renderer *DirectRenderer
	proxy    *ProxyClient
	stages   []cascadeStage
	logger   *slog.Logger
}

// New builds an Analyser, launching the headless browser the direct
// renderer drives. The rendering proxy is only wired up if cfg.Proxy
// carries credentials (SPEC_FULL.md §6 "proxy_enabled=(token present)").
func New(cfg *config.Config, logger *slog.Logger) (*Analyser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	renderer, err := NewDirectRenderer(cfg.Render, logger)
	if err != nil {
		return nil, err
	}

	var proxy *ProxyClient
	if cfg.Proxy.Enabled() {
		proxy = NewProxyClient(cfg.Proxy, logger)
	}

	return &Analyser{
		renderer: renderer,
		proxy:    proxy,
		stages:   defaultCascade(),
		logger:   logger.With("component", "analyser"),
	}, nil
}

// Close releases the headless browser.
func (a *Analyser) Close() error {
	return a.renderer.Close()
}

// Analyse runs the pipeline and returns the resulting Verdict. It
// never returns an error for ordinary fetch/block failures — those
// are encoded in the Verdict itself (problem/absent with a reason);
// Analyse's own error return is reserved for input that should have
// been rejected at enqueue time: a source URL that does not parse
// yields types.ErrInvalidURL. ResponseCode is the direct render's
// primary-document status, kept even when the proxy fallback supplies
// the HTML, and 0 when the direct render produced no response.
func (a *Analyser) Analyse(ctx context.Context, sourceURL, targetDomain string) (*types.Verdict, error) {
	start := time.Now()

	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, types.ErrInvalidURL
	}

	render, r1, navErr := a.renderer.Open(ctx, sourceURL)

	var candidates []Candidate
	if r1 != nil {
		docBase, _ := url.Parse(r1.FinalURL)
		if docBase == nil {
			docBase = base
		}
		doc, perr := goquery.NewDocumentFromReader(strings.NewReader(r1.HTML))
		if perr == nil {
			candidates = extractDOMCandidates(doc, docBase, targetDomain)
		}

		if len(candidates) == 0 {
			if retryResult, rerr := a.renderer.ReloadAndScroll(ctx, render, sourceURL); rerr == nil {
				r1 = retryResult
				if doc2, perr2 := goquery.NewDocumentFromReader(strings.NewReader(r1.HTML)); perr2 == nil {
					docBase2, _ := url.Parse(r1.FinalURL)
					if docBase2 == nil {
						docBase2 = docBase
					}
					candidates = extractDOMCandidates(doc2, docBase2, targetDomain)
				}
			} else {
				a.logger.Debug("reload-and-scroll retry failed, continuing with empty result", "url", sourceURL, "error", rerr)
			}
		}
	}
	if render != nil {
		render.Close()
	}

	class := classifyCandidates(candidates)

	httpErrorNoFallback := r1 != nil && r1.StatusCode >= 400 && r1.StatusCode != 403
	blocked403 := r1 != nil && r1.StatusCode == 403
	stillAbsent := class == types.LinkClassAbsent
	proxyTriggered := !httpErrorNoFallback && (stillAbsent || blocked403 || navErr != nil)

	finalHTML := ""
	finalStatus := 0
	finalURL := sourceURL
	finalXRobots := ""
	if r1 != nil {
		finalHTML = r1.HTML
		finalStatus = r1.StatusCode
		finalURL = r1.FinalURL
		finalXRobots = r1.XRobotsTag
	}

	usedProxy := false
	proxyFailed := false

	if proxyTriggered && a.proxy != nil {
		result, perr := a.proxy.Fetch(ctx, sourceURL)
		if perr != nil {
			proxyFailed = true
			a.logger.Warn("rendering proxy fallback failed", "url", sourceURL, "error", perr)
		} else {
			usedProxy = true
			finalHTML = result.HTML
			finalURL = result.FinalURL
			finalXRobots = ""

			cascadeBase, _ := url.Parse(result.FinalURL)
			if cascadeBase == nil {
				cascadeBase = base
			}
			candidates, _ = runCascade(result.HTML, cascadeBase, targetDomain, a.stages)
			class = classifyCandidates(candidates)
		}
	} else if proxyTriggered && a.proxy == nil {
		proxyFailed = true
	}

	var finalDoc *goquery.Document
	if finalHTML != "" {
		finalDoc, _ = goquery.NewDocumentFromReader(strings.NewReader(finalHTML))
	}

	metaRobots := ""
	canonical := ""
	if finalDoc != nil {
		metaRobots = metaRobotsContent(finalDoc)
		canonical = canonicalHref(finalDoc)
	}
	idx := computeIndexability(metaRobots, finalXRobots)

	verdict := &types.Verdict{
		LoadTimeMs:   time.Since(start).Milliseconds(),
		CheckedAt:    start,
		ResponseCode: finalStatus,
		LinkClass:    class,
		Indexable:    idx.Indexable,
	}

	switch {
	case class == types.LinkClassAbsent:
		verdict.Status = types.LinkStateProblem
		verdict.NonIndexableReason = absentReason(blocked403, proxyTriggered, usedProxy, proxyFailed)
	case !idx.Indexable:
		verdict.Status = types.LinkStateProblem
		verdict.NonIndexableReason = idx.Reason
		verdict.MatchedAnchorHTML = bestMatchedHTML(candidates, class)
	case canonicalMismatch(canonical, finalURL):
		verdict.Status = types.LinkStateOK
		verdict.NonIndexableReason = string(types.KindCanonicalised)
		verdict.CanonicalURL = canonical
		verdict.MatchedAnchorHTML = bestMatchedHTML(candidates, class)
	default:
		verdict.Status = types.LinkStateOK
		verdict.NonIndexableReason = idx.Reason
		verdict.CanonicalURL = canonical
		verdict.MatchedAnchorHTML = bestMatchedHTML(candidates, class)
	}

	return verdict, nil
}

// absentReason picks the error-taxonomy label for a problem/absent
// verdict (SPEC_FULL.md §7): an honest empty search when the page was
// fetched fine but truly carries no matching link, vs. an operational
// "inconclusive"/"blocked" label when the fallback itself couldn't
// settle the question.
func absentReason(blocked403, proxyTriggered, usedProxy, proxyFailed bool) string {
	if !proxyTriggered || usedProxy || !proxyFailed {
		return ""
	}
	if blocked403 {
		return "blocked"
	}
	return "inconclusive"
}

