package analyser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/types"
)

// RenderResult is what the direct rendering engine produces for one
// navigation: the primary document's real response status and
// X-Robots-Tag header (not the teacher's hardcoded 200), its HTML, and
// the URL actually settled on after any redirects.
type RenderResult struct {
	FinalURL   string
	StatusCode int
	XRobotsTag string
	HTML       string
}

// DirectRenderer drives a headless browser for step 1 of the analysis
// pipeline (SPEC_FULL.md §4.3): fresh isolated context per call,
// rotating UA, redirect-hop cap, and CDP network-event capture of the
// primary document's status code — go-rod doesn't surface this
// itself, so it has to be read off proto.NetworkResponseReceived.
type DirectRenderer struct {
	browser *rod.Browser
	cfg     config.RenderConfig
	logger  *slog.Logger
	uaIndex atomic.Int64
}

// NewDirectRenderer launches a headless Chromium instance.
func NewDirectRenderer(cfg config.RenderConfig, logger *slog.Logger) (*DirectRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &DirectRenderer{
		browser: browser,
		cfg:     cfg,
		logger:  logger.With("component", "analyser.render"),
	}, nil
}

// Close shuts the browser down.
func (r *DirectRenderer) Close() error {
	if r.browser == nil {
		return nil
	}
	return r.browser.Close()
}

func (r *DirectRenderer) nextUserAgent() string {
	agents := r.cfg.UserAgents
	if len(agents) == 0 {
		return ""
	}
	idx := r.uaIndex.Add(1) % int64(len(agents))
	return agents[idx]
}

// renderSession holds a page open across step 1 and the optional step
// 4 reload-and-scroll retry, since that retry must reuse the same
// navigation context rather than open a second one.
type renderSession struct {
	page *rod.Page
}

func (s *renderSession) Close() {
	if s.page != nil {
		_ = s.page.Close()
	}
}

// Open navigates to targetURL in a fresh page and returns the first
// RenderResult, counting redirect hops via successive Document
// responses and failing past cfg.MaxRedirects.
func (r *DirectRenderer) Open(ctx context.Context, targetURL string) (*renderSession, *RenderResult, error) {
	var page *rod.Page
	var err error

	if r.cfg.StealthEnabled {
		page, err = stealth.Page(r.browser)
		if err != nil {
			r.logger.Warn("stealth page failed, falling back to a plain page", "error", err)
		}
	}
	if page == nil {
		page, err = r.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, nil, &types.FetchError{URL: targetURL, Err: err, Retryable: true}
		}
	}

	if ua := r.nextUserAgent(); ua != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
	}

	result, err := r.navigateAndCapture(ctx, page, targetURL, r.cfg.SettleTime)
	if err != nil {
		_ = page.Close()
		return nil, nil, err
	}

	return &renderSession{page: page}, result, nil
}

// ReloadAndScroll implements step 4: exactly one retry when step 2's
// DOM pass came back empty. It reloads the same session, waits the
// longer reload settle window, scrolls to the bottom, waits again,
// then re-reads the document.
func (r *DirectRenderer) ReloadAndScroll(ctx context.Context, session *renderSession, targetURL string) (*RenderResult, error) {
	result, err := r.navigateAndCapture(ctx, session.page, targetURL, r.cfg.ReloadSettle)
	if err != nil {
		return nil, err
	}

	_, _ = session.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	time.Sleep(r.cfg.ScrollWait)

	html, err := session.page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: targetURL, Err: err, Retryable: true}
	}
	result.HTML = html
	return result, nil
}

func (r *DirectRenderer) navigateAndCapture(ctx context.Context, page *rod.Page, targetURL string, settle time.Duration) (*RenderResult, error) {
	timeout := r.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timedPage := page.Timeout(timeout)

	// The primary document fires one NetworkResponseReceived event per
	// hop (the redirect responses themselves, then the final 200). The
	// listener runs for the lifetime of timedPage's context rather than
	// being awaited synchronously — EachEvent's wait() only returns once
	// a callback reports "stop", and a clean single-hop load never would.
	var mu sync.Mutex
	var statusCode int
	var xRobotsTag string
	var hops int

	stopListening := timedPage.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		mu.Lock()
		hops++
		statusCode = e.Response.Status
		xRobotsTag = headerValue(e.Response.Headers, "x-robots-tag")
		mu.Unlock()
		return false
	})
	go stopListening()

	navErr := timedPage.Navigate(targetURL)
	if navErr != nil {
		return nil, &types.FetchError{URL: targetURL, Err: navErr, Retryable: true}
	}

	if err := timedPage.WaitStable(settle); err != nil {
		r.logger.Debug("page did not settle before timeout, continuing", "url", targetURL, "error", err)
	}

	mu.Lock()
	hopsSeen, finalStatus, finalXRobots := hops, statusCode, xRobotsTag
	mu.Unlock()

	if hopsSeen > r.cfg.MaxRedirects {
		return nil, &types.FetchError{
			URL:       targetURL,
			Err:       fmt.Errorf("exceeded %d redirect hops", r.cfg.MaxRedirects),
			Retryable: false,
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: targetURL, Err: err, Retryable: true}
	}

	finalURL := targetURL
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	return &RenderResult{
		FinalURL:   finalURL,
		StatusCode: finalStatus,
		XRobotsTag: finalXRobots,
		HTML:       html,
	}, nil
}

// headerValue reads a header out of proto.NetworkHeaders case-
// insensitively. Header values arrive as gson.JSON, not plain strings,
// so String() is used rather than a type assertion.
func headerValue(headers proto.NetworkHeaders, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v.String()
		}
	}
	return ""
}
