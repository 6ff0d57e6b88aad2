package analyser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scraplink/linkaudit/internal/config"
	"github.com/scraplink/linkaudit/internal/types"
)

const maxProxyBodyBytes = 8 << 20 // 8MiB

// ProxyResult is what a successful rendering-proxy call returns: enough
// to re-run the DOM-free extractor cascade and finish indexability
// checks without a second round trip.
type ProxyResult struct {
	HTML       string
	StatusCode int
	FinalURL   string
	Strategy   string
}

// proxyRequest is the wire shape sent to the external rendering proxy.
type proxyRequest struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent"`
}

type proxyResponse struct {
	HTML       string `json:"html"`
	StatusCode int    `json:"status_code"`
	FinalURL   string `json:"final_url"`
}

// ProxyClient calls an external rendering proxy as the last resort in
// step 5 of the analysis pipeline, cycling through UA/header profiles
// on successive attempts and tripping a circuit breaker after repeated
// failures so a degraded proxy doesn't make every job pay its timeout
// (SPEC_FULL.md §4.3 "Proxy resilience").
type ProxyClient struct {
	endpoint string
	token    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	attempts int
	logger   *slog.Logger
}

// NewProxyClient builds a client from ProxyConfig. Callers should check
// cfg.Enabled() first; a disabled proxy has no API token configured.
func NewProxyClient(cfg config.ProxyConfig, logger *slog.Logger) *ProxyClient {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 2
	}

	settings := gobreaker.Settings{
		Name:        "rendering_proxy",
		MaxRequests: uint32(cfg.BreakerHalfOpenMax),
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerThreshold)
		},
	}

	return &ProxyClient{
		endpoint: cfg.Endpoint,
		token:    cfg.APIToken,
		client:   newProxyHTTPClient(cfg.Timeout),
		breaker:  gobreaker.NewCircuitBreaker(settings),
		attempts: attempts,
		logger:   logger.With("component", "analyser.proxy"),
	}
}

// Fetch tries up to p.attempts strategies, waiting attempt*3s between
// them, and returns the first successful render. If the breaker is
// open it fails immediately with types.ErrCircuitOpen rather than
// paying the proxy's own timeout.
func (p *ProxyClient) Fetch(ctx context.Context, sourceURL string) (*ProxyResult, error) {
	var lastErr error

	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 3 * time.Second):
			}
		}

		profile := profileForAttempt(attempt)
		result, err := p.tryOnce(ctx, sourceURL, profile)
		if err == nil {
			return result, nil
		}
		if gobreakerOpen(err) {
			return nil, types.ErrCircuitOpen
		}
		lastErr = err
		p.logger.Warn("proxy strategy failed", "url", sourceURL, "strategy", profile.Name, "error", err)
	}

	return nil, fmt.Errorf("rendering proxy exhausted %d strategies: %w", p.attempts, lastErr)
}

func (p *ProxyClient) tryOnce(ctx context.Context, sourceURL string, profile proxyProfile) (*ProxyResult, error) {
	raw, err := p.breaker.Execute(func() (any, error) {
		return p.callProxy(ctx, sourceURL, profile)
	})
	if err != nil {
		return nil, err
	}
	return raw.(*ProxyResult), nil
}

func (p *ProxyClient) callProxy(ctx context.Context, sourceURL string, profile proxyProfile) (*ProxyResult, error) {
	body, err := json.Marshal(proxyRequest{URL: sourceURL, UserAgent: profile.UserAgent})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: sourceURL, Err: err, Retryable: isRetryableTransportError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &types.FetchError{
			URL:        sourceURL,
			StatusCode: resp.StatusCode,
			Kind:       types.KindHTTPError,
			Err:        fmt.Errorf("rendering proxy returned %d", resp.StatusCode),
			Retryable:  resp.StatusCode >= 500,
		}
	}

	raw, err := decodeBody(resp, maxProxyBodyBytes)
	if err != nil {
		return nil, err
	}

	var decoded proxyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode proxy response: %w", err)
	}

	return &ProxyResult{
		HTML:       decoded.HTML,
		StatusCode: decoded.StatusCode,
		FinalURL:   decoded.FinalURL,
		Strategy:   profile.Name,
	}, nil
}

// gobreakerOpen reports whether err is gobreaker's own open-circuit
// sentinel, as opposed to a failure the call itself produced.
func gobreakerOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
