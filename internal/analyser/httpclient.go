package analyser

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
)

// newProxyHTTPClient builds the transport the rendering-proxy client uses
// for its own HTTP leg. Compression is negotiated but decoded by hand so
// brotli (which net/http can't do natively) works the same as gzip and
// deflate.
func newProxyHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     60 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{},
		DisableCompression:  true,
	}

	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   timeout,
	}
}

// decodeBody reads resp.Body applying the decompressor named by its
// Content-Encoding header, capped at maxBytes.
func decodeBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(reader, maxBytes)
	}

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	case "deflate":
		return io.ReadAll(flate.NewReader(reader))
	case "br":
		return io.ReadAll(brotli.NewReader(reader))
	default:
		return io.ReadAll(reader)
	}
}

// isRetryableTransportError reports whether a round-trip error is worth
// retrying with a different proxy strategy rather than surfacing as a
// hard failure. Context cancellation never is.
func isRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}
