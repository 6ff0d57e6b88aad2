package analyser

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"testing"
)

func TestDecodeBodyPlain(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(bytes.NewBufferString("hello"))}
	got, err := decodeBody(resp, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestDecodeBodyGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("compressed"))
	gz.Close()

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip"}},
		Body:   io.NopCloser(&buf),
	}
	got, err := decodeBody(resp, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "compressed" {
		t.Fatalf("unexpected decompressed body: %q", got)
	}
}

func TestIsRetryableTransportErrorContextCanceled(t *testing.T) {
	if isRetryableTransportError(context.Canceled) {
		t.Fatalf("context.Canceled must not be retryable")
	}
}

func TestIsRetryableTransportErrorNil(t *testing.T) {
	if isRetryableTransportError(nil) {
		t.Fatalf("nil error must not be retryable")
	}
}
