package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scraplink/linkaudit/internal/queue"
	"github.com/scraplink/linkaudit/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, queue.Queue, repository.Repository) {
	t.Helper()
	q := queue.NewMemoryQueue(queue.MemoryQueueConfig{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond})
	repo := repository.NewMemoryRepository()
	return New(q, repo, nil), q, repo
}

func TestHandleBatchEnqueuesValidPairs(t *testing.T) {
	s, q, _ := newTestServer(t)

	body := map[string]any{
		"projectId": "proj1",
		"userId":    "user1",
		"links": []map[string]string{
			{"sourceUrl": "https://example.com/post", "targetDomain": "target.com"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var result batchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Enqueued != 1 {
		t.Fatalf("expected 1 enqueued, got %d", result.Enqueued)
	}

	stats, err := q.Stats(req.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 1 {
		t.Fatalf("expected 1 waiting job, got %d", stats.Waiting)
	}
}

func TestHandleBatchRejectsMissingFields(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := map[string]any{"projectId": "proj1"}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleBatchRejectsInvalidURLAtBind(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := map[string]any{
		"projectId": "proj1",
		"userId":    "user1",
		"links": []map[string]string{
			{"sourceUrl": "not-a-url", "targetDomain": "target.com"},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.Engine().ServeHTTP(rec, req)

	// The gin "url" binding tag already rejects this at bind time.
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
