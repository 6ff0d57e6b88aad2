package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scraplink/linkaudit/internal/queue"
)

// QueueStatter is the capability the dashboard needs from C4.
type QueueStatter interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// WorkerStats is the subset of worker.Stats the dashboard reports,
// expressed as plain values so this package doesn't import worker
// (which would create an import cycle through config/notifier use).
type WorkerStats struct {
	JobsProcessed int64
	JobsOK        int64
	JobsFailed    int64
	ActiveWorkers int32
}

// StatsProvider supplies the live worker counters.
type StatsProvider interface {
	WorkerStats() WorkerStats
}

// Dashboard serves a small JSON status endpoint summarizing queue
// occupancy and worker throughput, adapted from the teacher's HTML
// dashboard into a status page this system's operators actually need.
type Dashboard struct {
	queue    QueueStatter
	provider StatsProvider
}

// NewDashboard builds a Dashboard bound to the live queue and worker pool.
func NewDashboard(q QueueStatter, provider StatsProvider) *Dashboard {
	return &Dashboard{queue: q, provider: provider}
}

// Register wires /stats onto mux.
func (d *Dashboard) Register(mux *http.ServeMux) {
	mux.HandleFunc("/stats", d.handleStats)
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if d.queue != nil {
		if qs, err := d.queue.Stats(r.Context()); err == nil {
			stats["queue"] = qs
		}
	}
	if d.provider != nil {
		stats["worker"] = d.provider.WorkerStats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(stats)
}
