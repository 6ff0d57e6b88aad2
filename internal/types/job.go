package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Priority ranks a job's importance. Lower values lease first; the
// plan-derived mapping is fixed (SPEC_FULL.md §3).
type Priority int

const (
	PriorityEnterprise Priority = 1
	PriorityPro        Priority = 2
	PriorityStarter    Priority = 3
	PriorityFree       Priority = 4
)

// JobPayload is the closed tagged variant replacing the source's
// untyped JSON job blobs (SPEC_FULL.md §9): a Job is exactly one of
// BatchJob or SheetJob.
type JobPayload interface {
	isJobPayload()
}

// BatchJob is a job submitted through the ad-hoc batch ingress.
type BatchJob struct {
	LinkID string
}

func (BatchJob) isJobPayload() {}

// SheetJob is a job produced by one fire of the recurring scheduler.
type SheetJob struct {
	SheetID  string
	LinkID   string
	RowIndex int
}

func (SheetJob) isJobPayload() {}

// Job is one unit of work waiting in, or leased from, the priority
// queue.
type Job struct {
	JobID        string
	Kind         LinkKind
	UserID       string
	ProjectID    string
	Payload      JobPayload
	SourceURL    string
	TargetDomain string
	Priority     Priority
	Attempts     int
	EnqueuedAt   time.Time

	// seq is an in-process monotonic tie-breaker used only to make heap
	// ordering deterministic when priority and enqueued_at collide to
	// the millisecond; it is not the per-run sequence number the spec
	// declines to define (SPEC_FULL.md §9).
	seq uint64
}

// Seq returns the tie-break sequence the queue assigned on Enqueue.
func (j *Job) Seq() uint64 { return j.seq }

// SetSeq assigns the tie-break sequence; called once by the queue on
// Enqueue.
func (j *Job) SetSeq(seq uint64) { j.seq = seq }

// DeterministicJobID derives job_id from (kind, source_url, project_id,
// epoch). Two calls with the same epoch produce the same id, so the
// queue's own dedup-while-waiting/leased/delayed check collapses
// duplicate submissions within that epoch; a new epoch (a sheet's
// RunCount for a recurring audit, 0 for one-shot batch/CLI submissions)
// yields a fresh id that isn't blocked by a prior run's now-terminal
// job, per SPEC_FULL.md §4.4's "resetting rows, generating new ids"
// happens-before barrier (SPEC_FULL.md §3, §8).
func DeterministicJobID(kind LinkKind, sourceURL, projectID string, epoch int) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + sourceURL + "|" + projectID + "|" + strconv.Itoa(epoch)))
	return hex.EncodeToString(sum[:16])
}

// LinkIDFor derives the id a Job's resulting Link row, keeping link
// ids stable across resets within the same project+kind so upserts
// stay idempotent.
func LinkIDFor(kind LinkKind, sourceURL, targetDomain, projectID string) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + sourceURL + "|" + targetDomain + "|" + projectID))
	return hex.EncodeToString(sum[:16])
}

// PriorityForPlan maps a user's plan tier to its queue priority.
func PriorityForPlan(plan string) Priority {
	switch plan {
	case "enterprise":
		return PriorityEnterprise
	case "pro":
		return PriorityPro
	case "starter":
		return PriorityStarter
	default:
		return PriorityFree
	}
}

func (j *Job) String() string {
	return fmt.Sprintf("Job{id=%s kind=%s priority=%d attempts=%d url=%s}", j.JobID, j.Kind, j.Priority, j.Attempts, j.SourceURL)
}

// jobWire is Job's wire shape. JobPayload is an interface, so it needs
// a discriminator to round-trip through JSON — Kind already identifies
// which of the two closed variants applies.
type jobWire struct {
	JobID        string          `json:"job_id"`
	Kind         LinkKind        `json:"kind"`
	UserID       string          `json:"user_id"`
	ProjectID    string          `json:"project_id"`
	Payload      json.RawMessage `json:"payload"`
	SourceURL    string          `json:"source_url"`
	TargetDomain string          `json:"target_domain"`
	Priority     Priority        `json:"priority"`
	Attempts     int             `json:"attempts"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	Seq          uint64          `json:"seq"`
}

// MarshalJSON implements json.Marshaler.
func (j *Job) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobWire{
		JobID:        j.JobID,
		Kind:         j.Kind,
		UserID:       j.UserID,
		ProjectID:    j.ProjectID,
		Payload:      payload,
		SourceURL:    j.SourceURL,
		TargetDomain: j.TargetDomain,
		Priority:     j.Priority,
		Attempts:     j.Attempts,
		EnqueuedAt:   j.EnqueuedAt,
		Seq:          j.seq,
	})
}

// UnmarshalJSON implements json.Unmarshaler, resolving Payload back to
// its concrete BatchJob or SheetJob based on Kind.
func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	j.JobID = w.JobID
	j.Kind = w.Kind
	j.UserID = w.UserID
	j.ProjectID = w.ProjectID
	j.SourceURL = w.SourceURL
	j.TargetDomain = w.TargetDomain
	j.Priority = w.Priority
	j.Attempts = w.Attempts
	j.EnqueuedAt = w.EnqueuedAt
	j.seq = w.Seq

	switch w.Kind {
	case LinkKindSheet:
		var p SheetJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return err
		}
		j.Payload = p
	default:
		var p BatchJob
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return err
		}
		j.Payload = p
	}
	return nil
}
