// Package notifier implements C2: a publish/subscribe sink the worker
// pool and scheduler use to report progress, keyed by project id.
package notifier

import "context"

// EventKind is the closed set of event kinds a Notifier may publish
// (SPEC_FULL.md §4.6). There is no eleventh, user-defined kind — callers
// switch over these exhaustively.
type EventKind string

const (
	EventLinkUpdated              EventKind = "link_updated"
	EventAnalysisStarted          EventKind = "analysis_started"
	EventAnalysisProgress         EventKind = "analysis_progress"
	EventAnalysisCompleted        EventKind = "analysis_completed"
	EventAnalysisError            EventKind = "analysis_error"
	EventSheetsLinkUpdated        EventKind = "sheets_link_updated"
	EventSheetsAnalysisStarted    EventKind = "sheets_analysis_started"
	EventSheetsAnalysisProgress   EventKind = "sheets_analysis_progress"
	EventSheetsAnalysisCompleted  EventKind = "sheets_analysis_completed"
	EventSheetsAnalysisError      EventKind = "sheets_analysis_error"
)

// Event is one published notification.
type Event struct {
	ProjectID string
	Kind      EventKind
	Payload   any
}

// Notifier is the capability C2 exposes. Delivery is best-effort and
// unordered across projects; per project, events published by a
// single worker arrive in publish order (SPEC_FULL.md §4.6).
type Notifier interface {
	Publish(ctx context.Context, projectID string, kind EventKind, payload any) error

	// Subscribe registers a channel-backed listener for a project's
	// events. The returned cancel func unregisters it.
	Subscribe(projectID string) (ch <-chan Event, cancel func())
}
