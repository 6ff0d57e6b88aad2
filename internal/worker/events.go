package worker

import (
	"github.com/scraplink/linkaudit/internal/notifier"
	"github.com/scraplink/linkaudit/internal/types"
)

// The notifier's event set is closed and doubles every kind between
// the batch and sheet producers (SPEC_FULL.md §4.6); these helpers
// pick the right half based on which kind of link produced the job.

func linkUpdatedEvent(kind types.LinkKind) notifier.EventKind {
	if kind == types.LinkKindSheet {
		return notifier.EventSheetsLinkUpdated
	}
	return notifier.EventLinkUpdated
}

func analysisStartedEvent(kind types.LinkKind) notifier.EventKind {
	if kind == types.LinkKindSheet {
		return notifier.EventSheetsAnalysisStarted
	}
	return notifier.EventAnalysisStarted
}

func analysisCompletedEvent(kind types.LinkKind) notifier.EventKind {
	if kind == types.LinkKindSheet {
		return notifier.EventSheetsAnalysisCompleted
	}
	return notifier.EventAnalysisCompleted
}
