package types

import "time"

// Verdict is the Link Analyser's structured output for one job
// (SPEC_FULL.md §4.3). Its fields mirror Link's verdict columns.
type Verdict struct {
	Status             LinkState
	ResponseCode       int
	Indexable          bool
	LinkClass          LinkClass
	CanonicalURL       string
	LoadTimeMs         int64
	MatchedAnchorHTML  string
	NonIndexableReason string
	CheckedAt          time.Time
}

// ApplyTo writes the verdict's fields onto a Link row, the "one
// transactional write" the worker pool performs on analyser success
// (SPEC_FULL.md §4.2).
func (v *Verdict) ApplyTo(l *Link) {
	l.State = v.Status
	code := v.ResponseCode
	l.ResponseCode = &code
	indexable := v.Indexable
	l.Indexable = &indexable
	class := v.LinkClass
	l.LinkClass = &class
	loadTime := v.LoadTimeMs
	l.LoadTimeMs = &loadTime
	checkedAt := v.CheckedAt
	l.CheckedAt = &checkedAt

	if v.CanonicalURL != "" {
		canonical := v.CanonicalURL
		l.CanonicalURL = &canonical
	}
	if v.MatchedAnchorHTML != "" {
		anchor := v.MatchedAnchorHTML
		l.MatchedAnchorHTML = &anchor
	}
	if v.NonIndexableReason != "" {
		reason := v.NonIndexableReason
		l.NonIndexableReason = &reason
	}
}

// ScheduledTask tracks the single timer owned by the recurring
// scheduler for one active sheet (SPEC_FULL.md §3).
type ScheduledTask struct {
	SheetID    string
	Interval   Interval
	NextFireAt time.Time
	LastFireAt *time.Time
	FireCount  int

	// TimerHandle is opaque to callers outside the scheduler package;
	// it is modeled here only so ScheduledTask can be snapshotted for
	// introspection without importing the scheduler package back.
	TimerHandle any `json:"-"`
}
