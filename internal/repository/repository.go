// Package repository implements C1: durable storage for link rows and
// sheet configuration, behind a single capability interface so the
// worker pool, scheduler, and API ingress never depend on a storage
// engine directly.
package repository

import (
	"context"
	"errors"

	"github.com/scraplink/linkaudit/internal/types"
)

// ErrNotFound is returned by any lookup that finds nothing.
var ErrNotFound = errors.New("repository: not found")

// Repository is the capability every component needs from C1.
type Repository interface {
	// GetLink fetches a single link row by id.
	GetLink(ctx context.Context, linkID string) (*types.Link, error)

	// UpsertLink inserts a link row, or overwrites it in place if a row
	// with the same id already exists — the idempotent re-enqueue path
	// relies on this being a true upsert, not insert-or-fail.
	UpsertLink(ctx context.Context, link *types.Link) error

	// ResetAnalysis clears every verdict field and returns the rows to
	// LinkStatePending for a project+kind pair, ahead of a re-run
	// (SPEC_FULL.md §4.6, the sheet adapter's delete-prior-results step).
	ResetAnalysis(ctx context.Context, projectID string, kind types.LinkKind) error

	// ListByProjectAndKind returns every link row for a project+kind pair.
	ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Link, error)

	// GetSheet fetches one sheet's configuration and run state.
	GetSheet(ctx context.Context, sheetID string) (*types.Sheet, error)

	// UpdateSheet persists a sheet's configuration or run state.
	UpdateSheet(ctx context.Context, sheet *types.Sheet) error

	// ListActiveSheets returns every sheet whose status is not inactive
	// or error, for the scheduler to arm timers against at startup.
	ListActiveSheets(ctx context.Context) ([]*types.Sheet, error)

	// GetUserPriority resolves a user's plan-derived queue priority.
	GetUserPriority(ctx context.Context, userID string) (types.Priority, error)
}
