package repository

import (
	"context"
	"sync"

	"github.com/scraplink/linkaudit/internal/types"
)

// MemoryRepository is an in-process Repository, primarily for tests
// and single-node deployments that don't need postgres.
type MemoryRepository struct {
	mu sync.RWMutex

	links  map[string]*types.Link
	sheets map[string]*types.Sheet

	// userPlans maps a user id to its plan tier ("enterprise", "pro",
	// "starter"); an absent entry resolves to the free tier default.
	userPlans map[string]string
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		links:     make(map[string]*types.Link),
		sheets:    make(map[string]*types.Sheet),
		userPlans: make(map[string]string),
	}
}

// SetUserPlan seeds a user's plan tier, used by tests and by the API
// layer's account sync.
func (r *MemoryRepository) SetUserPlan(userID, plan string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userPlans[userID] = plan
}

func cloneLink(l *types.Link) *types.Link {
	cp := *l
	return &cp
}

func cloneSheet(s *types.Sheet) *types.Sheet {
	cp := *s
	cp.ResultRange = append([]string(nil), s.ResultRange...)
	return &cp
}

// GetLink implements Repository.
func (r *MemoryRepository) GetLink(ctx context.Context, linkID string) (*types.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[linkID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLink(l), nil
}

// UpsertLink implements Repository.
func (r *MemoryRepository) UpsertLink(ctx context.Context, link *types.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[link.ID] = cloneLink(link)
	return nil
}

// ResetAnalysis implements Repository.
func (r *MemoryRepository) ResetAnalysis(ctx context.Context, projectID string, kind types.LinkKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.ProjectID == projectID && l.Kind == kind {
			l.Reset()
		}
	}
	return nil
}

// ListByProjectAndKind implements Repository.
func (r *MemoryRepository) ListByProjectAndKind(ctx context.Context, projectID string, kind types.LinkKind) ([]*types.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.Link
	for _, l := range r.links {
		if l.ProjectID == projectID && l.Kind == kind {
			out = append(out, cloneLink(l))
		}
	}
	return out, nil
}

// GetSheet implements Repository.
func (r *MemoryRepository) GetSheet(ctx context.Context, sheetID string) (*types.Sheet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sheets[sheetID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSheet(s), nil
}

// UpdateSheet implements Repository.
func (r *MemoryRepository) UpdateSheet(ctx context.Context, sheet *types.Sheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sheets[sheet.ID] = cloneSheet(sheet)
	return nil
}

// ListActiveSheets implements Repository.
func (r *MemoryRepository) ListActiveSheets(ctx context.Context) ([]*types.Sheet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.Sheet
	for _, s := range r.sheets {
		if s.Status != types.SheetStatusInactive && s.Status != types.SheetStatusError {
			out = append(out, cloneSheet(s))
		}
	}
	return out, nil
}

// GetUserPriority implements Repository.
func (r *MemoryRepository) GetUserPriority(ctx context.Context, userID string) (types.Priority, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan := r.userPlans[userID]
	return types.PriorityForPlan(plan), nil
}
