package repository

import (
	"context"
	"testing"

	"github.com/scraplink/linkaudit/internal/types"
)

func TestMemoryRepositoryUpsertAndGet(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	link := &types.Link{ID: "l1", ProjectID: "p1", Kind: types.LinkKindBatch, State: types.LinkStatePending}
	if err := r.UpsertLink(ctx, link); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetLink(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "l1" {
		t.Fatalf("expected id l1, got %q", got.ID)
	}

	// mutating the returned copy must not affect repository state
	got.State = types.LinkStateOK
	reread, err := r.GetLink(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if reread.State != types.LinkStatePending {
		t.Fatalf("expected repository copy to be isolated, got state %q", reread.State)
	}
}

func TestMemoryRepositoryGetMissing(t *testing.T) {
	r := NewMemoryRepository()
	if _, err := r.GetLink(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryResetAnalysis(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	code := 200
	link := &types.Link{ID: "l1", ProjectID: "p1", Kind: types.LinkKindBatch, State: types.LinkStateOK, ResponseCode: &code}
	if err := r.UpsertLink(ctx, link); err != nil {
		t.Fatal(err)
	}

	if err := r.ResetAnalysis(ctx, "p1", types.LinkKindBatch); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetLink(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != types.LinkStatePending || got.ResponseCode != nil {
		t.Fatalf("expected reset link, got state=%q responseCode=%v", got.State, got.ResponseCode)
	}
}

func TestMemoryRepositoryListActiveSheets(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	active := &types.Sheet{ID: "s1", Status: types.SheetStatusChecked, ResultRange: []string{"A", "B", "C", "D", "E"}}
	inactive := &types.Sheet{ID: "s2", Status: types.SheetStatusInactive, ResultRange: []string{"A", "B", "C", "D", "E"}}
	if err := r.UpdateSheet(ctx, active); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateSheet(ctx, inactive); err != nil {
		t.Fatal(err)
	}

	sheets, err := r.ListActiveSheets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 1 || sheets[0].ID != "s1" {
		t.Fatalf("expected only s1 to be active, got %+v", sheets)
	}
}

func TestMemoryRepositoryUserPriority(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	r.SetUserPlan("u1", "enterprise")
	p, err := r.GetUserPriority(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p != types.PriorityEnterprise {
		t.Fatalf("expected enterprise priority, got %v", p)
	}

	p, err = r.GetUserPriority(ctx, "unknown-user")
	if err != nil {
		t.Fatal(err)
	}
	if p != types.PriorityFree {
		t.Fatalf("expected default free priority, got %v", p)
	}
}
