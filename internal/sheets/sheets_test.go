package sheets

import (
	"testing"
	"time"

	"github.com/scraplink/linkaudit/internal/types"
)

func TestVerdictRowOK(t *testing.T) {
	code := 200
	indexable := true
	class := types.LinkClassDofollow
	checkedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	link := &types.Link{
		State:        types.LinkStateOK,
		ResponseCode: &code,
		Indexable:    &indexable,
		LinkClass:    &class,
		CheckedAt:    &checkedAt,
	}

	row := verdictRow(link)
	if row[0] != "ok" {
		t.Fatalf("expected status ok, got %v", row[0])
	}
	if row[1] != "200" {
		t.Fatalf("expected response code 200, got %v", row[1])
	}
	if row[2] != "Yes" {
		t.Fatalf("expected indexable Yes, got %v", row[2])
	}
	found, ok := row[4].(string)
	if !ok || found != "True (2026-01-02T03:04:05Z)" {
		t.Fatalf("unexpected link-found cell: %v", row[4])
	}
}

func TestVerdictRowAbsent(t *testing.T) {
	class := types.LinkClassAbsent
	reason := "inconclusive"
	link := &types.Link{
		State:              types.LinkStateProblem,
		LinkClass:          &class,
		NonIndexableReason: &reason,
	}

	row := verdictRow(link)
	if row[0] != "problem" {
		t.Fatalf("expected status problem, got %v", row[0])
	}
	if row[3] != "inconclusive" {
		t.Fatalf("expected reason inconclusive, got %v", row[3])
	}
	found, ok := row[4].(string)
	if !ok || found != "False ()" {
		t.Fatalf("unexpected link-found cell: %v", row[4])
	}
}

func TestColorForLinkRules(t *testing.T) {
	canonicalised := string(types.KindCanonicalised)
	ok := &types.Link{State: types.LinkStateOK}
	okCanon := &types.Link{State: types.LinkStateOK, NonIndexableReason: &canonicalised}
	problem := &types.Link{State: types.LinkStateProblem}

	if colorForLink(ok) != colorGreen {
		t.Fatal("expected green for plain ok")
	}
	if colorForLink(okCanon) != colorYellow {
		t.Fatal("expected yellow for ok+canonicalised")
	}
	if colorForLink(problem) != colorRed {
		t.Fatal("expected red for problem")
	}
}
