// Package db tests for the transfer activity store.
package db

import (
	"context"
	"errors"
	"testing"
)

// countStates sums entries across the four lists of a record.
func countStates(rec *TransferActivity) int {
	return len(rec.Pending) + len(rec.Current) + len(rec.Success) + len(rec.Failed)
}

// TestActivityAbsentIsNil confirms a user with no plan gets nil, not an error.
func TestActivityAbsentIsNil(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	rec, err := d.GetTransferActivity(ctx, 42)
	if err != nil {
		t.Fatalf("GetTransferActivity: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

// TestActivityStatePartition walks a plan through its states and checks that
// every path stays in exactly one state with at most one current entry.
func TestActivityStatePartition(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	uid, err := d.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	plan := []PathMapping{
		{Src: "/src/a.txt", Dst: "/dst/a.txt"},
		{Src: "/src/sub/b.txt", Dst: "/dst/sub/b.txt"},
		{Src: "/src/c.txt", Dst: "/dst/c.txt"},
	}
	if err := d.ReplacePlan(ctx, uid, 7, "src", plan); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}

	rec, err := d.GetTransferActivity(ctx, uid)
	if err != nil {
		t.Fatalf("GetTransferActivity: %v", err)
	}
	if rec.SourceServerID != 7 || rec.Target != "src" {
		t.Fatalf("unexpected header: %+v", rec)
	}
	if len(rec.Pending) != 3 || countStates(rec) != 3 {
		t.Fatalf("expected 3 pending entries, got %+v", rec)
	}
	// Plan order is preserved.
	if rec.Pending[0].Src != "/src/a.txt" || rec.Pending[2].Src != "/src/c.txt" {
		t.Fatalf("plan order lost: %+v", rec.Pending)
	}

	if err := d.MovePendingToCurrent(ctx, uid, "/src/a.txt"); err != nil {
		t.Fatalf("MovePendingToCurrent: %v", err)
	}
	rec, _ = d.GetTransferActivity(ctx, uid)
	if len(rec.Current) != 1 || len(rec.Pending) != 2 || countStates(rec) != 3 {
		t.Fatalf("partition broken after move to current: %+v", rec)
	}

	if err := d.MoveCurrentToSuccess(ctx, uid, "/src/a.txt"); err != nil {
		t.Fatalf("MoveCurrentToSuccess: %v", err)
	}
	if err := d.MovePendingToCurrent(ctx, uid, "/src/sub/b.txt"); err != nil {
		t.Fatalf("MovePendingToCurrent: %v", err)
	}
	if err := d.MoveCurrentToFailed(ctx, uid, "/src/sub/b.txt"); err != nil {
		t.Fatalf("MoveCurrentToFailed: %v", err)
	}
	if err := d.MovePendingToFailed(ctx, uid, "/src/c.txt"); err != nil {
		t.Fatalf("MovePendingToFailed: %v", err)
	}

	rec, _ = d.GetTransferActivity(ctx, uid)
	if len(rec.Success) != 1 || len(rec.Failed) != 2 || len(rec.Pending) != 0 || len(rec.Current) != 0 {
		t.Fatalf("unexpected final states: %+v", rec)
	}

	// Moving an entry out of a state it is not in fails loudly.
	err = d.MovePendingToCurrent(ctx, uid, "/src/a.txt")
	if !errors.Is(err, ErrNoSuchEntry) {
		t.Fatalf("expected ErrNoSuchEntry, got %v", err)
	}
}

// TestActivityReplaceSupersedes confirms a new plan overwrites the old record.
func TestActivityReplaceSupersedes(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	uid, err := d.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := d.ReplacePlan(ctx, uid, 1, "old", []PathMapping{{Src: "/a", Dst: "/b"}}); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}
	if err := d.MovePendingToCurrent(ctx, uid, "/a"); err != nil {
		t.Fatalf("MovePendingToCurrent: %v", err)
	}
	if err := d.ReplacePlan(ctx, uid, 2, "new", []PathMapping{{Src: "/x", Dst: "/y"}}); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}

	rec, err := d.GetTransferActivity(ctx, uid)
	if err != nil {
		t.Fatalf("GetTransferActivity: %v", err)
	}
	if rec.SourceServerID != 2 || rec.Target != "new" {
		t.Fatalf("expected new header, got %+v", rec)
	}
	if countStates(rec) != 1 || len(rec.Pending) != 1 || rec.Pending[0].Src != "/x" {
		t.Fatalf("expected old rows gone, got %+v", rec)
	}
}

// TestActivitySurvivesReopen simulates a process restart mid-transfer.
func TestActivitySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/test.db"
	d, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	uid, err := d.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := d.ReplacePlan(ctx, uid, 3, "dir", []PathMapping{{Src: "/src/f", Dst: "/dst/f"}}); err != nil {
		t.Fatalf("ReplacePlan: %v", err)
	}
	if err := d.MovePendingToCurrent(ctx, uid, "/src/f"); err != nil {
		t.Fatalf("MovePendingToCurrent: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = d2.Close() })
	rec, err := d2.GetTransferActivity(ctx, uid)
	if err != nil {
		t.Fatalf("GetTransferActivity after reopen: %v", err)
	}
	if rec == nil || len(rec.Current) != 1 || rec.Current[0].Src != "/src/f" {
		t.Fatalf("expected current entry to survive reopen, got %+v", rec)
	}

	if err := d2.ClearTransferActivity(ctx, uid); err != nil {
		t.Fatalf("ClearTransferActivity: %v", err)
	}
	rec, _ = d2.GetTransferActivity(ctx, uid)
	if rec != nil {
		t.Fatalf("expected record cleared, got %+v", rec)
	}
}
