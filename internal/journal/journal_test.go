package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	if err := j.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return j
}

func TestRecordAndTransition(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, err := j.Record(ctx, "d1", "Deck", DirectionPush)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.SetStatus(ctx, id, StatusInProgress, nil); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := j.SetStatus(ctx, id, StatusCompleted, nil); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	ops, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	op := ops[0]
	if op.DocID != "d1" || op.Direction != DirectionPush || op.Status != StatusCompleted {
		t.Errorf("unexpected operation: %+v", op)
	}
	if op.FinishedAt == nil {
		t.Error("completed operation has no finish time")
	}
}

func TestFailedRetainedUntilRetry(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	id, err := j.Record(ctx, "d1", "Deck", DirectionPush)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.SetStatus(ctx, id, StatusFailed, context.DeadlineExceeded); err != nil {
		t.Fatal(err)
	}

	failed, err := j.Failed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Error == "" {
		t.Fatalf("expected 1 failed op with message, got %+v", failed)
	}

	// The next attempt for the same document supersedes the failed row.
	if _, err := j.Record(ctx, "d1", "Deck", DirectionPush); err != nil {
		t.Fatal(err)
	}
	failed, err = j.Failed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("failed row not superseded by retry: %+v", failed)
	}
}

func TestPruneCompletedKeepsFailed(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	done, _ := j.Record(ctx, "d1", "Deck", DirectionPull)
	j.SetStatus(ctx, done, StatusCompleted, nil)
	bad, _ := j.Record(ctx, "d2", "Other", DirectionPush)
	j.SetStatus(ctx, bad, StatusFailed, context.DeadlineExceeded)

	// Everything finished "before" a cutoff in the future.
	n, err := j.PruneCompleted(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("PruneCompleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	ops, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Status != StatusFailed {
		t.Errorf("expected only the failed row to remain, got %+v", ops)
	}
}
