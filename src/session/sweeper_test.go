package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepEvictsExpiredTerminalAndStalePending(t *testing.T) {
	repo := newFakeRelational()
	dir := t.TempDir()
	store, clock := newTestStore(t, repo, dir)
	ctx := context.Background()

	expired, err := store.Create(ctx, "owner-a", 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	stale, err := store.Create(ctx, "", time.Hour, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Advance(11 * time.Minute)

	fresh, err := store.Create(ctx, "owner-b", time.Hour, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sweeper := NewSweeper(store, time.Minute, 10*time.Minute)
	evicted, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", evicted)
	}

	for _, id := range []string{expired.ID, stale.ID} {
		if _, err := os.Stat(filepath.Join(dir, id+".json")); err == nil {
			t.Fatalf("expected session file %s removed", id)
		}
	}
	if repo.count() != 1 {
		t.Fatalf("expected 1 relational row to survive, got %d", repo.count())
	}
	if _, err := store.Verify(ctx, fresh.Token); err != nil {
		t.Fatalf("fresh session should survive sweep: %v", err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := newFakeRelational()
	store, clock := newTestStore(t, repo, t.TempDir())
	ctx := context.Background()

	if _, err := store.Create(ctx, "owner-a", time.Minute, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock.Advance(2 * time.Minute)

	sweeper := NewSweeper(store, time.Minute, 10*time.Minute)
	first, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected 1 eviction on first pass, got %d", first)
	}

	second, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second != 0 {
		t.Fatalf("expected idempotent second pass, got %d evictions", second)
	}
}

func TestSweepReachesFileTierBeyondCache(t *testing.T) {
	repo := newFakeRelational()
	dir := t.TempDir()
	store, _ := newTestStore(t, repo, dir)
	ctx := context.Background()

	created, err := store.Create(ctx, "owner-a", time.Minute, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A cold-cache store only sees the session through its file.
	restarted, restartedClock := newTestStore(t, repo, dir)
	restartedClock.Advance(2 * time.Minute)

	sweeper := NewSweeper(restarted, time.Minute, 10*time.Minute)
	evicted, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction from file tier, got %d", evicted)
	}
	if _, err := os.Stat(filepath.Join(dir, created.ID+".json")); err == nil {
		t.Fatal("expected session file removed")
	}
	if repo.count() != 0 {
		t.Fatalf("expected relational row removed, got %d", repo.count())
	}
}

func TestSweeperStartStop(t *testing.T) {
	store, _ := newTestStore(t, newFakeRelational(), t.TempDir())

	sweeper := NewSweeper(store, 10*time.Millisecond, 10*time.Minute)
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}
