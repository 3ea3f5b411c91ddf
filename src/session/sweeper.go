package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialog-processor/src/fsstore"
	"dialog-processor/src/models"
)

// Sweeper periodically evicts expired, terminal and stale pending sessions
// from every storage tier. Each pass is idempotent: running it twice in a row
// removes nothing the second time.
type Sweeper struct {
	store         *Store
	interval      time.Duration
	pendingMaxAge time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store *Store, interval, pendingMaxAge time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:         store,
		interval:      interval,
		pendingMaxAge: pendingMaxAge,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the background sweep loop.
func (sw *Sweeper) Start() {
	sw.wg.Add(1)
	go sw.run()
	slog.Info("Session sweeper started",
		"interval", sw.interval, "pending_max_age", sw.pendingMaxAge)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (sw *Sweeper) Stop() {
	sw.cancel()
	sw.wg.Wait()
	slog.Info("Session sweeper stopped")
}

func (sw *Sweeper) run() {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.ctx.Done():
			return
		case <-ticker.C:
			evicted, err := sw.Sweep(sw.ctx)
			if err != nil {
				slog.Error("Session sweep failed", "error", err)
			} else if evicted > 0 {
				slog.Info("Session sweep completed", "evicted", evicted)
			}
		}
	}
}

// Sweep runs one cleanup pass over the cache, the file tier and the
// relational tier, returning how many sessions were evicted. Per-session
// failures are logged and do not abort the pass; only a relational-tier
// failure is returned.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := sw.store.now()
	pendingBefore := now.Add(-sw.pendingMaxAge)
	evicted := 0

	seen := make(map[string]struct{})
	for _, sess := range sw.store.cacheSnapshot() {
		seen[sess.ID] = struct{}{}
		if sweepable(sess, now, pendingBefore) {
			sw.store.evict(ctx, sess.ID)
			evicted++
		}
	}

	ids, err := sw.store.listFileSessionIDs()
	if err != nil {
		slog.Warn("Session file tier listing failed", "error", err)
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		sess, found, err := sw.store.readFileSession(id)
		if err != nil {
			if errors.Is(err, fsstore.ErrDecodeFailed) {
				// Unreadable records can never be verified again.
				sw.store.removeFile(id)
				evicted++
			} else {
				slog.Warn("Session file read failed during sweep", "session_id", id, "error", err)
			}
			continue
		}
		if found && sweepable(sess, now, pendingBefore) {
			sw.store.evict(ctx, sess.ID)
			evicted++
		}
	}

	deleted, err := sw.store.repo.DeleteExpired(ctx, now, pendingBefore)
	if err != nil {
		return evicted, models.NewDatabaseError("session sweep", err)
	}
	evicted += int(deleted)

	return evicted, nil
}

func sweepable(sess *models.Session, now, pendingBefore time.Time) bool {
	return sess.Terminal() || sess.Expired(now) || sess.StalePending(pendingBefore)
}
