// Package session owns the authoritative session record lifecycle across
// three storage tiers: an in-memory cache, a durable JSON file per session,
// and the relational sessions table. All access goes through Store; no other
// component reaches into the tiers directly.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dialog-processor/src/models"
	"dialog-processor/src/telegram"
	"dialog-processor/src/token"

	"github.com/google/uuid"
)

const (
	relationalAttempts = 3
	relationalBackoff  = 100 * time.Millisecond
)

// Relational is the third storage tier. Implemented by
// repository.SessionRepository; tests inject an in-memory fake.
type Relational interface {
	Insert(ctx context.Context, s *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now, pendingBefore time.Time) (int64, error)
}

// Store manages sessions write-through cache-first: every write lands in the
// cache before the durable tiers, so same-process readers never observe
// stale data they themselves just wrote. Reads fall back tier by tier and
// promote hits into the cache.
type Store struct {
	codec      *token.Codec
	repo       Relational
	factory    telegram.ClientFactory
	fileDir    string
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu        sync.RWMutex
	byID      map[string]*models.Session
	byToken   map[string]string
	byRefresh map[string]string
	clients   map[string]telegram.Client

	// Test seam; defaults to time.Now.
	now func() time.Time
}

// NewStore creates a session store over the three tiers.
func NewStore(codec *token.Codec, repo Relational, factory telegram.ClientFactory,
	fileDir string, accessTTL, refreshTTL time.Duration) *Store {
	return &Store{
		codec:      codec,
		repo:       repo,
		factory:    factory,
		fileDir:    fileDir,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		byID:       make(map[string]*models.Session),
		byToken:    make(map[string]string),
		byRefresh:  make(map[string]string),
		clients:    make(map[string]telegram.Client),
		now:        time.Now,
	}
}

// Create builds a new session with a fresh token pair and writes it through
// all three tiers. A relational failure is fatal: the cache and file entries
// written before it are rolled back so a failed create leaves no partial
// session.
func (s *Store) Create(ctx context.Context, ownerID string, ttl time.Duration,
	metadata map[string]string) (*models.Session, error) {
	if ttl <= 0 {
		ttl = s.accessTTL
	}

	id := uuid.New().String()
	accessToken, err := s.codec.Issue(token.Access, id, ownerID, ttl)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Issue(token.Refresh, id, ownerID, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := models.SessionPending
	if ownerID != "" {
		status = models.SessionAuthenticated
	}
	sess := &models.Session{
		ID:           id,
		Token:        accessToken,
		RefreshToken: refreshToken,
		OwnerID:      ownerID,
		Status:       status,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
		Metadata:     metadata,
	}

	s.cachePut(sess)

	if err := s.writeFile(ctx, sess); err != nil {
		s.cacheRemove(id)
		return nil, models.NewDatabaseError("session file write", err)
	}
	if err := s.relationalWithRetry(ctx, "create session", func() error {
		return s.repo.Insert(ctx, sess)
	}); err != nil {
		s.cacheRemove(id)
		s.removeFile(id)
		return nil, err
	}

	// Provider handle creation fails soft: the session stays valid for
	// authentication even when the provider is unreachable.
	s.attachClient(ctx, id, true)

	slog.Info("Created new session", "session_id", id, "status", status, "owner_id", ownerID)
	return sess.Clone(), nil
}

// Verify checks the token cryptographically, then resolves the session cache
// first, then file, then relational, promoting any tier miss into the cache.
// A session that is missing, expired or terminal yields a uniform
// SessionError and is evicted from all tiers as a side effect.
func (s *Store) Verify(ctx context.Context, raw string) (*models.Session, error) {
	claims, err := s.codec.Verify(raw, token.Access)
	if errors.Is(err, token.ErrTokenExpired) {
		s.evict(ctx, claims.SessionID)
		return nil, models.NewSessionError("invalid or expired session", err)
	}
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, raw, token.Access, claims.SessionID)
}

// Refresh verifies the refresh token specifically, issues a new access token
// and extends the session expiry through all tiers.
func (s *Store) Refresh(ctx context.Context, rawRefresh string) (*models.Session, error) {
	claims, err := s.codec.Verify(rawRefresh, token.Refresh)
	if errors.Is(err, token.ErrTokenExpired) {
		s.evict(ctx, claims.SessionID)
		return nil, models.NewSessionError("invalid or expired session", err)
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.resolve(ctx, rawRefresh, token.Refresh, claims.SessionID)
	if err != nil {
		return nil, err
	}

	newToken, err := s.codec.Issue(token.Access, sess.ID, sess.OwnerID, s.accessTTL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.applyUpdate(ctx, sess, func(u *models.Session) {
		u.Token = newToken
		u.ExpiresAt = now.Add(s.accessTTL)
		u.LastActivity = now
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Refreshed session", "session_id", updated.ID)
	return updated, nil
}

// Attach binds the provider identity to a pending session, completing the
// login flow.
func (s *Store) Attach(ctx context.Context, raw, ownerID string) (*models.Session, error) {
	sess, err := s.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionAuthenticated && sess.OwnerID == ownerID {
		return sess, nil
	}

	now := s.now()
	updated, err := s.applyUpdate(ctx, sess, func(u *models.Session) {
		u.OwnerID = ownerID
		u.Status = models.SessionAuthenticated
		u.LastActivity = now
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Session authenticated", "session_id", updated.ID, "owner_id", ownerID)
	return updated, nil
}

// Invalidate marks the session expired as of now and persists the change.
// Invalidating an unknown or already-invalid session is a no-op.
func (s *Store) Invalidate(ctx context.Context, raw string) error {
	claims, err := s.codec.Verify(raw, token.Access)
	if errors.Is(err, token.ErrTokenExpired) {
		// Already dead; evicting the leftovers keeps this a no-op.
		s.evict(ctx, claims.SessionID)
		return nil
	}
	if err != nil {
		return err
	}

	sess, _, err := s.lookup(ctx, raw, token.Access, claims.SessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.Terminal() {
		return nil
	}

	now := s.now()
	if _, err := s.applyUpdate(ctx, sess, func(u *models.Session) {
		u.Status = models.SessionExpired
		u.ExpiresAt = now
	}); err != nil {
		return err
	}

	slog.Info("Invalidated session", "session_id", sess.ID)
	return nil
}

// Client returns the provider client handle for a session, if one could be
// created or restored.
func (s *Store) Client(sessionID string) (telegram.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[sessionID]
	if !ok {
		return nil, models.ErrClientUnavailable
	}
	return client, nil
}

// resolve looks a session up across the tiers and enforces expiry and
// terminal-state rules, evicting on violation.
func (s *Store) resolve(ctx context.Context, raw string, kind token.Kind, sessionID string) (*models.Session, error) {
	sess, tier, err := s.lookup(ctx, raw, kind, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, models.NewSessionError("invalid or expired session", models.ErrSessionNotFound)
	}

	now := s.now()
	if sess.Terminal() || sess.Expired(now) {
		s.evict(ctx, sess.ID)
		return nil, models.NewSessionError("invalid or expired session", nil)
	}

	if tier != tierCache {
		// Read repair: promote the durable record into the cache and
		// lazily recreate its provider handle.
		s.reconcileOnLoad(ctx, sess)
	}

	touched, err := s.applyTouch(ctx, sess, now)
	if err != nil {
		return nil, err
	}
	return touched, nil
}

type tier int

const (
	tierNone tier = iota
	tierCache
	tierFile
	tierRelational
)

// lookup resolves a token against cache, file, then relational tier. Tier
// read errors degrade to the next tier; a relational error with no earlier
// hit surfaces as DatabaseError. A clean miss returns (nil, tierNone, nil).
func (s *Store) lookup(ctx context.Context, raw string, kind token.Kind, sessionID string) (*models.Session, tier, error) {
	if sess := s.cacheGet(raw, kind); sess != nil {
		return sess, tierCache, nil
	}

	fileSess, found, err := s.readFileSession(sessionID)
	if err != nil {
		slog.Warn("Session file tier read failed", "session_id", sessionID, "error", err)
	} else if found && fileTokenMatches(fileSess, raw, kind) {
		return fileSess, tierFile, nil
	}

	var dbSess *models.Session
	var dbErr error
	if kind == token.Refresh {
		dbSess, dbErr = s.repo.GetByRefreshToken(ctx, raw)
	} else {
		dbSess, dbErr = s.repo.GetByToken(ctx, raw)
	}
	if dbErr != nil {
		if errors.Is(dbErr, models.ErrSessionNotFound) {
			return nil, tierNone, nil
		}
		return nil, tierNone, models.NewDatabaseError("session lookup", dbErr)
	}
	return dbSess, tierRelational, nil
}

func fileTokenMatches(sess *models.Session, raw string, kind token.Kind) bool {
	if kind == token.Refresh {
		return sess.RefreshToken == raw
	}
	return sess.Token == raw
}

// applyUpdate writes a mutated copy of the session through the tiers cache
// first, rolling back the cache (and file, best effort) when a durable tier
// rejects the write.
func (s *Store) applyUpdate(ctx context.Context, sess *models.Session,
	mutate func(*models.Session)) (*models.Session, error) {
	old := sess.Clone()
	updated := sess.Clone()
	mutate(updated)

	s.cachePut(updated)

	if err := s.writeFile(ctx, updated); err != nil {
		s.cachePut(old)
		return nil, models.NewDatabaseError("session file write", err)
	}
	if err := s.relationalWithRetry(ctx, "update session", func() error {
		return s.repo.Update(ctx, updated)
	}); err != nil {
		s.cachePut(old)
		if fileErr := s.writeFile(ctx, old); fileErr != nil {
			slog.Warn("Session file rollback failed", "session_id", old.ID, "error", fileErr)
		}
		return nil, err
	}
	return updated.Clone(), nil
}

// applyTouch records activity. Unlike the other write paths, the durable
// tiers are best effort here: a verify must not fail because an activity
// timestamp could not be flushed.
func (s *Store) applyTouch(ctx context.Context, sess *models.Session, now time.Time) (*models.Session, error) {
	updated := sess.Clone()
	updated.LastActivity = now

	s.cachePut(updated)

	if err := s.writeFile(ctx, updated); err != nil {
		slog.Warn("Session activity file write failed", "session_id", sess.ID, "error", err)
	}
	if err := s.repo.Update(ctx, updated); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		slog.Warn("Session activity relational write failed", "session_id", sess.ID, "error", err)
	}
	return updated.Clone(), nil
}

// evict removes a session from every tier. Durable-tier failures are logged,
// not surfaced: the next cleanup pass repairs leftovers.
func (s *Store) evict(ctx context.Context, id string) {
	s.cacheRemove(id)
	s.removeFile(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		slog.Warn("Session relational delete failed", "session_id", id, "error", err)
	}
}

// reconcileOnLoad promotes a durable-tier record into the cache and lazily
// recreates its provider client handle. A handle that cannot be recreated
// fails soft: the session stays usable, only provider calls are unavailable.
func (s *Store) reconcileOnLoad(ctx context.Context, sess *models.Session) {
	s.cachePut(sess)
	s.attachClient(ctx, sess.ID, false)
}

func (s *Store) attachClient(ctx context.Context, sessionID string, fresh bool) {
	if s.factory == nil {
		return
	}
	s.mu.RLock()
	_, exists := s.clients[sessionID]
	s.mu.RUnlock()
	if exists {
		return
	}

	var client telegram.Client
	var err error
	if fresh {
		client, err = s.factory.New(ctx, sessionID)
	} else {
		client, err = s.factory.Restore(ctx, sessionID)
	}
	if err != nil {
		slog.Warn("Provider client unavailable for session", "session_id", sessionID, "error", err)
		return
	}

	s.mu.Lock()
	if _, exists := s.clients[sessionID]; exists {
		// Another caller attached a handle while the factory ran; keep
		// theirs and close the duplicate.
		s.mu.Unlock()
		if closeErr := client.Close(); closeErr != nil {
			slog.Warn("Provider client close failed", "session_id", sessionID, "error", closeErr)
		}
		return
	}
	s.clients[sessionID] = client
	s.mu.Unlock()
}

// relationalWithRetry retries transient relational failures with bounded
// exponential backoff before surfacing a DatabaseError.
func (s *Store) relationalWithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	backoff := relationalBackoff
	for attempt := 1; attempt <= relationalAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrSessionNotFound) {
			break
		}
		if attempt == relationalAttempts {
			break
		}
		slog.Warn("Relational write failed, retrying",
			"op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return models.NewDatabaseError(op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return models.NewDatabaseError(op, err)
}

// --- in-memory cache tier ---

func (s *Store) cacheGet(raw string, kind token.Kind) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := s.byToken
	if kind == token.Refresh {
		index = s.byRefresh
	}
	id, ok := index[raw]
	if !ok {
		return nil
	}
	sess, ok := s.byID[id]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// cachePut stores a copy of the record and reindexes its tokens, dropping
// index entries for any tokens the record no longer carries.
func (s *Store) cachePut(sess *models.Session) {
	stored := sess.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byID[stored.ID]; ok {
		delete(s.byToken, prev.Token)
		delete(s.byRefresh, prev.RefreshToken)
	}
	s.byID[stored.ID] = stored
	s.byToken[stored.Token] = stored.ID
	s.byRefresh[stored.RefreshToken] = stored.ID
}

func (s *Store) cacheRemove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byID[id]; ok {
		delete(s.byToken, prev.Token)
		delete(s.byRefresh, prev.RefreshToken)
		delete(s.byID, id)
	}
	if client, ok := s.clients[id]; ok {
		delete(s.clients, id)
		if err := client.Close(); err != nil {
			slog.Warn("Provider client close failed", "session_id", id, "error", err)
		}
	}
}

// cacheSnapshot returns copies of every cached session, for the sweeper.
func (s *Store) cacheSnapshot() []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess.Clone())
	}
	return out
}
