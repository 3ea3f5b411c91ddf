package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dialog-processor/src/db"
	"dialog-processor/src/models"
)

// SessionRepository handles all database operations for the relational
// session tier.
type SessionRepository struct {
	db *db.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(database *db.DB) *SessionRepository {
	return &SessionRepository{
		db: database,
	}
}

const sessionColumns = `id, token, refresh_token, owner_id, status, created_at, expires_at, last_activity, metadata`

// Insert writes a new session row.
func (r *SessionRepository) Insert(ctx context.Context, s *models.Session) error {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions
		(id, token, refresh_token, owner_id, status, created_at, expires_at, last_activity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.GetConnection().ExecContext(ctx, query,
		s.ID,
		s.Token,
		s.RefreshToken,
		nullableString(s.OwnerID),
		string(s.Status),
		s.CreatedAt,
		s.ExpiresAt,
		s.LastActivity,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByToken retrieves a session by its access token.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token = $1`
	return r.scanOne(r.db.GetConnection().QueryRowContext(ctx, query, token))
}

// GetByRefreshToken retrieves a session by its refresh token.
func (r *SessionRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token = $1`
	return r.scanOne(r.db.GetConnection().QueryRowContext(ctx, query, refreshToken))
}

// GetByID retrieves a session by its identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.scanOne(r.db.GetConnection().QueryRowContext(ctx, query, id))
}

// Update rewrites the mutable fields of a session row.
func (r *SessionRepository) Update(ctx context.Context, s *models.Session) error {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET token = $1, refresh_token = $2, owner_id = $3, status = $4,
		    expires_at = $5, last_activity = $6, metadata = $7
		WHERE id = $8
	`

	result, err := r.db.GetConnection().ExecContext(ctx, query,
		s.Token,
		s.RefreshToken,
		nullableString(s.OwnerID),
		string(s.Status),
		s.ExpiresAt,
		s.LastActivity,
		metadata,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session row; deleting a missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	if _, err := r.db.GetConnection().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that are past expiry, stuck in PENDING since
// before pendingBefore, or in a terminal state. Returns the number removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now, pendingBefore time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at <= $1
		   OR (status = $2 AND created_at < $3)
		   OR status IN ($4, $5)
	`

	result, err := r.db.GetConnection().ExecContext(ctx, query,
		now,
		string(models.SessionPending),
		pendingBefore,
		string(models.SessionExpired),
		string(models.SessionFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *SessionRepository) scanOne(row *sql.Row) (*models.Session, error) {
	var (
		s        models.Session
		ownerID  sql.NullString
		status   string
		metadata []byte
	)
	err := row.Scan(
		&s.ID,
		&s.Token,
		&s.RefreshToken,
		&ownerID,
		&status,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastActivity,
		&metadata,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.OwnerID = ownerID.String
	s.Status = models.SessionStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return &s, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session metadata: %w", err)
	}
	return data, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
