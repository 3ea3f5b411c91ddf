package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialog-processor/src/db"
	"dialog-processor/src/models"

	"github.com/google/uuid"
)

// DraftRepository stores model-suggested replies awaiting approval.
type DraftRepository struct {
	db *db.DB
}

// NewDraftRepository creates a new draft repository
func NewDraftRepository(database *db.DB) *DraftRepository {
	return &DraftRepository{
		db: database,
	}
}

// InsertDraft writes a new suggested reply. An ID is assigned when absent.
func (r *DraftRepository) InsertDraft(ctx context.Context, d *models.Draft) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO drafts
		(id, dialog_id, owner_id, message_id, model_name, suggested_reply, status, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.GetConnection().ExecContext(ctx, query,
		d.ID,
		d.DialogID,
		d.OwnerID,
		d.MessageID,
		d.ModelName,
		d.SuggestedReply,
		string(d.Status),
		d.Error,
		d.CreatedAt,
		d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}

	slog.Info("Stored suggested reply",
		"draft_id", d.ID,
		"dialog_id", d.DialogID,
		"model", d.ModelName)

	return nil
}

// ListByOwner returns the most recent drafts for an owner.
func (r *DraftRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Draft, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, dialog_id, owner_id, message_id, model_name, suggested_reply,
		       status, error, created_at, completed_at
		FROM drafts
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.GetConnection().QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*models.Draft
	for rows.Next() {
		var (
			d      models.Draft
			status string
		)
		if err := rows.Scan(
			&d.ID,
			&d.DialogID,
			&d.OwnerID,
			&d.MessageID,
			&d.ModelName,
			&d.SuggestedReply,
			&status,
			&d.Error,
			&d.CreatedAt,
			&d.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		d.Status = models.DraftStatus(status)
		drafts = append(drafts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drafts: %w", err)
	}
	return drafts, nil
}

// GetByID loads a single draft.
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	query := `
		SELECT id, dialog_id, owner_id, message_id, model_name, suggested_reply,
		       status, error, created_at, completed_at
		FROM drafts
		WHERE id = $1
	`

	var (
		d      models.Draft
		status string
	)
	err := r.db.GetConnection().QueryRowContext(ctx, query, id).Scan(
		&d.ID,
		&d.DialogID,
		&d.OwnerID,
		&d.MessageID,
		&d.ModelName,
		&d.SuggestedReply,
		&status,
		&d.Error,
		&d.CreatedAt,
		&d.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	d.Status = models.DraftStatus(status)
	return &d, nil
}

// UpdateStatus moves a draft through the approval workflow and stamps the
// decision time.
func (r *DraftRepository) UpdateStatus(ctx context.Context, id string, status models.DraftStatus) error {
	query := `UPDATE drafts SET status = $1, completed_at = $2 WHERE id = $3`

	result, err := r.db.GetConnection().ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update draft status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrDraftNotFound
	}
	return nil
}
