package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SavePayload persists the materialized payload for a queue entry,
// superseding any payload stored for a previous attempt.
func (s *Store) SavePayload(ctx context.Context, p ApplicationPayload) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning payload transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM application_payloads WHERE queue_id = ?`, p.QueueID); err != nil {
		return "", fmt.Errorf("removing superseded payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO application_payloads (id, queue_id, fields_json, resume_meta, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.QueueID, p.FieldsJSON, p.ResumeMeta, fmtTime(p.CreatedAt)); err != nil {
		return "", fmt.Errorf("inserting payload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return p.ID, nil
}

// GetPayloadByQueueID returns the payload stored for a queue entry.
func (s *Store) GetPayloadByQueueID(ctx context.Context, queueID string) (ApplicationPayload, error) {
	var p ApplicationPayload
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, queue_id, fields_json, resume_meta, created_at
		FROM application_payloads WHERE queue_id = ?`, queueID).
		Scan(&p.ID, &p.QueueID, &p.FieldsJSON, &p.ResumeMeta, &createdAt)
	if err == sql.ErrNoRows {
		return ApplicationPayload{}, ErrNotFound
	}
	if err != nil {
		return ApplicationPayload{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return ApplicationPayload{}, err
	}
	return p, nil
}
