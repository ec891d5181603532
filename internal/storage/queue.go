package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned when a state transition is attempted on a row that
// is not in the expected state (e.g. claiming a non-pending entry).
var ErrConflict = errors.New("conflicting state")

const queueColumns = `id, user_id, job_id, priority, status, attempts, error,
	created_at, updated_at, processed_at`

// EnqueueEntries atomically admits as many of jobIDs as the user's daily
// quota allows, in input order. The quota computation
// (dailyLimit - appliedToday - currentlyQueued) and the inserts run in one
// transaction so concurrent enqueues cannot over-admit. Job ids that already
// have an active queue entry are skipped without consuming a slot.
// Returns the accepted ids and the slots remaining after admission.
func (s *Store) EnqueueEntries(ctx context.Context, userID int64, jobIDs []int64, priority, dailyLimit int) ([]int64, int, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	var appliedToday int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tracked_applications
		WHERE user_id = ? AND application_status = ? AND submitted_at >= ?`,
		userID, AppStatusApplied, fmtTime(midnight)).Scan(&appliedToday); err != nil {
		return nil, 0, fmt.Errorf("counting applications submitted today: %w", err)
	}

	var queued int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE user_id = ? AND status IN (?, ?)`,
		userID, QueuePending, QueueProcessing).Scan(&queued); err != nil {
		return nil, 0, fmt.Errorf("counting queued entries: %w", err)
	}

	remaining := dailyLimit - appliedToday - queued
	if remaining < 0 {
		remaining = 0
	}

	var accepted []int64
	for _, jobID := range jobIDs {
		if len(accepted) >= remaining {
			break
		}

		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM queue_entries
			WHERE job_id = ? AND status IN (?, ?)`,
			jobID, QueuePending, QueueProcessing).Scan(&active); err != nil {
			return nil, 0, fmt.Errorf("checking active entry for job %d: %w", jobID, err)
		}
		if active > 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (id, user_id, job_id, priority, status, attempts, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
			uuid.New().String(), userID, jobID, priority, QueuePending, fmtTime(now), fmtTime(now)); err != nil {
			return nil, 0, fmt.Errorf("inserting queue entry for job %d: %w", jobID, err)
		}
		accepted = append(accepted, jobID)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("committing enqueue: %w", err)
	}
	return accepted, remaining - len(accepted), nil
}

// PendingBatch returns up to limit pending entries ordered by priority
// descending, then creation time ascending (FIFO within a priority tier).
func (s *Store) PendingBatch(ctx context.Context, limit int) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM queue_entries
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC, rowid ASC
		LIMIT ?`, QueuePending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClaimQueueEntry transitions an entry pending→processing. Returns
// ErrConflict if the entry exists but is not pending (already claimed or
// terminal), ErrNotFound if it does not exist. The rows-affected guard makes
// concurrent claims of the same entry safe.
func (s *Store) ClaimQueueEntry(ctx context.Context, id string) error {
	now := fmtTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_entries SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		QueueProcessing, now, id, QueuePending)
	if err != nil {
		return fmt.Errorf("claiming queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// ResolveQueueEntry transitions a processing entry to a terminal status and
// stamps processed_at. Attempts are incremented when the outcome is failed.
// Resolving an entry that is already terminal is a no-op success so that
// at-least-once callback delivery stays idempotent. Resolving a pending
// entry returns ErrConflict.
func (s *Store) ResolveQueueEntry(ctx context.Context, id, status, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning resolve transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM queue_entries WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	switch current {
	case QueueCompleted, QueueFailed, QueueSkipped:
		return nil
	case QueueProcessing:
	default:
		return ErrConflict
	}

	now := fmtTime(time.Now())
	attemptBump := 0
	if status == QueueFailed {
		attemptBump = 1
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = ?, error = ?, attempts = attempts + ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		status, errMsg, attemptBump, now, now, id); err != nil {
		return fmt.Errorf("resolving queue entry: %w", err)
	}

	return tx.Commit()
}

// GetQueueEntry fetches one queue entry by id.
func (s *Store) GetQueueEntry(ctx context.Context, id string) (QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id)
	return scanQueueEntry(row)
}

// DeleteQueueEntry removes an entry; its payload cascades.
func (s *Store) DeleteQueueEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// QueueCounts returns per-status entry counts for a user.
func (s *Store) QueueCounts(ctx context.Context, userID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM queue_entries WHERE user_id = ? GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ReclaimStaleProcessing fails every processing entry whose last update is
// older than cutoff, and moves each backing application to failed so the
// stuck submission becomes resubmittable. Entry and application move in one
// transaction; returns the reclaimed entries.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, errMsg string) ([]QueueEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM queue_entries
		WHERE status = ? AND updated_at < ?`,
		QueueProcessing, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("finding stale entries: %w", err)
	}
	var entries []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := fmtTime(time.Now())
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = ?, error = ?, attempts = attempts + 1, processed_at = ?, updated_at = ?
			WHERE id = ?`,
			QueueFailed, errMsg, now, now, e.ID); err != nil {
			return nil, fmt.Errorf("reclaiming entry %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tracked_applications SET application_status = ?, updated_at = ?
			WHERE id = ?`,
			AppStatusFailed, now, e.JobID); err != nil {
			return nil, fmt.Errorf("failing application %d: %w", e.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanQueueEntry(row rowScanner) (QueueEntry, error) {
	var e QueueEntry
	var createdAt, updatedAt string
	var processedAt sql.NullString

	err := row.Scan(&e.ID, &e.UserID, &e.JobID, &e.Priority, &e.Status, &e.Attempts,
		&e.Error, &createdAt, &updatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return QueueEntry{}, ErrNotFound
	}
	if err != nil {
		return QueueEntry{}, err
	}

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return QueueEntry{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return QueueEntry{}, err
	}
	if e.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return QueueEntry{}, err
	}
	return e, nil
}
