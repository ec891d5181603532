package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// AppendLog writes one append-only audit record.
func (s *Store) AppendLog(ctx context.Context, l AutoApplyLogEntry) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	var jobID any
	if l.JobID != nil {
		jobID = *l.JobID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_apply_logs (id, user_id, job_id, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, jobID, l.Status, l.Message, fmtTime(l.CreatedAt))
	return err
}

// ListLogs returns a user's most recent audit records.
func (s *Store) ListLogs(ctx context.Context, userID int64, limit int) ([]AutoApplyLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, job_id, status, message, created_at
		FROM auto_apply_logs WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AutoApplyLogEntry
	for rows.Next() {
		var l AutoApplyLogEntry
		var jobID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&l.ID, &l.UserID, &jobID, &l.Status, &l.Message, &createdAt); err != nil {
			return nil, err
		}
		if jobID.Valid {
			v := jobID.Int64
			l.JobID = &v
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountLogsForJob returns the number of audit records referencing a job.
func (s *Store) CountLogsForJob(ctx context.Context, jobID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auto_apply_logs WHERE job_id = ?`, jobID).Scan(&n)
	return n, err
}
