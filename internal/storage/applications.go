package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const trackedColumns = `id, user_id, title, company, external_id, apply_url, description,
	status, application_status, match_score, match_reasons, source,
	created_at, updated_at, applied_at, submitted_at`

// SaveTrackedApplication inserts a tracked application and returns its id.
// A second insert with the same (user_id, external_id) returns ErrDuplicate.
func (s *Store) SaveTrackedApplication(ctx context.Context, a TrackedApplication) (int64, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.Status == "" {
		a.Status = StatusSaved
	}
	if a.ApplicationStatus == "" {
		a.ApplicationStatus = AppStatusPending
	}
	if a.MatchReasons == "" {
		a.MatchReasons = "[]"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_applications
			(user_id, title, company, external_id, apply_url, description,
			 status, application_status, match_score, match_reasons, source,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Title, a.Company, a.ExternalID, a.ApplyURL, a.Description,
		a.Status, a.ApplicationStatus, a.MatchScore, a.MatchReasons, a.Source,
		fmtTime(a.CreatedAt), fmtTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("inserting tracked application: %w", err)
	}
	return res.LastInsertId()
}

// GetTrackedApplication fetches one tracked application by id.
func (s *Store) GetTrackedApplication(ctx context.Context, id int64) (TrackedApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackedColumns+` FROM tracked_applications WHERE id = ?`, id)
	return scanTracked(row)
}

// ListTrackedApplications returns a user's applications, newest first.
func (s *Store) ListTrackedApplications(ctx context.Context, userID int64, limit int) ([]TrackedApplication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+trackedColumns+` FROM tracked_applications
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TrackedApplication
	for rows.Next() {
		a, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// UpdateMatchScore stores the gate's score and reasons for an application.
func (s *Store) UpdateMatchScore(ctx context.Context, id int64, score int, reasonsJSON string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracked_applications SET match_score = ?, match_reasons = ?, updated_at = ?
		WHERE id = ?`, score, reasonsJSON, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetApplicationStatus updates the pipeline status of an application.
func (s *Store) SetApplicationStatus(ctx context.Context, id int64, appStatus string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracked_applications SET application_status = ?, updated_at = ?
		WHERE id = ?`, appStatus, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkApplied records a successful submission: lifecycle and pipeline status
// move to applied and the applied/submitted timestamps are stamped.
func (s *Store) MarkApplied(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracked_applications
		SET status = ?, application_status = ?, applied_at = ?, submitted_at = ?, updated_at = ?
		WHERE id = ?`,
		StatusApplied, AppStatusApplied, fmtTime(at), fmtTime(at), fmtTime(at), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteTrackedApplication removes an application; queue entries and
// payloads cascade at the schema level.
func (s *Store) DeleteTrackedApplication(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracked_applications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CountAppliedToday counts applications the pipeline submitted for a user
// since midnight UTC. Used by the quota computation.
func (s *Store) CountAppliedToday(ctx context.Context, userID int64, now time.Time) (int, error) {
	midnight := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tracked_applications
		WHERE user_id = ? AND application_status = ? AND submitted_at >= ?`,
		userID, AppStatusApplied, fmtTime(midnight)).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracked(row rowScanner) (TrackedApplication, error) {
	var a TrackedApplication
	var score sql.NullInt64
	var createdAt, updatedAt string
	var appliedAt, submittedAt sql.NullString

	err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.Company, &a.ExternalID, &a.ApplyURL,
		&a.Description, &a.Status, &a.ApplicationStatus, &score, &a.MatchReasons,
		&a.Source, &createdAt, &updatedAt, &appliedAt, &submittedAt)
	if err == sql.ErrNoRows {
		return TrackedApplication{}, ErrNotFound
	}
	if err != nil {
		return TrackedApplication{}, err
	}

	if score.Valid {
		v := int(score.Int64)
		a.MatchScore = &v
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return TrackedApplication{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return TrackedApplication{}, err
	}
	if a.AppliedAt, err = parseNullTime(appliedAt); err != nil {
		return TrackedApplication{}, err
	}
	if a.SubmittedAt, err = parseNullTime(submittedAt); err != nil {
		return TrackedApplication{}, err
	}
	return a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
