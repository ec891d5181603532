package storage

import (
	"context"
	"database/sql"
	"time"
)

// --- User profile key/value ---

// SetProfileKey upserts a single profile key for a user.
func (s *Store) SetProfileKey(ctx context.Context, userID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profile (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, key, value, fmtTime(time.Now()))
	return err
}

// GetProfileKey reads one profile key for a user.
func (s *Store) GetProfileKey(ctx context.Context, userID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM user_profile WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// GetAllProfileKeys returns every profile key for a user.
func (s *Store) GetAllProfileKeys(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM user_profile WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// --- Resumes ---

// SaveResume stores a resume. When marked default it demotes any previous
// default for the user.
func (s *Store) SaveResume(ctx context.Context, r Resume) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE resumes SET is_default = 0 WHERE user_id = ?`, r.UserID); err != nil {
			return err
		}
	}
	isDefault := 0
	if r.IsDefault {
		isDefault = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resumes (id, user_id, filename, content_type, content, text, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Filename, r.ContentType, r.Content, r.Text, isDefault, fmtTime(r.CreatedAt)); err != nil {
		return err
	}
	return tx.Commit()
}

// DefaultResume returns the user's default resume, falling back to the most
// recent upload when no default is marked. ErrNotFound when none exist.
func (s *Store) DefaultResume(ctx context.Context, userID int64) (Resume, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, content_type, content, text, is_default, created_at
		FROM resumes WHERE user_id = ?
		ORDER BY is_default DESC, created_at DESC LIMIT 1`, userID)
	return scanResume(row)
}

// ListResumes returns all resumes for a user, default first.
func (s *Store) ListResumes(ctx context.Context, userID int64) ([]Resume, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, filename, content_type, content, text, is_default, created_at
		FROM resumes WHERE user_id = ?
		ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resumes []Resume
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		resumes = append(resumes, r)
	}
	return resumes, rows.Err()
}

func scanResume(row rowScanner) (Resume, error) {
	var r Resume
	var isDefault int
	var createdAt string
	err := row.Scan(&r.ID, &r.UserID, &r.Filename, &r.ContentType, &r.Content, &r.Text, &isDefault, &createdAt)
	if err == sql.ErrNoRows {
		return Resume{}, ErrNotFound
	}
	if err != nil {
		return Resume{}, err
	}
	r.IsDefault = isDefault != 0
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Resume{}, err
	}
	return r, nil
}

// --- Match cache ---

// GetCachedMatch returns a cached match result for (session, user, job).
func (s *Store) GetCachedMatch(ctx context.Context, sessionID string, userID, jobID int64) (int, string, error) {
	var score int
	var reasons string
	err := s.db.QueryRowContext(ctx, `
		SELECT score, reasons FROM match_cache
		WHERE session_id = ? AND user_id = ? AND job_id = ?`,
		sessionID, userID, jobID).Scan(&score, &reasons)
	if err == sql.ErrNoRows {
		return 0, "", ErrNotFound
	}
	return score, reasons, err
}

// PutCachedMatch stores a match result for the lifetime of a search session.
func (s *Store) PutCachedMatch(ctx context.Context, sessionID string, userID, jobID int64, score int, reasonsJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_cache (session_id, user_id, job_id, score, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, user_id, job_id) DO UPDATE SET score = excluded.score, reasons = excluded.reasons`,
		sessionID, userID, jobID, score, reasonsJSON, fmtTime(time.Now()))
	return err
}

// ClearMatchSession drops all cached results for a finished search session.
func (s *Store) ClearMatchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM match_cache WHERE session_id = ?`, sessionID)
	return err
}
