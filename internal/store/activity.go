package store

import (
	"database/sql"
	"time"

	"github.com/beyondchats/studydesk/internal/model"
)

// InsertActivity records a graded result for an email address. The attempt
// ordinal counts prior records for the same email, starting at 1.
func (s *Store) InsertActivity(email, result string) (*model.ActivityRecord, error) {
	now := time.Now()
	var attempt int
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRow(
		`SELECT COUNT(*) + 1 FROM activities WHERE email = ?`, email,
	).Scan(&attempt); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(
		`INSERT INTO activities (email, result, attempt, created_at) VALUES (?, ?, ?, ?)`,
		email, result, attempt, now,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.ActivityRecord{
		Email:     email,
		Result:    result,
		Attempt:   attempt,
		CreatedAt: now,
	}, nil
}

// ListActivitiesByEmail returns a user's own records, newest first.
func (s *Store) ListActivitiesByEmail(email string) ([]model.ActivityRecord, error) {
	rows, err := s.db.Query(
		`SELECT email, result, attempt, created_at FROM activities
		 WHERE email = ? ORDER BY created_at DESC, id DESC`, email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActivities(rows)
}

// ListAllActivities returns every record joined with the user's display name.
func (s *Store) ListAllActivities() ([]model.ActivityRecord, error) {
	rows, err := s.db.Query(
		`SELECT a.email, COALESCE(u.name, ''), a.result, a.attempt, a.created_at
		 FROM activities a LEFT JOIN users u ON u.email = a.email
		 ORDER BY a.created_at DESC, a.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		if err := rows.Scan(&rec.Email, &rec.Name, &rec.Result, &rec.Attempt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanActivities(rows *sql.Rows) ([]model.ActivityRecord, error) {
	var out []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		if err := rows.Scan(&rec.Email, &rec.Result, &rec.Attempt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
