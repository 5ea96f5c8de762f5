package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beyondchats/studydesk/internal/model"
)

// Threads returns a user's conversation threads, most recently updated first.
func (s *Store) Threads(userID int64) ([]model.ConversationThread, error) {
	rows, err := s.db.Query(
		`SELECT id, document_id, title, messages FROM chat_threads
		 WHERE user_id = ? ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConversationThread
	for rows.Next() {
		var t model.ConversationThread
		var raw string
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Title, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &t.Messages); err != nil {
			return nil, fmt.Errorf("decode thread %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveThread inserts or replaces a thread, messages serialized as JSON.
func (s *Store) SaveThread(userID int64, t model.ConversationThread) error {
	raw, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("encode thread %s: %w", t.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO chat_threads (id, user_id, document_id, title, messages, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title,
			messages = excluded.messages, updated_at = excluded.updated_at`,
		t.ID, userID, t.DocumentID, t.Title, string(raw), time.Now(),
	)
	return err
}

// DeleteThread removes a thread and its summary.
func (s *Store) DeleteThread(userID int64, threadID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM chat_threads WHERE id = ? AND user_id = ?`, threadID, userID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM chat_summaries WHERE thread_id = ? AND user_id = ?`, threadID, userID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Summaries returns a user's rolling summaries keyed by thread ID.
func (s *Store) Summaries(userID int64) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT thread_id, summary FROM chat_summaries WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, summary string
		if err := rows.Scan(&id, &summary); err != nil {
			return nil, err
		}
		out[id] = summary
	}
	return out, rows.Err()
}

// SaveSummary inserts or replaces the rolling summary for a thread.
func (s *Store) SaveSummary(userID int64, threadID, summary string) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_summaries (thread_id, user_id, summary) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET summary = excluded.summary`,
		threadID, userID, summary,
	)
	return err
}

// GetThread returns one thread owned by a user, or nil if absent.
func (s *Store) GetThread(userID int64, threadID string) (*model.ConversationThread, error) {
	var t model.ConversationThread
	var raw string
	err := s.db.QueryRow(
		`SELECT id, document_id, title, messages FROM chat_threads
		 WHERE id = ? AND user_id = ?`, threadID, userID,
	).Scan(&t.ID, &t.DocumentID, &t.Title, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &t.Messages); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", t.ID, err)
	}
	return &t, nil
}
