package store

import (
	"database/sql"
	"time"

	"github.com/beyondchats/studydesk/internal/model"
)

// CreateDocument records an uploaded PDF and returns its ID.
func (s *Store) CreateDocument(userID int64, name, storedPath string) (*model.Document, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO documents (user_id, name, stored_path, uploaded_at) VALUES (?, ?, ?, ?)`,
		userID, name, storedPath, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Document{
		ID:         id,
		UserID:     userID,
		Name:       name,
		StoredPath: storedPath,
		UploadedAt: now,
	}, nil
}

// GetDocument returns a document by ID, or nil if it does not exist.
func (s *Store) GetDocument(id int64) (*model.Document, error) {
	var doc model.Document
	err := s.db.QueryRow(
		`SELECT id, user_id, name, stored_path, uploaded_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.StoredPath, &doc.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocumentsByUser returns a user's uploads, newest first.
func (s *Store) ListDocumentsByUser(userID int64) ([]model.Document, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, name, stored_path, uploaded_at FROM documents
		 WHERE user_id = ? ORDER BY uploaded_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.StoredPath, &doc.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
