package store

import (
	"testing"
	"time"

	"github.com/beyondchats/studydesk/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Email:        email,
		Name:         "Test " + email,
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
	})
	if err != nil {
		t.Fatalf("createTestUser: %v", err)
	}
	u, err := s.GetUserByID(id)
	if err != nil || u == nil {
		t.Fatalf("createTestUser lookup: %v", err)
	}
	return u
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	u := createTestUser(t, s, "alice@example.com")
	if u.ID == 0 {
		t.Fatal("expected non-zero user ID")
	}

	got, err := s.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.Email != "alice@example.com" {
		t.Fatalf("GetUserByEmail returned %+v", got)
	}

	byID, err := s.GetUserByID(u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID == nil || byID.Email != u.Email {
		t.Fatalf("GetUserByID returned %+v", byID)
	}

	missing, err := s.GetUserByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown email, got %+v", missing)
	}

	if _, err := s.CreateUser(model.User{
		Email: "alice@example.com", Name: "Dup", PasswordHash: "hash", Role: model.UserRoleStudent,
	}); err == nil {
		t.Fatal("expected error on duplicate email")
	}
}

func TestAuthSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	u := createTestUser(t, s, "bob@example.com")

	token, err := s.CreateAuthSession(u.ID)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64-char hex token, got %d chars", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != u.ID {
		t.Fatalf("GetAuthSession returned %+v", sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != authSessionTTL {
		t.Fatalf("expected TTL %v, got %v", authSessionTTL, got)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if sess != nil {
		t.Fatal("expected nil session after delete")
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	u := createTestUser(t, s, "carol@example.com")

	token, err := s.CreateAuthSession(u.ID)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}

	// Force the session into the past.
	if _, err := s.db.Exec(
		`UPDATE auth_sessions SET expires_at = ? WHERE id = ?`,
		time.Now().Add(-time.Minute), token,
	); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestActivityAttemptOrdinals(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "dave@example.com")

	for i, want := range []int{1, 2, 3} {
		rec, err := s.InsertActivity("dave@example.com", "20/30")
		if err != nil {
			t.Fatalf("InsertActivity %d: %v", i, err)
		}
		if rec.Attempt != want {
			t.Fatalf("attempt %d: expected ordinal %d, got %d", i, want, rec.Attempt)
		}
	}

	// A different email starts its own count.
	rec, err := s.InsertActivity("eve@example.com", "10/30")
	if err != nil {
		t.Fatalf("InsertActivity other email: %v", err)
	}
	if rec.Attempt != 1 {
		t.Fatalf("expected attempt 1 for new email, got %d", rec.Attempt)
	}

	mine, err := s.ListActivitiesByEmail("dave@example.com")
	if err != nil {
		t.Fatalf("ListActivitiesByEmail: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 records, got %d", len(mine))
	}

	all, err := s.ListAllActivities()
	if err != nil {
		t.Fatalf("ListAllActivities: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}
	for _, rec := range all {
		if rec.Email == "dave@example.com" && rec.Name != "Test dave@example.com" {
			t.Fatalf("expected joined user name, got %q", rec.Name)
		}
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	u := createTestUser(t, s, "frank@example.com")

	doc, err := s.CreateDocument(u.ID, "notes.pdf", "/tmp/abc123.pdf")
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID == 0 {
		t.Fatal("expected non-zero document ID")
	}

	got, err := s.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got == nil || got.Name != "notes.pdf" || got.StoredPath != "/tmp/abc123.pdf" {
		t.Fatalf("GetDocument returned %+v", got)
	}

	missing, err := s.GetDocument(999)
	if err != nil {
		t.Fatalf("GetDocument missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown document, got %+v", missing)
	}

	list, err := s.ListDocumentsByUser(u.ID)
	if err != nil {
		t.Fatalf("ListDocumentsByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 document, got %d", len(list))
	}
}

func TestThreadPersistence(t *testing.T) {
	s := newTestStore(t)
	u := createTestUser(t, s, "grace@example.com")

	thread := model.ConversationThread{
		ID:         "t-1",
		DocumentID: 42,
		Title:      "New Chat",
		Messages: []model.ChatMessage{
			{ID: "m-1", Role: model.RoleSystem, Text: "Ask anything about your PDF. I will help!"},
			{ID: "m-2", Role: model.RoleUser, Text: "what is chapter one about"},
		},
	}
	if err := s.SaveThread(u.ID, thread); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}

	got, err := s.GetThread(u.ID, "t-1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got == nil {
		t.Fatal("expected thread back")
	}
	if got.Title != thread.Title || got.DocumentID != thread.DocumentID {
		t.Fatalf("GetThread returned %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Text != thread.Messages[1].Text {
		t.Fatalf("messages did not round-trip: %+v", got.Messages)
	}

	// Upsert replaces title and messages.
	thread.Title = "what is chapter one about…"
	thread.Messages = append(thread.Messages, model.ChatMessage{
		ID: "m-3", Role: model.RoleAssistant, Text: "Chapter one introduces the topic.",
	})
	if err := s.SaveThread(u.ID, thread); err != nil {
		t.Fatalf("SaveThread update: %v", err)
	}
	got, err = s.GetThread(u.ID, "t-1")
	if err != nil {
		t.Fatalf("GetThread after update: %v", err)
	}
	if got.Title != thread.Title || len(got.Messages) != 3 {
		t.Fatalf("update did not persist: %+v", got)
	}

	if err := s.SaveSummary(u.ID, "t-1", "U:what is chapter one about A:Chapter one introduces the topic."); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	sums, err := s.Summaries(u.ID)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(sums) != 1 || sums["t-1"] == "" {
		t.Fatalf("Summaries returned %+v", sums)
	}

	if err := s.DeleteThread(u.ID, "t-1"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	got, err = s.GetThread(u.ID, "t-1")
	if err != nil {
		t.Fatalf("GetThread after delete: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil thread after delete")
	}
	sums, err = s.Summaries(u.ID)
	if err != nil {
		t.Fatalf("Summaries after delete: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("expected summary removed, got %+v", sums)
	}

	// Another user cannot see the thread.
	other := createTestUser(t, s, "heidi@example.com")
	if err := s.SaveThread(u.ID, thread); err != nil {
		t.Fatalf("SaveThread: %v", err)
	}
	foreign, err := s.GetThread(other.ID, "t-1")
	if err != nil {
		t.Fatalf("GetThread foreign: %v", err)
	}
	if foreign != nil {
		t.Fatal("expected nil for thread owned by another user")
	}
}
