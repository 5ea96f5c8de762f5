package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/beyondchats/studydesk/internal/model"
	"github.com/beyondchats/studydesk/internal/store"
)

const questionJSON = `{
  "mcqs": [{"question": "What is the main topic?", "options": ["a", "b", "c", "d"], "answerIndex": 1}],
  "short": [{"question": "Summarize the introduction."}],
  "long": [{"question": "Discuss the central argument."}]
}`

const gradeJSON = `{
  "mcq": {"scores": [1], "total": 1},
  "short": {"scores": [4], "total": 4, "feedback": ["Good."]},
  "long": {"scores": [10], "total": 10, "feedback": ["Solid."]},
  "overall": {"total": 15, "max": 30, "improvements": [], "strengths": [], "weaknesses": [], "recommendations": []}
}`

type scriptedGateway struct {
	replies []string
	calls   int
}

func (g *scriptedGateway) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if g.calls >= len(g.replies) {
		return "", fmt.Errorf("unexpected completion call %d", g.calls)
	}
	reply := g.replies[g.calls]
	g.calls++
	return reply, nil
}

func fakeExtractor(path string) (*model.ExtractedDocument, error) {
	return &model.ExtractedDocument{
		Pages:    []model.PageText{{PageNumber: 1, Text: "Chapter one introduces the topic."}},
		FullText: "[Page 1]\nChapter one introduces the topic.",
	}, nil
}

func newTestServer(t *testing.T, gw *scriptedGateway) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, gw, fakeExtractor, model.Config{
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 10 << 20,
	})
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	fields := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("decode body %q: %v", data, err)
		}
	}
	return resp, fields
}

func registerUser(t *testing.T, srv *httptest.Server, email, role string) string {
	t.Helper()
	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "", map[string]string{
		"name": "Test", "email": email, "password": "secret123", "role": role,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil || token == "" {
		t.Fatalf("register %s: no token in response", email)
	}
	return token
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedGateway{})

	token := registerUser(t, srv, "alice@example.com", "")
	if token == "" {
		t.Fatal("expected token")
	}

	// Duplicate email is rejected.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "other",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: status %d", resp.StatusCode)
	}

	// Wrong password.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d", resp.StatusCode)
	}

	// Good login returns user payload.
	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var user model.User
	if err := json.Unmarshal(fields["user"], &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Email != "alice@example.com" || user.Role != model.UserRoleStudent {
		t.Fatalf("unexpected user payload: %+v", user)
	}

	// Protected routes demand a token.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/activity", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedGateway{})
	token := registerUser(t, srv, "bob@example.com", "")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/activity", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token after logout: status %d", resp.StatusCode)
	}
}

func TestActivityAccess(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedGateway{})
	alice := registerUser(t, srv, "alice@example.com", "")
	admin := registerUser(t, srv, "root@example.com", "admin")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/activity", alice, map[string]string{
		"result": "20/30",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record activity: status %d", resp.StatusCode)
	}

	resp, fields := doJSON(t, http.MethodGet, srv.URL+"/api/activity", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list activity: status %d", resp.StatusCode)
	}
	var records []model.ActivityRecord
	if err := json.Unmarshal(fields["activities"], &records); err != nil {
		t.Fatalf("decode activities: %v", err)
	}
	if len(records) != 1 || records[0].Attempt != 1 || records[0].Result != "20/30" {
		t.Fatalf("unexpected records: %+v", records)
	}

	// A student cannot read someone else's history.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/activity?email=root@example.com", alice, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign email: status %d", resp.StatusCode)
	}

	// The admin dashboard is role gated.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/apiAdmin/admin/activities", alice, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin route as student: status %d", resp.StatusCode)
	}
	resp, fields = doJSON(t, http.MethodGet, srv.URL+"/apiAdmin/admin/activities", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin route as admin: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(fields["activities"], &records); err != nil {
		t.Fatalf("decode admin activities: %v", err)
	}
	if len(records) != 1 || records[0].Name != "Test" {
		t.Fatalf("expected joined name on admin listing: %+v", records)
	}
}

func uploadPDF(t *testing.T, srv *httptest.Server, token, filename string) int64 {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(fw, "%PDF-1.4 fake content")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/documents", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload: status %d body %s", resp.StatusCode, body)
	}
	var doc model.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return doc.ID
}

func TestUploadRejectsNonPDF(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedGateway{})
	token := registerUser(t, srv, "alice@example.com", "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fmt.Fprint(fw, "plain text")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/documents", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-pdf upload: status %d", resp.StatusCode)
	}
}

func TestAssessmentFlow(t *testing.T) {
	gw := &scriptedGateway{replies: []string{questionJSON, gradeJSON}}
	srv, _ := newTestServer(t, gw)
	token := registerUser(t, srv, "alice@example.com", "")
	docID := uploadPDF(t, srv, token, "notes.pdf")

	base := fmt.Sprintf("%s/api/documents/%d", srv.URL, docID)

	resp, fields := doJSON(t, http.MethodPost, base+"/questions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: status %d", resp.StatusCode)
	}
	var mcqs []model.MCQuestion
	if err := json.Unmarshal(fields["mcqs"], &mcqs); err != nil {
		t.Fatalf("decode mcqs: %v", err)
	}
	if len(mcqs) != 1 || mcqs[0].CorrectOptionIndex != 1 {
		t.Fatalf("unexpected questions: %+v", mcqs)
	}

	resp, _ = doJSON(t, http.MethodPut, base+"/answers", token, map[string]any{
		"mcq":   map[string]int{"0": 1},
		"short": map[string]string{"0": "It introduces the topic."},
		"long":  map[string]string{"0": "The argument is..."},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answers: status %d", resp.StatusCode)
	}

	resp, fields = doJSON(t, http.MethodPost, base+"/submit", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	var pct int
	if err := json.Unmarshal(fields["percentage"], &pct); err != nil {
		t.Fatalf("decode percentage: %v", err)
	}
	if pct != 50 {
		t.Fatalf("percentage = %d, want 50", pct)
	}

	// Answers are locked once graded.
	resp, _ = doJSON(t, http.MethodPut, base+"/answers", token, map[string]any{
		"mcq": map[string]int{"0": 0},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("answers after grading: status %d", resp.StatusCode)
	}

	resp, fields = doJSON(t, http.MethodGet, base+"/assessment", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get assessment: status %d", resp.StatusCode)
	}
	var state string
	if err := json.Unmarshal(fields["state"], &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state != "graded" {
		t.Fatalf("state = %q, want graded", state)
	}
}

func TestAssessmentOwnership(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedGateway{})
	alice := registerUser(t, srv, "alice@example.com", "")
	mallory := registerUser(t, srv, "mallory@example.com", "")
	docID := uploadPDF(t, srv, alice, "notes.pdf")

	url := fmt.Sprintf("%s/api/documents/%d/assessment", srv.URL, docID)
	resp, _ := doJSON(t, http.MethodGet, url, mallory, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign document: status %d", resp.StatusCode)
	}
}

func TestChatFlow(t *testing.T) {
	gw := &scriptedGateway{replies: []string{"Chapter one introduces the topic [Page 1]."}}
	srv, _ := newTestServer(t, gw)
	token := registerUser(t, srv, "alice@example.com", "")
	docID := uploadPDF(t, srv, token, "notes.pdf")

	resp, fields := doJSON(t, http.MethodPost, srv.URL+"/api/chats", token, map[string]any{
		"documentId": docID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat: status %d", resp.StatusCode)
	}
	var threadID string
	if err := json.Unmarshal(fields["id"], &threadID); err != nil || threadID == "" {
		t.Fatalf("no thread id in response")
	}

	// A greeting is answered without the model.
	resp, fields = doJSON(t, http.MethodPost, srv.URL+"/api/chats/"+threadID+"/messages", token, map[string]string{
		"text": "hello",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send greeting: status %d", resp.StatusCode)
	}
	if gw.calls != 0 {
		t.Fatalf("greeting hit the model: %d calls", gw.calls)
	}

	// A real question goes through the gateway.
	resp, fields = doJSON(t, http.MethodPost, srv.URL+"/api/chats/"+threadID+"/messages", token, map[string]string{
		"text": "what is chapter one about",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send question: status %d", resp.StatusCode)
	}
	var reply model.ChatMessage
	if err := json.Unmarshal(fields["reply"], &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !strings.Contains(reply.Text, "[Page 1]") {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	resp, fields = doJSON(t, http.MethodGet, srv.URL+"/api/chats", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list chats: status %d", resp.StatusCode)
	}
	var threads []model.ConversationThread
	if err := json.Unmarshal(fields["threads"], &threads); err != nil {
		t.Fatalf("decode threads: %v", err)
	}
	if len(threads) != 1 || len(threads[0].Messages) != 5 {
		t.Fatalf("expected 1 thread with 5 messages, got %+v", threads)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/chats/"+threadID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete chat: status %d", resp.StatusCode)
	}
}
