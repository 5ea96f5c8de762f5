package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/beyondchats/studydesk/internal/model"
)

// handleListActivity returns a user's own attempt history. Admins may pass
// ?email= to read another user's.
func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		email = user.Email
	}
	if email != user.Email && user.Role != model.UserRoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	records, err := h.store.ListActivitiesByEmail(email)
	if err != nil {
		slog.Error("list activities failed", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []model.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": records})
}

// handleRecordActivity stores a result directly. Grading also records
// results on its own; this endpoint exists for client-driven writes.
func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req struct {
		Email  string `json:"email"`
		Result string `json:"result"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		email = user.Email
	}
	if email != user.Email && user.Role != model.UserRoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if req.Result == "" {
		writeError(w, http.StatusBadRequest, "result is required")
		return
	}
	rec, err := h.store.InsertActivity(email, req.Result)
	if err != nil {
		slog.Error("insert activity failed", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleAdminActivities returns every record with user names. Admin only.
func (h *Handler) handleAdminActivities(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAllActivities()
	if err != nil {
		slog.Error("list all activities failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []model.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": records})
}
