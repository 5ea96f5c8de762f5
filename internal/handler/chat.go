package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/beyondchats/studydesk/internal/model"
)

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	c, err := h.chat(user.ID)
	if err != nil {
		slog.Error("load chats failed", "user", user.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	threads := c.Threads()
	if threads == nil {
		threads = []model.ConversationThread{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads":  threads,
		"activeId": c.ActiveID(),
	})
}

func (h *Handler) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req struct {
		DocumentID int64 `json:"documentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := h.store.GetDocument(req.DocumentID)
	if err != nil {
		slog.Error("get document failed", "id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if doc == nil || (doc.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	c, err := h.chat(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	thread, err := c.CreateThread(r.Context(), doc.ID)
	if err != nil {
		slog.Error("create chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	c, err := h.chat(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	reply, err := c.Send(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	thread, err := c.Thread(chi.URLParam(r, "id"))
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":  reply,
		"thread": thread,
	})
}

func (h *Handler) handleActivateChat(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	c, err := h.chat(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := c.SetActive(chi.URLParam(r, "id")); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeId": c.ActiveID()})
}

func (h *Handler) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	c, err := h.chat(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := c.DeleteThread(chi.URLParam(r, "id")); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeId": c.ActiveID()})
}
