// Package handler exposes the JSON HTTP API: auth, document upload,
// assessment, chat, and activity history.
package handler

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/beyondchats/studydesk/internal/model"
	"github.com/beyondchats/studydesk/internal/session"
	"github.com/beyondchats/studydesk/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	gw      session.Gateway
	extract session.Extractor
	config  model.Config

	mu          sync.Mutex
	assessments map[int64]*session.Assessment
	chats       map[int64]*session.Chat
}

// New creates a new Handler.
func New(s *store.Store, gw session.Gateway, extract session.Extractor, cfg model.Config) *Handler {
	return &Handler{
		store:       s,
		gw:          gw,
		extract:     extract,
		config:      cfg,
		assessments: make(map[int64]*session.Assessment),
		chats:       make(map[int64]*session.Chat),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/auth/logout", h.handleLogout)

		r.Get("/api/activity", h.handleListActivity)
		r.Post("/api/activity", h.handleRecordActivity)

		r.Post("/api/documents", h.handleUploadDocument)
		r.Get("/api/documents", h.handleListDocuments)
		r.Post("/api/documents/{id}/questions", h.handleGenerateQuestions)
		r.Get("/api/documents/{id}/assessment", h.handleGetAssessment)
		r.Put("/api/documents/{id}/answers", h.handleSetAnswers)
		r.Post("/api/documents/{id}/submit", h.handleSubmitAnswers)

		r.Get("/api/chats", h.handleListChats)
		r.Post("/api/chats", h.handleCreateChat)
		r.Post("/api/chats/{id}/messages", h.handleSendMessage)
		r.Put("/api/chats/{id}/activate", h.handleActivateChat)
		r.Delete("/api/chats/{id}", h.handleDeleteChat)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth, requireRole(model.UserRoleAdmin))
		r.Get("/apiAdmin/admin/activities", h.handleAdminActivities)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// assessment returns the live assessment for a document, creating one the
// first time a user touches it. Ownership is enforced here.
func (h *Handler) assessment(doc *model.Document, owner *model.User) *session.Assessment {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.assessments[doc.ID]
	if !ok {
		a = session.NewAssessment(h.gw, h.extract, h.store, h.config.Model, doc, owner)
		h.assessments[doc.ID] = a
	}
	return a
}

// chat returns the per-user chat manager, loading it from the store on
// first access.
func (h *Handler) chat(userID int64) (*session.Chat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.chats[userID]
	if !ok {
		var err error
		c, err = session.NewChat(h.gw, h.extract, h.store, h.store, h.config.Model, userID)
		if err != nil {
			return nil, err
		}
		h.chats[userID] = c
	}
	return c, nil
}
