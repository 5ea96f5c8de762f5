package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appI18n "github.com/beyondchats/studydesk/internal/i18n"
	"github.com/beyondchats/studydesk/internal/model"
	"github.com/beyondchats/studydesk/internal/session"
)

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "NotAPDF"))
		return
	}

	storedPath := filepath.Join(h.config.UploadDir, uuid.NewString()+".pdf")
	dst, err := os.Create(storedPath)
	if err != nil {
		slog.Error("create upload file failed", "path", storedPath, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		slog.Error("write upload failed", "path", storedPath, "error", err)
		os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	doc, err := h.store.CreateDocument(user.ID, header.Filename, storedPath)
	if err != nil {
		slog.Error("create document failed", "error", err)
		os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("document uploaded", "id", doc.ID, "name", doc.Name, "user", user.Email)
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	docs, err := h.store.ListDocumentsByUser(user.ID)
	if err != nil {
		slog.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// documentFromRequest resolves {id} to a document the caller owns.
func (h *Handler) documentFromRequest(w http.ResponseWriter, r *http.Request) *model.Document {
	user := model.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return nil
	}
	doc, err := h.store.GetDocument(id)
	if err != nil {
		slog.Error("get document failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if doc == nil || (doc.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		writeError(w, http.StatusNotFound, "document not found")
		return nil
	}
	return doc
}

func (h *Handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	doc := h.documentFromRequest(w, r)
	if doc == nil {
		return
	}
	a := h.assessment(doc, model.UserFromContext(r.Context()))
	qs, err := a.Generate(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	doc := h.documentFromRequest(w, r)
	if doc == nil {
		return
	}
	a := h.assessment(doc, model.UserFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     a.State(),
		"questions": a.Questions(),
		"answers":   a.Answers(),
		"report":    a.Report(),
	})
}

func (h *Handler) handleSetAnswers(w http.ResponseWriter, r *http.Request) {
	doc := h.documentFromRequest(w, r)
	if doc == nil {
		return
	}
	var answers model.AnswerSet
	if err := decodeJSON(r, &answers); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a := h.assessment(doc, model.UserFromContext(r.Context()))
	if err := a.SetAnswers(answers); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": a.State(), "answers": a.Answers()})
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	doc := h.documentFromRequest(w, r)
	if doc == nil {
		return
	}
	a := h.assessment(doc, model.UserFromContext(r.Context()))
	report, err := a.Submit(r.Context())
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":     report,
		"percentage": session.Percentage(report),
	})
}

func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionBusy"))
	case errors.Is(err, session.ErrLocked):
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "AnswersLocked"))
	case errors.Is(err, session.ErrAlreadyGraded):
		writeError(w, http.StatusConflict, "attempt already graded")
	case errors.Is(err, session.ErrNoQuestions):
		writeError(w, http.StatusBadRequest, "no questions generated")
	case errors.Is(err, session.ErrNoThread):
		writeError(w, http.StatusNotFound, "chat not found")
	default:
		slog.Error("session operation failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
