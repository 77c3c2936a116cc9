package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/docqa/internal/identity"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/session"
)

type SessionHandler struct {
	svc *session.Service
}

func NewSessionHandler(svc *session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.List(r.Context(), identity.UserID(r.Context()))
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries, "count": len(summaries)})
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Create(r.Context(), identity.UserID(r.Context()))
	if err != nil {
		slog.Error("create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := ownedSession(w, r, h.svc, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := ownedSession(w, r, h.svc, id); !ok {
		return
	}
	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		slog.Error("delete session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteMany deletes the caller's sessions among ids. Ids owned by someone
// else are reported as failures.
func (h *SessionHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}

	ctx := r.Context()
	var owned, foreign []string
	for _, id := range req.IDs {
		sess, found, err := h.svc.Get(ctx, id)
		if err == nil && found && canAccess(r, sess) {
			owned = append(owned, id)
		} else {
			foreign = append(foreign, id)
		}
	}

	res := h.svc.DeleteMany(ctx, owned)
	if len(foreign) > 0 {
		res = models.NewBatchResult(res.Deleted, append(res.Failed, foreign...))
	}
	writeBatch(w, res.Status, res)
}

func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := ownedSession(w, r, h.svc, id); !ok {
		return
	}

	sess, err := h.svc.Rename(r.Context(), id, req.Name)
	switch {
	case errors.Is(err, session.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case err != nil:
		slog.Error("rename session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not rename session")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

// ownedSession loads id and writes a 404 unless the caller may see it.
func ownedSession(w http.ResponseWriter, r *http.Request, svc *session.Service, id string) (*models.Session, bool) {
	sess, found, err := svc.Get(r.Context(), id)
	if err != nil {
		slog.Error("load session failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return nil, false
	}
	if !found || !canAccess(r, sess) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func canAccess(r *http.Request, sess *models.Session) bool {
	return identity.IsAdmin(r.Context()) || sess.UserID == identity.UserID(r.Context())
}
