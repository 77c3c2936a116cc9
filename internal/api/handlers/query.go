package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/identity"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/session"
)

type QueryHandler struct {
	pipeline rag.Pipeline
	sessions *session.Service
}

func NewQueryHandler(p rag.Pipeline, sessions *session.Service) *QueryHandler {
	return &QueryHandler{pipeline: p, sessions: sessions}
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	Content    string             `json:"content"`
	Sources    []models.TextChunk `json:"sources"`
	Confidence float64            `json:"confidence"`
	SessionID  string             `json:"session_id"`
}

// Query answers a question inside a session, creating one when the request
// names none. The question is recorded before retrieval and the answer after.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	ctx := r.Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := h.sessions.Create(ctx, identity.UserID(ctx))
		if err != nil {
			slog.Error("create session for query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "could not create session")
			return
		}
		sessionID = sess.ID
	} else if _, ok := ownedSession(w, r, h.sessions, sessionID); !ok {
		return
	}

	if _, err := h.sessions.AppendMessage(ctx, sessionID, models.RoleUser, req.Query, nil); err != nil {
		slog.Error("record question failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update session")
		return
	}

	resp, err := h.pipeline.Ask(ctx, req.Query)
	if err != nil {
		slog.Error("query failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "could not answer the question")
		return
	}

	if _, err := h.sessions.AppendMessage(ctx, sessionID, models.RoleBot, resp.Content, resp.Sources); err != nil {
		slog.Error("record answer failed", "session_id", sessionID, "error", err)
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Content:    resp.Content,
		Sources:    resp.Sources,
		Confidence: resp.Confidence,
		SessionID:  sessionID,
	})
}
