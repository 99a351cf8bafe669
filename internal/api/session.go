package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parleychat/parley/internal/session"
)

// SessionDirectory is the storage surface the session endpoints need.
// *session.Store satisfies it.
type SessionDirectory interface {
	Load(ctx context.Context, sessionID string) ([]session.Message, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, limit, offset int) ([]session.Info, error)
}

// MessagesResponse is the GET /chat/sessions/{id}/messages response body.
type MessagesResponse struct {
	SessionID string            `json:"sessionId"`
	Messages  []session.Message `json:"messages"`
}

// SessionsResponse is the GET /chat/sessions response body.
type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

type sessionHandler struct {
	sessions SessionDirectory
	logger   *slog.Logger
}

// list handles GET /chat/sessions with optional limit/offset query params.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	infos, err := h.sessions.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("listing sessions", "error", err)
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if infos == nil {
		infos = []session.Info{}
	}
	WriteJSON(w, http.StatusOK, SessionsResponse{Sessions: infos}, h.logger)
}

// messages handles GET /chat/sessions/{id}/messages. An unknown session
// returns an empty list, mirroring how a turn on an unknown session starts
// from empty history.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session id is required", h.logger)
		return
	}

	history, err := h.sessions.Load(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("loading session", "error", err, "session_id", sessionID)
		WriteError(w, http.StatusInternalServerError, "session_load_failed", "failed to load conversation", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, MessagesResponse{SessionID: sessionID, Messages: history}, h.logger)
}

// reset handles DELETE /chat/sessions/{id}. Deleting an unknown session is
// a no-op; both cases return 204.
func (h *sessionHandler) reset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "missing_session_id", "session id is required", h.logger)
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("deleting session", "error", err, "session_id", sessionID)
		WriteError(w, http.StatusInternalServerError, "session_delete_failed", "failed to delete conversation", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
