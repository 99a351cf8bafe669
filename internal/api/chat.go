package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parleychat/parley/internal/chat"
)

// maxRequestBody limits chat request size to 1MB.
const maxRequestBody = 1 << 20

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the non-streaming POST /chat response body, returned when
// the client asks for application/json instead of an event stream.
type ChatResponse struct {
	SessionID string `json:"sessionId"`
	Response  string `json:"response"`
}

// Stream event payloads. Every event is a single JSON object on a data:
// line, discriminated by the type field:
//
//	{"type":"sessionId","sessionId":"..."}  first event of every stream
//	{"type":"chunk","content":"..."}        zero or more response fragments
//	{"type":"done"}                         terminal: exchange persisted
//	{"type":"error","error":"..."}          terminal: turn failed, nothing saved
//
// Exactly one terminal event closes each stream.
type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// chatHandler serves conversation turns.
type chatHandler struct {
	controller *chat.Controller
	logger     *slog.Logger
}

// send handles POST /chat. The response is an SSE stream unless the client
// requests application/json via the Accept header.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}

	// Validation happens before any stream output so protocol errors get
	// real HTTP status codes instead of in-band error events.
	turn, err := h.controller.Begin(r.Context(), req.SessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			WriteError(w, http.StatusBadRequest, "empty_message", "message must not be empty", h.logger)
		default:
			h.logger.Error("starting turn", "error", err, "session_id", req.SessionID)
			WriteError(w, http.StatusInternalServerError, "session_load_failed", "failed to load conversation", h.logger)
		}
		return
	}
	defer turn.Abort()

	if wantsJSON(r) {
		h.sendJSON(w, r, turn)
		return
	}
	h.sendStream(w, r, turn)
}

// sendJSON completes the turn without streaming.
func (h *chatHandler) sendJSON(w http.ResponseWriter, r *http.Request, turn *chat.Turn) {
	reply, err := turn.Complete(r.Context())
	if err != nil {
		h.logger.Error("turn failed", "error", err, "session_id", turn.SessionID)
		WriteError(w, http.StatusInternalServerError, "generation_failed", "failed to generate response", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, ChatResponse{SessionID: turn.SessionID, Response: reply}, h.logger)
}

// sendStream runs the turn over SSE.
func (h *chatHandler) sendStream(w http.ResponseWriter, r *http.Request, turn *chat.Turn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The session ID goes out first so a client that minted no ID can
	// correlate the rest of the stream immediately.
	if err := writeEvent(w, flusher, streamEvent{Type: "sessionId", SessionID: turn.SessionID}); err != nil {
		h.logger.Debug("client disconnected before stream start", "session_id", turn.SessionID)
		return
	}

	ctx := r.Context()
	err := turn.Stream(ctx, func(fragment string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return writeEvent(w, flusher, streamEvent{Type: "chunk", Content: fragment})
	})
	if err != nil {
		// A gone client gets no terminal event; the partial exchange was
		// discarded by the controller.
		if ctx.Err() != nil {
			h.logger.Info("client disconnected mid-stream", "session_id", turn.SessionID)
			return
		}
		h.logger.Error("turn failed", "error", err, "session_id", turn.SessionID)
		_ = writeEvent(w, flusher, streamEvent{Type: "error", Error: "failed to generate response"})
		return
	}

	// Stream returned nil: the exchange is committed.
	_ = writeEvent(w, flusher, streamEvent{Type: "done"})
}

// writeEvent writes one SSE event in the data-only framing and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	flusher.Flush()
	return nil
}

// wantsJSON reports whether the client asked for a plain JSON response.
// Streaming is the default; only an explicit application/json preference
// (without text/event-stream) selects the buffered mode.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/event-stream") {
		return false
	}
	return strings.Contains(accept, "application/json")
}
