package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/llm"
	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/testutil"
)

// memStore is an in-memory session store satisfying both the controller's
// HistoryStore and the API's SessionDirectory.
type memStore struct {
	mu       sync.Mutex
	sessions map[string][]session.Message
	loadErr  error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string][]session.Message{}}
}

func (s *memStore) Load(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	history := s.sessions[sessionID]
	cp := make([]session.Message, len(history))
	copy(cp, history)
	return cp, nil
}

func (s *memStore) Save(_ context.Context, sessionID string, history []session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]session.Message, len(history))
	copy(cp, history)
	s.sessions[sessionID] = cp
	return nil
}

func (s *memStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memStore) List(_ context.Context, limit, offset int) ([]session.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]session.Info, 0, len(s.sessions))
	for id, history := range s.sessions {
		infos = append(infos, session.Info{SessionID: id, MessageCount: len(history)})
	}
	if offset > len(infos) {
		offset = len(infos)
	}
	infos = infos[offset:]
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func (s *memStore) history(sessionID string) []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// testServer wires the full stack: store, mock model, gateway, controller,
// server. Requests go through the real middleware chain.
type testServer struct {
	handler http.Handler
	store   *memStore
	mock    *testutil.MockLLM
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("default reply")
	mock.RegisterModel(g)

	gw, err := llm.New(g, llm.Options{
		ModelName: testutil.MockModelName,
		Logger:    testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("llm.New() unexpected error: %v", err)
	}

	store := newMemStore()
	controller, err := chat.NewController(store, gw, session.NewLocker(), chat.Options{
		SystemPrompt:  "You are a test persona.",
		HistoryWindow: 10,
		Logger:        testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("chat.NewController() unexpected error: %v", err)
	}

	srv, err := NewServer(ServerConfig{
		Logger:      testutil.DiscardLogger(),
		Controller:  controller,
		Sessions:    store,
		CORSOrigins: []string{"http://localhost:5173"},
		RateBurst:   1000,
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}

	return &testServer{handler: srv.Handler(), store: store, mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.AddResponse("capital", "Paris is the capital of France.")

	rec := ts.do(t, http.MethodPost, "/chat", `{"message":"What is the capital of France?"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("expected sessionId, chunks, and terminal, got %d events: %+v", len(events), events)
	}

	if events[0].Type != "sessionId" || events[0].SessionID == "" {
		t.Errorf("first event = %+v, want sessionId with minted ID", events[0])
	}
	if got := testutil.ChunkText(events); got != "Paris is the capital of France." {
		t.Errorf("chunk text = %q", got)
	}
	if term := testutil.Terminal(t, events); term.Type != "done" {
		t.Errorf("terminal = %+v, want done", term)
	}

	// The done event means the exchange is durable.
	history := ts.store.history(events[0].SessionID)
	if len(history) != 2 {
		t.Fatalf("stored history has %d messages, want 2", len(history))
	}
	if history[0].Role != session.RoleUser || history[1].Role != session.RoleAssistant {
		t.Errorf("stored roles = %q, %q", history[0].Role, history[1].Role)
	}
}

func TestChatStreamContinuesSession(t *testing.T) {
	ts := newTestServer(t)

	first := ts.do(t, http.MethodPost, "/chat", `{"message":"first turn"}`, nil)
	events := testutil.ParseSSEEvents(t, first.Body.String())
	sessionID := events[0].SessionID

	second := ts.do(t, http.MethodPost, "/chat",
		`{"sessionId":"`+sessionID+`","message":"second turn"}`, nil)
	events2 := testutil.ParseSSEEvents(t, second.Body.String())

	if events2[0].SessionID != sessionID {
		t.Errorf("second stream echoed session %q, want %q", events2[0].SessionID, sessionID)
	}
	if len(ts.store.history(sessionID)) != 4 {
		t.Errorf("history has %d messages after two turns, want 4", len(ts.store.history(sessionID)))
	}

	// The second model call must include the first exchange plus the
	// system prompt and the new message.
	calls := ts.mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("model called %d times, want 2", len(calls))
	}
	if calls[1].NumMessages != 4 {
		t.Errorf("second call saw %d messages, want 4 (system + 2 history + new)", calls[1].NumMessages)
	}
	if calls[1].SystemText == "" {
		t.Error("system prompt missing from model request")
	}
}

func TestChatJSONMode(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.AddResponse("ping", "pong")

	rec := ts.do(t, http.MethodPost, "/chat", `{"message":"ping"}`,
		map[string]string{"Accept": "application/json"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Response != "pong" {
		t.Errorf("response = %q, want pong", resp.Response)
	}
	if resp.SessionID == "" {
		t.Error("expected minted session ID in JSON response")
	}
	if len(ts.store.history(resp.SessionID)) != 2 {
		t.Error("JSON mode must commit the exchange like streaming mode")
	}
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed JSON", body: `{not json`, code: "invalid_request"},
		{name: "empty message", body: `{"message":""}`, code: "empty_message"},
		{name: "whitespace message", body: `{"message":"   "}`, code: "empty_message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/chat", tt.body, nil)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding error response: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestChatGenerationFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.FailWith(errors.New("backend exploded"))

	rec := ts.do(t, http.MethodPost, "/chat", `{"sessionId":"s1","message":"hello"}`, nil)

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	term := testutil.Terminal(t, events)
	if term.Type != "error" {
		t.Fatalf("terminal = %+v, want error", term)
	}
	if term.Error == "" {
		t.Error("error event must carry a message")
	}
	if strings.Contains(term.Error, "exploded") {
		t.Error("backend error details must not leak to clients")
	}
	if len(ts.store.history("s1")) != 0 {
		t.Error("failed turn must not be committed")
	}
}

func TestChatLoadFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.store.loadErr = session.ErrStorageRead

	rec := ts.do(t, http.MethodPost, "/chat", `{"sessionId":"s1","message":"hello"}`, nil)

	// Load happens before any stream output, so this is a plain HTTP error.
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSessionMessages(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.AddResponse("hello", "hi there")

	rec := ts.do(t, http.MethodPost, "/chat", `{"sessionId":"s1","message":"hello"}`, nil)
	testutil.ParseSSEEvents(t, rec.Body.String())

	got := ts.do(t, http.MethodGet, "/chat/sessions/s1/messages", "", nil)
	if got.Code != http.StatusOK {
		t.Fatalf("status = %d", got.Code)
	}

	var resp MessagesResponse
	if err := json.Unmarshal(got.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID != "s1" {
		t.Errorf("sessionId = %q", resp.SessionID)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(resp.Messages))
	}
	if resp.Messages[1].Content != "hi there" {
		t.Errorf("assistant message = %q", resp.Messages[1].Content)
	}
}

func TestSessionMessagesUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/chat/sessions/never-seen/messages", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown session", rec.Code)
	}

	var resp MessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Messages) != 0 {
		t.Errorf("messages = %v, want empty", resp.Messages)
	}
}

func TestSessionReset(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/chat", `{"sessionId":"s1","message":"hello"}`, nil)
	testutil.ParseSSEEvents(t, rec.Body.String())

	del := ts.do(t, http.MethodDelete, "/chat/sessions/s1", "", nil)
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", del.Code)
	}
	if len(ts.store.history("s1")) != 0 {
		t.Error("history survived reset")
	}

	// Idempotent: deleting again is still 204.
	again := ts.do(t, http.MethodDelete, "/chat/sessions/s1", "", nil)
	if again.Code != http.StatusNoContent {
		t.Errorf("repeat delete status = %d, want 204", again.Code)
	}
}

func TestSessionList(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"a", "b", "c"} {
		rec := ts.do(t, http.MethodPost, "/chat", `{"sessionId":"`+id+`","message":"hello"}`, nil)
		testutil.ParseSSEEvents(t, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/chat/sessions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Sessions) != 3 {
		t.Errorf("sessions = %d, want 3", len(resp.Sessions))
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyWithoutPool(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(ServerConfig{Sessions: newMemStore()}); err == nil {
		t.Error("NewServer without controller should fail")
	}
}
