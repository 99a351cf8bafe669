package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/parleychat/parley/internal/session"
)

// HistoryStore persists conversation history keyed by session ID.
// A missing session loads as empty history, not an error.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]session.Message, error)
	Save(ctx context.Context, sessionID string, history []session.Message) error
}

// Generator produces model responses for a message sequence.
type Generator interface {
	Generate(ctx context.Context, msgs []*ai.Message) (string, error)
	GenerateStream(ctx context.Context, msgs []*ai.Message, onChunk func(string) error) (string, error)
}

// Options configures a Controller.
type Options struct {
	SystemPrompt  string
	HistoryWindow int
	Logger        *slog.Logger
}

// Controller orchestrates conversation turns. Turns on the same session are
// serialized through a keyed lock so concurrent requests cannot lose each
// other's history updates.
type Controller struct {
	store  HistoryStore
	gen    Generator
	locker *session.Locker

	systemPrompt string
	window       int
	logger       *slog.Logger
}

// NewController creates a Controller.
func NewController(store HistoryStore, gen Generator, locker *session.Locker, opts Options) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	window := opts.HistoryWindow
	if window < 1 {
		window = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:        store,
		gen:          gen,
		locker:       locker,
		systemPrompt: opts.SystemPrompt,
		window:       window,
		logger:       logger,
	}, nil
}

// Turn is a single in-flight conversation exchange. The session lock is
// held from Begin until exactly one of Stream, Complete, or Abort finishes,
// so callers must always reach one of them. Abort is safe to defer
// unconditionally; it is a no-op after the turn has ended.
type Turn struct {
	// SessionID identifies the session; minted when the request carried none.
	SessionID string

	// NewSession reports whether the session ID was minted for this turn.
	NewSession bool

	c           *Controller
	history     []session.Message
	userMessage string

	releaseOnce sync.Once
	release     func()
}

// Begin starts a turn: validates the user message, resolves or mints the
// session ID, acquires the session lock, and loads history. On error the
// lock is not held.
func (c *Controller) Begin(ctx context.Context, sessionID, userMessage string) (*Turn, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, ErrEmptyMessage
	}

	newSession := false
	if sessionID == "" {
		sessionID = uuid.NewString()
		newSession = true
	}

	release := c.locker.Acquire(sessionID)

	history, err := c.store.Load(ctx, sessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	c.logger.Debug("turn started",
		"session_id", sessionID,
		"new_session", newSession,
		"history_len", len(history))

	return &Turn{
		SessionID:   sessionID,
		NewSession:  newSession,
		c:           c,
		history:     history,
		userMessage: userMessage,
		release:     release,
	}, nil
}

// Stream runs generation, forwarding each text fragment to onChunk, then
// commits the completed exchange. The commit happens before Stream returns,
// so a nil result means the turn is durable. On any error nothing is
// committed; a partial response is discarded rather than stored.
func (t *Turn) Stream(ctx context.Context, onChunk func(string) error) error {
	defer t.end()

	msgs := BuildContext(t.c.systemPrompt, t.history, t.userMessage, t.c.window)
	reply, err := t.c.gen.GenerateStream(ctx, msgs, onChunk)
	if err != nil {
		return err
	}

	return t.commit(ctx, reply)
}

// Complete runs generation without streaming and commits the exchange,
// returning the full reply text.
func (t *Turn) Complete(ctx context.Context) (string, error) {
	defer t.end()

	msgs := BuildContext(t.c.systemPrompt, t.history, t.userMessage, t.c.window)
	reply, err := t.c.gen.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}

	if err := t.commit(ctx, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Abort ends the turn without committing anything. It is a no-op when the
// turn already ended.
func (t *Turn) Abort() {
	t.end()
}

// commit appends the user message and the assistant reply to history and
// persists the result. The full exchange is written in a single save, so
// storage never holds a user message without its reply.
func (t *Turn) commit(ctx context.Context, reply string) error {
	now := time.Now().UTC()
	updated := append(t.history,
		session.Message{Role: session.RoleUser, Content: t.userMessage, Timestamp: now},
		session.Message{Role: session.RoleAssistant, Content: reply, Timestamp: now},
	)

	if err := t.c.store.Save(ctx, t.SessionID, updated); err != nil {
		return fmt.Errorf("saving session %s: %w", t.SessionID, err)
	}

	t.c.logger.Debug("turn committed",
		"session_id", t.SessionID,
		"history_len", len(updated))
	return nil
}

func (t *Turn) end() {
	t.releaseOnce.Do(t.release)
}
