package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists conversation history in PostgreSQL, one row per session
// identifier. The whole history is stored as a JSONB document and replaced
// in a single statement on save, which keeps the record atomic from any
// reader's perspective.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Load returns the persisted history for sessionID in insertion order.
// A session with no stored history yields an empty slice, not an error.
func (s *Store) Load(ctx context.Context, sessionID string) ([]Message, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT history FROM conversations WHERE session_id = $1`,
		sessionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading session %s: %w", ErrStorageRead, sessionID, err)
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%w: decoding history for session %s: %w", ErrStorageRead, sessionID, err)
	}

	s.logger.Debug("loaded history", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// Save replaces the entire persisted history for sessionID. The upsert is a
// single statement, so a concurrent Load sees either the old or the new
// history, never a mix. A failed save leaves the previous value intact.
func (s *Store) Save(ctx context.Context, sessionID string, history []Message) error {
	if history == nil {
		history = []Message{}
	}

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("%w: encoding history for session %s: %w", ErrStorageWrite, sessionID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (session_id, history)
		 VALUES ($1, $2)
		 ON CONFLICT (session_id)
		 DO UPDATE SET history = EXCLUDED.history, updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return fmt.Errorf("%w: saving session %s: %w", ErrStorageWrite, sessionID, err)
	}

	s.logger.Debug("saved history", "session_id", sessionID, "count", len(history))
	return nil
}

// Delete removes the persisted history for sessionID. Deleting a session
// that does not exist is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("%w: deleting session %s: %w", ErrStorageWrite, sessionID, err)
	}

	s.logger.Debug("deleted session", "session_id", sessionID)
	return nil
}

// List returns stored conversations ordered by most recent activity.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Info, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, jsonb_array_length(history), created_at, updated_at
		 FROM conversations
		 ORDER BY updated_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %w", ErrStorageRead, err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning session row: %w", ErrStorageRead, err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %w", ErrStorageRead, err)
	}

	return infos, nil
}
