// Package app assembles the application: configuration, tracing, database,
// model provider, and the chat controller, with a single Close for teardown.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/llm"
	"github.com/parleychat/parley/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit       *genkit.Genkit
	DBPool       *pgxpool.Pool
	SessionStore *session.Store
	Gateway      *llm.Gateway
	Controller   *chat.Controller

	otelCleanup func()
}

// Close releases resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
