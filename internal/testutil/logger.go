package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// Use in tests to reduce noise; log.NewNop() is equivalent for code that
// works with the internal/log alias.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
