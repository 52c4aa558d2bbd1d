package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// Equivalent to log.NewNop(); prefer that when the internal/log package
// is already imported.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
