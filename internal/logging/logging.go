// Package logging provides the process-wide structured logger, a
// charmbracelet/log handler wrapped behind log/slog, plus a context-scoped
// Log(ctx) accessor matching the log(ctx) helper the rest of this codebase
// calls.
package logging

import (
	"context"
	"log/slog"
	"os"

	charm "github.com/charmbracelet/log"
)

var handler = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
	Level:           charm.InfoLevel,
})

func init() {
	slog.SetDefault(slog.New(handler))
}

// SetVerbose raises the process-wide log level to debug, matching the
// --verbose CLI flag.
func SetVerbose(verbose bool) {
	if verbose {
		handler.SetLevel(charm.DebugLevel)
	}
}

type contextKey struct{}

// searchIDKey, if present in ctx, is attached to every log line emitted via
// Log(ctx) so a search's whole fan-out can be grepped by id.
var searchIDKey = contextKey{}

// WithSearchID returns a context carrying searchID for Log to attach.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchIDKey, searchID)
}

// Log returns the default logger, enriched with a searchId field if ctx
// carries one via WithSearchID.
func Log(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id, ok := ctx.Value(searchIDKey).(string); ok && id != "" {
		l = l.With("searchId", id)
	}
	return l
}
