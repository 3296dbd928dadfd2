// Package awflog configures the process-wide structured logger. Every
// record passes through a redacting handler so that secrets interpolated
// into a log message by any caller never reach the writer (spec §7: "every
// log line produced by the orchestrator is passed through a secrets
// redactor... Redaction runs on the whole log message, not just known
// sensitive fields").
package awflog

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/agentfw/awf/internal/secrets"
)

// Setup configures the global slog logger based on the desired format and
// verbosity, matching the teacher's text/json + verbose switch.
func Setup(format string, verbose bool) {
	var w io.Writer = os.Stderr
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch format {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(&redactingHandler{inner: inner}))
}

// redactingHandler wraps another slog.Handler, redacting the message and
// every string-valued attribute before delegating.
type redactingHandler struct {
	inner slog.Handler
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, secrets.Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(secrets.Redact(a.Value.String()))
		}
		redacted.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, redacted)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name)}
}
