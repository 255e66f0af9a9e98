package observability

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/anysoft/askql/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// MaxLoggedSQL caps the bytes of generated SQL written to a single log record.
const MaxLoggedSQL = 1024

// NewLogger builds the service logger. Attributes named "sql" are cut to
// MaxLoggedSQL bytes so a runaway completion cannot flood the log.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: truncateSQLAttr,
	}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func truncateSQLAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != "sql" || attr.Value.Kind() != slog.KindString {
		return attr
	}
	text := attr.Value.String()
	if len(text) <= MaxLoggedSQL {
		return attr
	}
	omitted := len(text) - MaxLoggedSQL
	return slog.String(attr.Key, text[:MaxLoggedSQL]+"...("+strconv.Itoa(omitted)+" bytes omitted)")
}

// NopLogger is used by components constructed without a logger.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey).(string)
	return traceID
}
