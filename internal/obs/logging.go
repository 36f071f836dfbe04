package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/coastmedia-api/internal/common"
)

// NewLogger builds the process logger. format "console" or "text" selects
// the human readable writer; anything else logs JSON. Unknown levels mean info.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// RequestLogger emits one http_request event per request.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements the chi middleware signature.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	access := hlog.AccessHandler(l.log)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := common.WithAdminSlot(r.Context())
		access.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l RequestLogger) log(r *http.Request, status, size int, d time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	evt := l.Logger.Info()
	switch {
	case status >= http.StatusInternalServerError:
		evt = l.Logger.Error()
	case status >= http.StatusBadRequest:
		evt = l.Logger.Warn()
	}
	evt = evt.
		Str("method", r.Method).
		Str("route", RouteOf(r)).
		Str("path", r.URL.Path).
		Int("status", status).
		Int64("duration_ms", d.Milliseconds()).
		Int("bytes", size).
		Str("request_id", middleware.GetReqID(r.Context()))
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	if admin, ok := common.ObservedAdmin(r.Context()); ok {
		evt = evt.Str("admin", admin.Username)
	}
	evt.Str("host", r.Host).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("http_request")
}
