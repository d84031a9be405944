package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxLoggedBody   = 4 << 10
)

// requestInfo is filled in as the request travels down the chain; the access
// log reads it once the handler returns.
type requestInfo struct {
	id     string
	userID string
	role   string
}

type requestInfoKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

// recordActor attaches the authenticated caller to the access log line.
func recordActor(ctx context.Context, userID string, role string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = userID
		info.role = role
	}
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{id: r.Header.Get(requestIDHeader)}
		if info.id == "" {
			info.id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, info.id)

		started := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		attrs := []slog.Attr{
			slog.String("request_id", info.id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("route", routePattern(r)),
			slog.Int("status", wrapped.status),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.String("client_ip", extractClientIP(r)),
		}
		if info.userID != "" {
			attrs = append(attrs, slog.String("user_id", info.userID), slog.String("role", info.role))
		}
		if wrapped.status >= 400 {
			attrs = append(attrs, errorAttrs(r, wrapped.body.Bytes())...)
		}

		level := slog.LevelInfo
		switch {
		case wrapped.status >= 500:
			level = slog.LevelError
		case wrapped.status >= 400:
			level = slog.LevelWarn
		}
		slog.LogAttrs(r.Context(), level, "request", attrs...)
	})
}

func errorAttrs(r *http.Request, body []byte) []slog.Attr {
	var attrs []slog.Attr
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}

	var parsed struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil || parsed.Error == nil {
		return attrs
	}

	attrs = append(attrs, slog.String("error_code", parsed.Error.Code), slog.String("error_message", parsed.Error.Message))
	if parsed.Error.Details != "" {
		attrs = append(attrs, slog.String("error_details", parsed.Error.Details))
	}
	return attrs
}

// routePattern is the matched chi pattern, e.g. /api/v1/grants/{id}/restore.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.status = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status >= 400 && rw.body.Len() < maxLoggedBody {
		rw.body.Write(b[:min(len(b), maxLoggedBody-rw.body.Len())])
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
