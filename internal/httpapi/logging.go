package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type logEntryKey struct{}

// logEntry collects request facts discovered further down the chain.
type logEntry struct {
	staffID string
}

func logEntryFromContext(ctx context.Context) *logEntry {
	entry, _ := ctx.Value(logEntryKey{}).(*logEntry)
	return entry
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := &logEntry{}
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r.WithContext(context.WithValue(r.Context(), logEntryKey{}, entry)))
		duration := time.Since(start)
		log.Printf("request method=%s path=%s status=%d duration_ms=%d staff=%s request_id=%s",
			r.Method, r.URL.Path, writer.status, duration.Milliseconds(), entry.staffID, requestIDFromRequest(r))
	})
}

// RequestIDMiddleware assigns an X-Request-ID to requests that lack one and
// echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
