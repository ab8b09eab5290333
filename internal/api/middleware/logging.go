// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// RequestLogger tags each request with an id and logs its outcome. A client
// supplied X-Request-ID is reused. Without verbose only 4xx and 5xx responses
// are logged. Handlers reach the tagged logger through zerolog.Ctx.
func RequestLogger(log zerolog.Logger, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > maxRequestIDLen {
				requestID = uuid.NewString()[:8]
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLog := log.With().Str("request_id", requestID).Logger()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var event *zerolog.Event
			switch {
			case status >= 500:
				event = reqLog.Error()
			case status >= 400:
				event = reqLog.Warn()
			case verbose:
				event = reqLog.Info()
			default:
				return
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
