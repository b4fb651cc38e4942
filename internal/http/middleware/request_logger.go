package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wolfman30/health-chat-api/pkg/logging"
)

// RequestLogger emits one structured line per HTTP request and echoes the
// request id back in X-Request-ID. It runs after chi's RequestID middleware
// when that is installed.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			if reqID == "" {
				reqID = r.Header.Get(chimw.RequestIDHeader)
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(chimw.RequestIDHeader, reqID)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				args := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"request_id", reqID,
					"remote_ip", r.RemoteAddr,
					"duration_ms", time.Since(start).Milliseconds(),
				}
				if status >= http.StatusInternalServerError {
					logger.Error("request completed", args...)
					return
				}
				logger.Info("request completed", args...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
