package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/internal/common"
)

// requestLogger logs one line per request and carries chi's request id into
// the context key the rest of the service reads.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimiddleware.GetReqID(r.Context())
			ctx := common.WithRequestID(r.Context(), reqID)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", reqID),
				zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			}
			switch {
			case status >= 500:
				logger.Error("http.request", fields...)
			case status >= 400:
				logger.Warn("http.request", fields...)
			default:
				logger.Debug("http.request", fields...)
			}
		})
	}
}

// sessionID rejects ids that are not UUIDs before they reach the store.
func sessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, common.NewAppError(common.CodeNotFound, "session not found", common.ErrNotFound))
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
	})
}
