package middleware

import (
	"context"
	"net/http"
	"time"

	"supergraph/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader is propagated from the gateway to every sub-request
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLoggingMiddleware assigns a request id (reusing an inbound
// X-Request-Id) and writes one access log line per request
func RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(WithRequestID(r.Context(), requestID)))

		utils.Logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// HTTPHeadersLoggingMiddleware логирует все входящие HTTP заголовки (для отладки)
func HTTPHeadersLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Собираем все заголовки в map для логирования
		headers := make(map[string][]string)
		for key, values := range r.Header {
			if key == "Authorization" {
				values = []string{"[redacted]"}
			}
			headers[key] = values
		}

		utils.Logger.Debug("Incoming HTTP request headers",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Any("headers", headers),
		)

		next.ServeHTTP(w, r)
	})
}

// LocaleMiddleware stores Accept-Language for localized error messages
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lang := r.Header.Get("Accept-Language"); lang != "" {
			r = r.WithContext(utils.WithLanguage(r.Context(), lang))
		}
		next.ServeHTTP(w, r)
	})
}
