package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"authgate/internal/http/httperr"
	"authgate/internal/observability/logger"
	"authgate/internal/observability/requestid"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestIDMiddleware reuses the caller's X-Request-Id or generates one,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestid.Header)
		if reqID == "" {
			reqID = requestid.NewRequestID()
		}

		ctx := requestid.SetRequestID(r.Context(), reqID)
		w.Header().Set(requestid.Header, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLoggingMiddleware injects the logger into the request context and
// logs one line per request once the status is known.
// Headers and bodies are never logged.
func RequestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := logger.SetLoggerInContext(r.Context(), log)
			ctx = logger.InitRootErrorContext(ctx)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			log.Info(ctx, "http request completed",
				logger.Module("http"),
				logger.Action("request"),
				zap.String("method", r.Method),
				zap.String("route", getRoutePattern(r)),
				zap.String("path", r.URL.Path),
				zap.String("query", sanitizeQuery(r.URL.RawQuery)),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("remote_addr", sanitizeRemoteAddr(r.RemoteAddr)),
				zap.String("user_agent", sanitizeUserAgent(r.UserAgent())),
			)

			if status >= http.StatusInternalServerError {
				logServerError(ctx, log, r, status)
			}
		})
	}
}

func logServerError(ctx context.Context, log *logger.Logger, r *http.Request, status int) {
	rootErr := logger.GetRootError(ctx)

	fields := []logger.Field{
		logger.Module("http"),
		logger.Action("http_error"),
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("route", getRoutePattern(r)),
		zap.String("path", r.URL.Path),
		zap.String("kind", classifyError(rootErr)),
	}

	if rootErr != nil {
		fields = append(fields, zap.String("err", rootErr.Error()))
		var pgErr *pgconn.PgError
		if errors.As(rootErr, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
	} else {
		fields = append(fields, zap.String("err", "internal server error (unspecified cause)"))
	}

	log.Error(ctx, "http_error", fields...)
}

// RecoveryMiddleware turns a handler panic into a 500 and logs the stack
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				logger.SetRootError(ctx, fmt.Errorf("panic: %v", rec))

				log.Error(ctx, "panic_recovered",
					logger.Module("http"),
					logger.Action("panic_recovery"),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", getRoutePattern(r)),
				)

				httperr.InternalError(w, ctx)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

var sensitiveQueryKeys = map[string]bool{
	"token":        true,
	"access_token": true,
	"jwt":          true,
	"code":         true,
	"password":     true,
	"secret":       true,
}

// sanitizeQuery redacts credential-like parameters and caps the length
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "[unparseable]"
	}
	for key := range values {
		if sensitiveQueryKeys[strings.ToLower(key)] {
			values[key] = []string{"[REDACTED]"}
		}
	}

	const maxLen = 200
	encoded := values.Encode()
	if len(encoded) > maxLen {
		return encoded[:maxLen] + "..."
	}
	return encoded
}

// sanitizeRemoteAddr drops the port: 192.168.1.100:54321 -> 192.168.1.100
func sanitizeRemoteAddr(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func sanitizeUserAgent(ua string) string {
	const maxLen = 100
	if len(ua) > maxLen {
		return ua[:maxLen] + "..."
	}
	return ua
}

func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// classifyError buckets the root cause of a 5xx for the http_error log
func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}

	var pgErr *pgconn.PgError
	switch {
	case strings.HasPrefix(err.Error(), "panic"):
		return "panic"
	case errors.As(err, &pgErr):
		return "db"
	case errors.Is(err, redis.Nil), errors.Is(err, redis.ErrClosed):
		return "redis"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "unknown"
}
