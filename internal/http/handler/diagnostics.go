package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"authgate/internal/http/httperr"
	"authgate/internal/observability/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Check states reported per backend
const (
	CheckOK            = "ok"
	CheckError         = "error"
	CheckNotConfigured = "not_configured"
)

// DBPool is the part of *pgxpool.Pool the diagnostics need
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RedisPinger is the part of *redis.Client the diagnostics need
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// DiagnosticsHandler serves liveness, readiness and the backend diagnostic.
// Either backend may be nil when it is not configured.
type DiagnosticsHandler struct {
	pool  DBPool
	redis RedisPinger
}

// NewDiagnosticsHandler creates a handler over the optional backends
func NewDiagnosticsHandler(pool DBPool, redis RedisPinger) *DiagnosticsHandler {
	return &DiagnosticsHandler{pool: pool, redis: redis}
}

// DiagnosticsResponse is the body of GET /api/test-db
type DiagnosticsResponse struct {
	OK       bool   `json:"ok"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// Health reports liveness without touching any backend
// GET /health
func (h *DiagnosticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready fails with 503 as soon as a configured backend does not answer
// GET /ready
func (h *DiagnosticsHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.checkPostgres(ctx) == CheckError {
		httperr.ServiceUnavailable503(w, ctx, "database unavailable")
		return
	}
	if h.checkRedis(ctx) == CheckError {
		httperr.ServiceUnavailable503(w, ctx, "redis unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// TestDB runs SELECT 1 on Postgres and PING on Redis and reports both.
// The route sits on a bypassed path, so it answers without a token.
// GET /api/test-db
func (h *DiagnosticsHandler) TestDB(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := DiagnosticsResponse{
		Postgres: h.checkPostgres(ctx),
		Redis:    h.checkRedis(ctx),
	}
	resp.OK = resp.Postgres != CheckError && resp.Redis != CheckError

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *DiagnosticsHandler) checkPostgres(ctx context.Context) string {
	if h.pool == nil {
		return CheckNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var result int
	if err := h.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		fields := []logger.Field{
			logger.Module("diagnostics"),
			logger.Action("postgres_check"),
			zap.Error(err),
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
		logger.GetLogger(ctx).Error(ctx, "db_ping_failed", fields...)
		return CheckError
	}
	return CheckOK
}

func (h *DiagnosticsHandler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return CheckNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		logger.GetLogger(ctx).Error(ctx, "redis_ping_failed",
			logger.Module("diagnostics"),
			logger.Action("redis_check"),
			zap.Error(err),
		)
		return CheckError
	}
	return CheckOK
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
