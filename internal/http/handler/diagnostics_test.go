package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = 1
	return nil
}

type fakePool struct {
	err     error
	queries []string
}

func (p *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	p.queries = append(p.queries, sql)
	return fakeRow{err: p.err}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func decodeDiagnostics(t *testing.T, rec *httptest.ResponseRecorder) DiagnosticsResponse {
	t.Helper()
	var resp DiagnosticsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestDiagnosticsHandler_TestDB_AllHealthy(t *testing.T) {
	pool := &fakePool{}
	_, client := newRedis(t)
	h := NewDiagnosticsHandler(pool, client)

	rec := httptest.NewRecorder()
	h.TestDB(rec, httptest.NewRequest(http.MethodGet, "/api/test-db", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, DiagnosticsResponse{OK: true, Postgres: CheckOK, Redis: CheckOK}, decodeDiagnostics(t, rec))
	assert.Equal(t, []string{"SELECT 1"}, pool.queries)
}

func TestDiagnosticsHandler_TestDB_NotConfigured(t *testing.T) {
	h := NewDiagnosticsHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.TestDB(rec, httptest.NewRequest(http.MethodGet, "/api/test-db", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DiagnosticsResponse{OK: true, Postgres: CheckNotConfigured, Redis: CheckNotConfigured}, decodeDiagnostics(t, rec))
}

func TestDiagnosticsHandler_TestDB_PostgresDown(t *testing.T) {
	pool := &fakePool{err: &pgconn.PgError{Code: "57P01", Message: "terminating connection"}}
	_, client := newRedis(t)
	h := NewDiagnosticsHandler(pool, client)

	rec := httptest.NewRecorder()
	h.TestDB(rec, httptest.NewRequest(http.MethodGet, "/api/test-db", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, DiagnosticsResponse{OK: false, Postgres: CheckError, Redis: CheckOK}, decodeDiagnostics(t, rec))
}

func TestDiagnosticsHandler_TestDB_RedisDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	h := NewDiagnosticsHandler(&fakePool{}, client)

	rec := httptest.NewRecorder()
	h.TestDB(rec, httptest.NewRequest(http.MethodGet, "/api/test-db", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, DiagnosticsResponse{OK: false, Postgres: CheckOK, Redis: CheckError}, decodeDiagnostics(t, rec))
}

func TestDiagnosticsHandler_Health(t *testing.T) {
	h := NewDiagnosticsHandler(&fakePool{err: errors.New("down")}, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDiagnosticsHandler_Ready(t *testing.T) {
	tests := []struct {
		name   string
		pool   DBPool
		status int
		body   string
	}{
		{"no backends", nil, http.StatusOK, `{"status":"ready"}`},
		{"postgres up", &fakePool{}, http.StatusOK, `{"status":"ready"}`},
		{"postgres down", &fakePool{err: errors.New("connection refused")}, http.StatusServiceUnavailable, `{"error":"database unavailable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDiagnosticsHandler(tt.pool, nil)

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestDiagnosticsHandler_Ready_RedisDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	h := NewDiagnosticsHandler(&fakePool{}, client)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"redis unavailable"}`, rec.Body.String())
}
