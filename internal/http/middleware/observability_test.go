package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"authgate/internal/http/middleware"
	"authgate/internal/observability/logger"
	"authgate/internal/observability/requestid"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewWithCore("test-service", core), logs
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	handler := middleware.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestid.GetRequestID(r.Context())
		if !strings.HasPrefix(reqID, "req_") {
			t.Errorf("expected request ID to start with 'req_', got: %q", reqID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if respReqID := rec.Header().Get("X-Request-Id"); !strings.HasPrefix(respReqID, "req_") {
		t.Errorf("expected response X-Request-Id to start with 'req_', got: %q", respReqID)
	}
}

func TestRequestIDMiddleware_PreservesExistingID(t *testing.T) {
	const testReqID = "test-request-id-123"

	handler := middleware.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := requestid.GetRequestID(r.Context()); reqID != testReqID {
			t.Errorf("expected request ID %q, got %q", testReqID, reqID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", testReqID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if respReqID := rec.Header().Get("X-Request-Id"); respReqID != testReqID {
		t.Errorf("expected response X-Request-Id %q, got %q", testReqID, respReqID)
	}
}

func TestRequestLoggingMiddleware_LogsRequest(t *testing.T) {
	log, logs := newObservedLogger()

	handler := middleware.RequestIDMiddleware(middleware.RequestLoggingMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger.GetLogger(r.Context()) != log {
			t.Error("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("OK"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/test?foo=bar&token=abc", nil)
	req.Header.Set("Authorization", "Bearer should-not-appear")
	req.RemoteAddr = "10.0.0.7:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", fields["status"])
	}
	if fields["remote_addr"] != "10.0.0.7" {
		t.Errorf("expected port to be stripped, got %v", fields["remote_addr"])
	}
	if q, _ := fields["query"].(string); strings.Contains(q, "abc") {
		t.Errorf("expected token query param to be redacted, got %q", q)
	}
	if id, _ := fields["request_id"].(string); !strings.HasPrefix(id, "req_") {
		t.Errorf("expected request_id field, got %v", fields["request_id"])
	}
	for _, v := range fields {
		if s, ok := v.(string); ok && strings.Contains(s, "should-not-appear") {
			t.Errorf("authorization header leaked into logs: %q", s)
		}
	}
}

func TestRequestLoggingMiddleware_CapturesStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		httpErrors int
	}{
		{"200 OK", http.StatusOK, 0},
		{"401 Unauthorized", http.StatusUnauthorized, 0},
		{"404 Not Found", http.StatusNotFound, 0},
		{"503 Service Unavailable", http.StatusServiceUnavailable, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := newObservedLogger()
			handler := middleware.RequestLoggingMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

			if rec.Code != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, rec.Code)
			}
			if n := logs.FilterMessage("http_error").Len(); n != tt.httpErrors {
				t.Errorf("expected %d http_error logs, got %d", tt.httpErrors, n)
			}
		})
	}
}

func TestRecoveryMiddleware_RecoversPanic(t *testing.T) {
	log, logs := newObservedLogger()

	handler := middleware.RequestLoggingMiddleware(log)(
		middleware.RecoveryMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"Internal Server Error"}` {
		t.Errorf("unexpected body %q", body)
	}
	if logs.FilterMessage("panic_recovered").Len() != 1 {
		t.Error("expected panic_recovered log")
	}
	httpErrors := logs.FilterMessage("http_error").All()
	if len(httpErrors) != 1 {
		t.Fatalf("expected 1 http_error log, got %d", len(httpErrors))
	}
	if kind := httpErrors[0].ContextMap()["kind"]; kind != "panic" {
		t.Errorf("expected kind panic, got %v", kind)
	}
}

func TestRecoveryMiddleware_DoesNotAffectNormalFlow(t *testing.T) {
	handler := middleware.RecoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "success" {
		t.Errorf("expected body 'success', got %q", body)
	}
}

func BenchmarkRequestIDMiddleware(b *testing.B) {
	handler := middleware.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
