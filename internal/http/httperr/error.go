package httperr

import (
	"context"
	"encoding/json"
	"net/http"

	"authgate/internal/observability/logger"

	"go.uber.org/zap"
)

// ErrorResponse is the body of every error response: {"error": "<message>"}
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response with the given status
func WriteError(w http.ResponseWriter, ctx context.Context, status int, message string) {
	log := logger.GetLogger(ctx)
	log.Debug(ctx, "request failed",
		logger.Module("http"),
		logger.Action("write_error"),
		zap.Int("status_code", status),
		zap.String("message", message),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// Unauthorized401 writes a 401 Unauthorized response
func Unauthorized401(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusUnauthorized, message)
}

// ServiceUnavailable503 writes a 503 Service Unavailable response
func ServiceUnavailable503(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusServiceUnavailable, message)
}

// InternalError500 writes a 500 response. The message is logged, the
// client only sees a generic text.
func InternalError500(w http.ResponseWriter, ctx context.Context, message string) {
	log := logger.GetLogger(ctx)
	log.Error(ctx, "internal server error",
		logger.Module("http"),
		logger.Action("write_error"),
		zap.String("message", message),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "Internal Server Error"})
}

// InternalError writes a 500 with a default log message
func InternalError(w http.ResponseWriter, ctx context.Context) {
	InternalError500(w, ctx, "internal server error")
}
