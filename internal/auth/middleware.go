package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"authgate/internal/config"
	"authgate/internal/http/httperr"
	"authgate/internal/observability/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// Outcome is the terminal decision for one request
type Outcome string

const (
	OutcomeBypassed Outcome = "bypassed"
	OutcomeAdmitted Outcome = "admitted"
	OutcomeRejected Outcome = "rejected"
)

// Recorder receives every admission decision
type Recorder interface {
	RecordAdmission(ctx context.Context, outcome Outcome, reason FailureReason)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmission(context.Context, Outcome, FailureReason) {}

// Gate composes the bypass evaluator and the token verifier
type Gate struct {
	source   config.AdmissionSource
	verifier TokenVerifier
	recorder Recorder
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithVerifier replaces the HS256 verifier
func WithVerifier(v TokenVerifier) GateOption {
	return func(g *Gate) {
		g.verifier = v
	}
}

// WithRecorder installs a decision recorder (metrics)
func WithRecorder(r Recorder) GateOption {
	return func(g *Gate) {
		if r != nil {
			g.recorder = r
		}
	}
}

// NewGate creates a Gate reading its configuration from source on every request
func NewGate(source config.AdmissionSource, opts ...GateOption) *Gate {
	g := &Gate{
		source:   source,
		verifier: defaultVerifier,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decides a single request. A bypassed request yields an AuthContext
// with a nil User; a rejected one yields an *AuthError.
func (g *Gate) Admit(r *http.Request, cfg config.Admission) (authCtx *AuthContext, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			authCtx = nil
			err = invalidToken(FailureInternal, fmt.Errorf("panic: %v", rec))
		}
	}()

	if ShouldBypass(r.URL.Path, cfg) {
		return &AuthContext{User: nil}, nil
	}

	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	claims, err := g.verifier.Verify(token, cfg.SecretBytes())
	if err != nil {
		if _, ok := IsAuthError(err); ok {
			return nil, err
		}
		return nil, invalidToken(FailureInternal, err)
	}

	return &AuthContext{User: claims}, nil
}

// extractBearerToken returns the credential following "Bearer ",
// up to the next space.
func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", missingCredential(FailureMissingAuthorization)
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", missingCredential(FailureInvalidScheme)
	}
	token := strings.TrimPrefix(header, bearerPrefix)
	if i := strings.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	return token, nil
}

// Middleware returns the gate as chi-compatible middleware
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.GetLogger(ctx)
		span := trace.SpanFromContext(ctx)

		cfg, err := g.source.Admission()
		if err != nil {
			log.Error(ctx, "admission config unavailable",
				logger.Module("auth"),
				logger.Action("admit"),
				zap.Error(err),
			)
			g.reject(w, r, invalidToken(FailureInternal, err), "")
			return
		}

		authCtx, err := g.Admit(r, cfg)
		if err != nil {
			g.reject(w, r, err, r.Header.Get("Authorization"))
			return
		}

		ctx = WithAuthContext(ctx, authCtx)

		if authCtx.Bypassed() {
			span.SetAttributes(attribute.String("auth.outcome", string(OutcomeBypassed)))
			g.recorder.RecordAdmission(ctx, OutcomeBypassed, "")
			log.Debug(ctx, "verification skipped",
				logger.Module("auth"),
				logger.Action("bypass"),
				zap.Bool("auth_enabled", cfg.Enabled()),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if sub := authCtx.User.Subject(); sub != "" {
			ctx = logger.SetUserIDInContext(ctx, sub)
		}
		span.SetAttributes(attribute.String("auth.outcome", string(OutcomeAdmitted)))
		g.recorder.RecordAdmission(ctx, OutcomeAdmitted, "")
		log.Info(ctx, "authenticated request",
			logger.Module("auth"),
			logger.Action("admit"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error, authHeader string) {
	ctx := r.Context()

	authErr, ok := IsAuthError(err)
	if !ok {
		authErr = invalidToken(FailureInternal, err)
	}

	fields := []logger.Field{
		logger.Module("auth"),
		logger.Action("reject"),
		zap.String("auth_failure_reason", string(authErr.Reason)),
		zap.String("detail", authErr.Detail()),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if authHeader != "" {
		fields = append(fields, zap.String("token_prefix", maskToken(strings.TrimPrefix(authHeader, bearerPrefix))))
	}
	logger.GetLogger(ctx).Warn(ctx, "authentication failed", fields...)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("auth.outcome", string(OutcomeRejected)))
	span.AddEvent("auth_rejected", trace.WithAttributes(attribute.String("reason", string(authErr.Reason))))
	g.recorder.RecordAdmission(ctx, OutcomeRejected, authErr.Reason)

	httperr.Unauthorized401(w, ctx, authErr.Error())
}

// Admit decides r with the default HS256 verifier
func Admit(r *http.Request, cfg config.Admission) (*AuthContext, error) {
	return (&Gate{verifier: defaultVerifier, recorder: nopRecorder{}}).Admit(r, cfg)
}

// Middleware builds a Gate and returns its middleware
func Middleware(source config.AdmissionSource, opts ...GateOption) func(http.Handler) http.Handler {
	return NewGate(source, opts...).Middleware
}
