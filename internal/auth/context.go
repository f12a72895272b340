package auth

import "context"

type contextKey string

const authContextKey contextKey = "auth_context"

// AuthContext is what the gate hands to downstream handlers.
// User is nil when the request bypassed verification.
type AuthContext struct {
	User Claims `json:"user"`
}

// Bypassed reports whether the request was admitted without a token
func (a *AuthContext) Bypassed() bool {
	return a.User == nil
}

// WithAuthContext stores authCtx in ctx
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// GetAuthContext retrieves the AuthContext set by the middleware
func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey).(*AuthContext)
	return authCtx, ok
}
