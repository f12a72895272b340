package auth

import "errors"

// ErrorKind is the externally observable failure category
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindInvalidToken      ErrorKind = "invalid_token"
)

// Public messages. The response body never says more than these.
const (
	MessageNoToken      = "No token provided"
	MessageInvalidToken = "Invalid token"
)

// FailureReason is the internal cause of a rejection, logged but never returned
type FailureReason string

const (
	FailureMissingAuthorization FailureReason = "missing_authorization"
	FailureInvalidScheme        FailureReason = "invalid_scheme"
	FailureMalformedToken       FailureReason = "malformed_token"
	FailureInvalidSignature     FailureReason = "invalid_signature"
	FailureMalformedPayload     FailureReason = "malformed_payload"
	FailureMissingExpiration    FailureReason = "missing_expiration"
	FailureTokenExpired         FailureReason = "token_expired"
	FailureMissingSecret        FailureReason = "missing_secret"
	FailureInternal             FailureReason = "internal"
)

// AuthError is the single failure type of the gate.
// Error() returns only the public message of its Kind.
type AuthError struct {
	Kind   ErrorKind
	Reason FailureReason
	Err    error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Kind == KindMissingCredential {
		return MessageNoToken
	}
	return MessageInvalidToken
}

// Unwrap exposes the internal cause for logging
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Detail renders reason and cause for logs. Do not send it to clients.
func (e *AuthError) Detail() string {
	if e.Err != nil {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return string(e.Reason)
}

func invalidToken(reason FailureReason, err error) *AuthError {
	return &AuthError{Kind: KindInvalidToken, Reason: reason, Err: err}
}

func missingCredential(reason FailureReason) *AuthError {
	return &AuthError{Kind: KindMissingCredential, Reason: reason}
}

// IsAuthError checks if an error is an AuthError and returns it
func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// maskToken keeps the first 12 characters of a token for safe logging
func maskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:12] + "..."
}
