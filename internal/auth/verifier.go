package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates compact tokens against a shared secret
type TokenVerifier interface {
	Verify(token string, secret []byte) (Claims, error)
}

// HS256Verifier checks HMAC-SHA256 signed compact tokens and their exp claim
type HS256Verifier struct {
	now func() time.Time
}

// VerifierOption configures an HS256Verifier
type VerifierOption func(*HS256Verifier)

// WithClock overrides the time source used for expiration checks
func WithClock(now func() time.Time) VerifierOption {
	return func(v *HS256Verifier) {
		v.now = now
	}
}

// NewHS256Verifier creates a new HS256 verifier
func NewHS256Verifier(opts ...VerifierOption) *HS256Verifier {
	v := &HS256Verifier{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultVerifier = NewHS256Verifier()

// Verify validates token with secret using the wall clock
func Verify(token string, secret []byte) (Claims, error) {
	return defaultVerifier.Verify(token, secret)
}

// Verify validates the structure, signature and expiration of token.
// Every failure is an *AuthError of kind KindInvalidToken.
func (v *HS256Verifier) Verify(token string, secret []byte) (Claims, error) {
	if len(secret) == 0 {
		return nil, invalidToken(FailureMissingSecret, nil)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, invalidToken(FailureMalformedToken, fmt.Errorf("expected 3 segments, got %d", len(parts)))
	}
	header, payload, signature := parts[0], parts[1], parts[2]
	if header == "" || payload == "" || signature == "" {
		return nil, invalidToken(FailureMalformedToken, errors.New("empty segment"))
	}

	sig, err := decodeSegment(signature)
	if err != nil {
		return nil, invalidToken(FailureMalformedToken, fmt.Errorf("failed to decode signature: %w", err))
	}

	// hmac.Equal inside the signing method, not a byte loop
	if err := jwt.SigningMethodHS256.Verify(header+"."+payload, sig, secret); err != nil {
		return nil, invalidToken(FailureInvalidSignature, err)
	}

	claims, err := decodeClaims(payload)
	if err != nil {
		return nil, invalidToken(FailureMalformedPayload, err)
	}

	exp, err := jwt.MapClaims(claims).GetExpirationTime()
	if err != nil {
		return nil, invalidToken(FailureMalformedPayload, fmt.Errorf("invalid exp claim: %w", err))
	}
	if exp == nil {
		return nil, invalidToken(FailureMissingExpiration, nil)
	}

	// exp == now is already expired
	if now := v.now().Unix(); exp.Unix() <= now {
		return nil, invalidToken(FailureTokenExpired, fmt.Errorf("exp %d <= now %d", exp.Unix(), now))
	}

	return claims, nil
}

// segmentDecoder decodes base64url with optional "=" padding. Strict decoding
// rejects non-canonical trailing bits, so a signature has a single valid encoding.
var segmentDecoder = jwt.NewParser(jwt.WithPaddingAllowed(), jwt.WithStrictDecoding())

func decodeSegment(seg string) ([]byte, error) {
	return segmentDecoder.DecodeSegment(seg)
}

func decodeClaims(seg string) (Claims, error) {
	raw, err := decodeSegment(seg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var claims Claims
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after payload object")
	}
	if claims == nil {
		return nil, errors.New("payload is not a JSON object")
	}

	return claims, nil
}
