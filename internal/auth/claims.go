package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded token payload, kept exactly as sent.
// Numbers are json.Number so integer claims are not rounded.
type Claims map[string]any

// Subject returns the "sub" claim or ""
func (c Claims) Subject() string {
	sub, _ := jwt.MapClaims(c).GetSubject()
	return sub
}

// ExpiresAt returns the "exp" claim as Unix seconds
func (c Claims) ExpiresAt() (int64, bool) {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return exp.Unix(), true
}
