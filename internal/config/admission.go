package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultBypassPaths are the routes that never require a token:
// login, verification-code sending and the database diagnostic.
var DefaultBypassPaths = []string{"/login", "/sendcode", "/test-db"}

// Admission is the request-gating configuration.
// It is read for every request and never mutated by the gate.
type Admission struct {
	// AuthAccess enables verification. Empty, "0", "false" and "off" disable it.
	AuthAccess string `env:"AUTH_ACCESS"`

	// Secret is the shared HMAC-SHA256 key. Never log it.
	Secret string `env:"JWT_SECRET"`

	// BypassPaths are matched as case-sensitive substrings of the request path.
	BypassPaths []string `env:"AUTH_BYPASS_PATHS" envDefault:"/login,/sendcode,/test-db" envSeparator:","`
}

// Enabled reports whether the kill switch leaves verification on
func (a Admission) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(a.AuthAccess)) {
	case "", "0", "false", "off":
		return false
	default:
		return true
	}
}

// SecretBytes returns the HMAC key
func (a Admission) SecretBytes() []byte {
	return []byte(a.Secret)
}

// AdmissionSource yields the admission configuration for one request
type AdmissionSource interface {
	Admission() (Admission, error)
}

// AdmissionFunc adapts a function to AdmissionSource
type AdmissionFunc func() (Admission, error)

// Admission implements AdmissionSource
func (f AdmissionFunc) Admission() (Admission, error) {
	return f()
}

// EnvAdmission re-reads AUTH_ACCESS, JWT_SECRET and AUTH_BYPASS_PATHS on every call,
// so flipping the kill switch takes effect without a restart.
func EnvAdmission() AdmissionSource {
	return AdmissionFunc(LoadAdmission)
}

// LoadAdmission parses the admission variables from the environment
func LoadAdmission() (Admission, error) {
	var a Admission
	if err := env.Parse(&a); err != nil {
		return Admission{}, fmt.Errorf("failed to parse admission config: %w", err)
	}
	return a, nil
}

// StaticAdmission always returns the same configuration
func StaticAdmission(a Admission) AdmissionSource {
	return AdmissionFunc(func() (Admission, error) {
		return a, nil
	})
}
