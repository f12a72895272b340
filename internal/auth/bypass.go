package auth

import (
	"strings"

	"authgate/internal/config"
)

// ShouldBypass reports whether a request to requestPath skips verification.
// It is true when the kill switch disables the gate or when the path
// contains any configured bypass entry as a case-sensitive substring.
func ShouldBypass(requestPath string, cfg config.Admission) bool {
	if !cfg.Enabled() {
		return true
	}
	for _, p := range cfg.BypassPaths {
		// an empty entry would match every path
		if p == "" {
			continue
		}
		if strings.Contains(requestPath, p) {
			return true
		}
	}
	return false
}
