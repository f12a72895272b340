package handler

import (
	"net/http"

	"authgate/internal/auth"
	"authgate/internal/http/httperr"
)

// MeResponse echoes the admission result. User is null when the gate bypassed verification.
type MeResponse struct {
	User auth.Claims `json:"user"`
}

// Me returns the claims the gate attached to the request
// GET /api/me
func Me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.GetAuthContext(r.Context())
	if !ok {
		// mounted outside the gate
		httperr.InternalError500(w, r.Context(), "auth context missing on gated route")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{User: authCtx.User})
}
