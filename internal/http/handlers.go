package http

import (
	"net/http"

	"github.com/Flarenzy/authgate/internal/auth"
)

// @Summary Health check
// @Tags health
// @Success 200 {string} string "ok"
// @Router /healthz [get]
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// @Summary Readiness check
// @Tags health
// @Success 200 {string} string "ready"
// @Failure 503 {string} string "db unavailable"
// @Router /readyz [get]
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.Health != nil {
		if err := a.Health.Ping(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "db ping failed", "err", err)
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// @Summary Current identity
// @Description Returns the identity established from the bearer token.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} IdentityResponse
// @Failure 401 {object} ErrorResponse
// @Router /me [get]
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		err := encode(w, r, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		if err != nil {
			a.Logger.ErrorContext(ctx, "responding to client", "err", err.Error())
		}
		return
	}

	err := encode(w, r, http.StatusOK, identityToResponse(id))
	if err != nil {
		a.Logger.ErrorContext(ctx, "responding to client", "err", err.Error())
	}
}

// @Summary Session state
// @Description Reports whether the request is authenticated. Never rejects.
// @Tags auth
// @Produce json
// @Success 200 {object} SessionResponse
// @Router /session [get]
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := SessionResponse{RequestID: auth.RequestIDFromContext(ctx)}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		resp.Authenticated = true
		resp.Subject = id.Subject
	}

	err := encode(w, r, http.StatusOK, resp)
	if err != nil {
		a.Logger.ErrorContext(ctx, "responding to client", "err", err.Error())
	}
}
