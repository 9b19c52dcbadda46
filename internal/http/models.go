package http

import (
	"time"

	"github.com/Flarenzy/authgate/internal/auth"
)

// IdentityResponse describes the authenticated caller.
type IdentityResponse struct {
	Subject     string     `json:"subject" example:"alice"`
	Authorities []string   `json:"authorities" example:"ROLE_USER"`
	Issuer      string     `json:"issuer,omitempty" example:"https://auth.example.com"`
	IssuedAt    *time.Time `json:"issued_at,omitempty" example:"2024-05-10T15:04:05Z"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" example:"2024-05-10T16:04:05Z"`
	RemoteAddr  string     `json:"remote_addr" example:"203.0.113.9"`
	RequestID   string     `json:"request_id" example:"50e8400-e29b-41d4-a716-446655440000"`
}

// SessionResponse reports whether the current request is authenticated.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated" example:"true"`
	Subject       string `json:"subject,omitempty" example:"alice"`
	RequestID     string `json:"request_id" example:"50e8400-e29b-41d4-a716-446655440000"`
}

// ErrorResponse is a simple envelope for error messages.
type ErrorResponse struct {
	Error string `json:"error" example:"authentication required"`
}

func identityToResponse(id auth.Identity) IdentityResponse {
	authorities := id.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	resp := IdentityResponse{
		Subject:     id.Subject,
		Authorities: authorities,
		Issuer:      id.Claims.Issuer,
		RemoteAddr:  id.Details.RemoteAddr,
		RequestID:   id.Details.RequestID,
	}
	if id.Claims.IssuedAt != nil {
		t := id.Claims.IssuedAt.UTC()
		resp.IssuedAt = &t
	}
	if id.Claims.ExpiresAt != nil {
		t := id.Claims.ExpiresAt.UTC()
		resp.ExpiresAt = &t
	}
	return resp
}
