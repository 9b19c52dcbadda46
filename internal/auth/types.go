package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the decoded payload of a verified token. The subject is the username.
type Claims struct {
	Authorities []string `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// RequestDetails describes the request an identity was established on.
type RequestDetails struct {
	RemoteAddr string
	RequestID  string
	Method     string
	Path       string
}

type Identity struct {
	Subject     string
	Authorities []string
	Claims      Claims
	Details     RequestDetails
}

// HasAuthority reports whether the identity was granted the named authority.
func (id Identity) HasAuthority(name string) bool {
	for _, a := range id.Authorities {
		if a == name {
			return true
		}
	}
	return false
}
