package auth

import (
	"net/http"
	"strings"
	"unicode"
)

const (
	DefaultHeader = "Authorization"
	DefaultScheme = "Bearer"
)

// TokenExtractor locates the credential on an inbound request. The header is
// consulted first; QueryParam, when set, is the fallback. A Scheme of "-"
// takes the header value as-is.
type TokenExtractor struct {
	Header     string
	Scheme     string
	QueryParam string
}

// Extract returns the raw token and true, or "" and false when the request carries
// none. A header with a different scheme counts as no token.
func (e TokenExtractor) Extract(r *http.Request) (string, bool) {
	header := e.Header
	if header == "" {
		header = DefaultHeader
	}

	if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
		if token, ok := e.stripScheme(value); ok {
			return token, true
		}
	}

	if e.QueryParam != "" {
		if token := strings.TrimSpace(r.URL.Query().Get(e.QueryParam)); token != "" {
			return token, true
		}
	}

	return "", false
}

func (e TokenExtractor) stripScheme(value string) (string, bool) {
	scheme := e.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	if scheme == "-" {
		return value, true
	}

	i := strings.IndexFunc(value, unicode.IsSpace)
	if i < 0 || !strings.EqualFold(value[:i], scheme) {
		return "", false
	}
	token := strings.TrimSpace(value[i:])
	return token, token != ""
}
