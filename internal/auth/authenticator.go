package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type Options struct {
	Extractor TokenExtractor
	Observer  Observer
	// ClientIP resolves the originating address recorded on identities. A nil
	// resolver uses the direct peer address.
	ClientIP *ClientIPResolver
	// PreflightPassthrough forwards OPTIONS requests to the next handler instead
	// of answering them with 200 directly.
	PreflightPassthrough bool
}

// Authenticator classifies each request as anonymous or authenticated and records
// the result in the request's SecurityContext. It never rejects a request.
type Authenticator struct {
	extractor            TokenExtractor
	verifier             Verifier
	observer             Observer
	clientIP             *ClientIPResolver
	preflightPassthrough bool
}

func NewAuthenticator(verifier Verifier, opts Options) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("auth: verifier is nil")
	}
	observer := opts.Observer
	if observer == nil {
		observer = Observers{}
	}

	return &Authenticator{
		extractor:            opts.Extractor,
		verifier:             verifier,
		observer:             observer,
		clientIP:             opts.ClientIP,
		preflightPassthrough: opts.PreflightPassthrough,
	}, nil
}

// Authenticate runs the decision procedure for r and returns the request that
// downstream handlers must use. Verification failures are reported to the
// observer and otherwise swallowed.
func (a *Authenticator) Authenticate(r *http.Request) *http.Request {
	ctx, details := a.requestDetails(r)

	if isPreflight(r) {
		a.observer.Preflight(ctx, details)
		return r.WithContext(ctx)
	}

	sc, ok := SecurityContextFromContext(ctx)
	if !ok {
		sc = NewSecurityContext()
		ctx = WithSecurityContext(ctx, sc)
	}
	r = r.WithContext(ctx)

	if existing, held := sc.Identity(); held {
		a.observer.Retained(ctx, details, existing)
		return r
	}

	token, ok := a.extractor.Extract(r)
	if !ok {
		a.observer.Anonymous(ctx, details, ErrTokenAbsent)
		return r
	}

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.observer.Anonymous(ctx, details, err)
		return r
	}

	id := Identity{
		Subject:     claims.Subject,
		Authorities: claims.Authorities,
		Claims:      claims,
		Details:     details,
	}
	if !sc.SetIdentity(id) {
		existing, _ := sc.Identity()
		a.observer.Retained(ctx, details, existing)
		return r
	}

	a.observer.Authenticated(ctx, id)
	return r
}

// Middleware wraps next with the authenticator. Pre-flight requests get the CORS
// header set and, unless passthrough is enabled, an explicit 200.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCORSHeaders(w.Header())

		r = a.Authenticate(r)
		if id := RequestIDFromContext(r.Context()); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}

		if isPreflight(r) && !a.preflightPassthrough {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) requestDetails(r *http.Request) (context.Context, RequestDetails) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		ctx = WithRequestID(ctx, requestID)
	}

	remote := remoteHost(r.RemoteAddr)
	if a.clientIP != nil {
		remote = a.clientIP.Resolve(r)
	}

	return ctx, RequestDetails{
		RemoteAddr: remote,
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
	}
}
