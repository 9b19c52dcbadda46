package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T, opts Options) (*Authenticator, *recordingObserver) {
	t.Helper()

	observer := &recordingObserver{}
	if opts.Observer == nil {
		opts.Observer = observer
	}
	a, err := NewAuthenticator(newTestVerifier(VerifierConfig{}), opts)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return a, observer
}

func newBearerRequest(method, token string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestNewAuthenticatorRequiresVerifier(t *testing.T) {
	if _, err := NewAuthenticator(nil, Options{}); err == nil {
		t.Fatal("expected error for nil verifier")
	}
}

func TestAuthenticateWithoutTokenIsAnonymous(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})

	req := a.Authenticate(newBearerRequest(http.MethodGet, ""))

	sc, ok := SecurityContextFromContext(req.Context())
	if !ok {
		t.Fatal("expected security context to be attached")
	}
	if _, held := sc.Identity(); held {
		t.Fatal("expected empty security context")
	}
	e := observer.only(t)
	if e.kind != "anonymous" || !errors.Is(e.reason, ErrTokenAbsent) {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuthenticateValidTokenInstallsIdentity(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)

	req := newBearerRequest(http.MethodGet, token)
	req.RemoteAddr = "198.51.100.7:51234"
	req = a.Authenticate(req)

	id, ok := IdentityFromContext(req.Context())
	if !ok {
		t.Fatal("expected identity in context")
	}
	if id.Subject != "alice" {
		t.Fatalf("expected subject alice, got %q", id.Subject)
	}
	if !id.HasAuthority("ROLE_USER") {
		t.Fatalf("expected ROLE_USER authority, got %v", id.Authorities)
	}
	if id.Details.RemoteAddr != "198.51.100.7" {
		t.Fatalf("unexpected remote addr: %q", id.Details.RemoteAddr)
	}
	if id.Details.RequestID == "" {
		t.Fatal("expected request id to be generated")
	}
	if e := observer.only(t); e.kind != "authenticated" || e.subject != "alice" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuthenticateExpiredTokenIsAnonymous(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", time.Hour, -5*time.Minute), testSecret)

	req := a.Authenticate(newBearerRequest(http.MethodGet, token))

	if _, ok := IdentityFromContext(req.Context()); ok {
		t.Fatal("expected no identity for expired token")
	}
	if e := observer.only(t); e.kind != "anonymous" || !errors.Is(e.reason, ErrExpired) {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuthenticateTokenExpiredSecondsAgoIsAnonymous(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", time.Hour, -3*time.Second), testSecret)

	req := a.Authenticate(newBearerRequest(http.MethodGet, token))

	if id, ok := IdentityFromContext(req.Context()); ok {
		t.Fatalf("expected no identity for token expired 3s ago, got %q", id.Subject)
	}
	if e := observer.only(t); e.kind != "anonymous" || !errors.Is(e.reason, ErrExpired) {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuthenticateExpiredAndBadlySignedTokenIsAnonymous(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", time.Hour, -5*time.Minute), []byte("other-secret"))

	req := a.Authenticate(newBearerRequest(http.MethodGet, token))

	if _, ok := IdentityFromContext(req.Context()); ok {
		t.Fatal("expected no identity")
	}
}

func TestAuthenticateTamperedTokenIsAnonymous(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), []byte("other-secret"))

	req := a.Authenticate(newBearerRequest(http.MethodGet, token))

	if _, ok := IdentityFromContext(req.Context()); ok {
		t.Fatal("expected no identity for tampered token")
	}
	if e := observer.only(t); !errors.Is(e.reason, ErrSignatureInvalid) {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuthenticateKeepsExistingIdentity(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)

	sc := NewSecurityContext()
	sc.SetIdentity(Identity{Subject: "bob"})
	req := newBearerRequest(http.MethodGet, token)
	req = req.WithContext(WithSecurityContext(req.Context(), sc))

	req = a.Authenticate(req)
	req = a.Authenticate(req)

	id, ok := IdentityFromContext(req.Context())
	if !ok || id.Subject != "bob" {
		t.Fatalf("expected bob to be kept, got %+v (ok=%v)", id, ok)
	}
	for _, e := range observer.events {
		if e.kind != "retained" || e.subject != "bob" {
			t.Fatalf("unexpected event: %+v", e)
		}
	}
}

func TestAuthenticateTwiceDoesNotOverwrite(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{})
	alice := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)
	carol := signToken(t, makeClaims("carol", 5*time.Minute, 55*time.Minute), testSecret)

	req := a.Authenticate(newBearerRequest(http.MethodGet, alice))
	req.Header.Set("Authorization", "Bearer "+carol)
	req = a.Authenticate(req)

	id, _ := IdentityFromContext(req.Context())
	if id.Subject != "alice" {
		t.Fatalf("expected alice, got %q", id.Subject)
	}
}

func TestSecurityContextSetIdentityOnce(t *testing.T) {
	sc := NewSecurityContext()
	if !sc.SetIdentity(Identity{Subject: "alice"}) {
		t.Fatal("expected first set to succeed")
	}
	if sc.SetIdentity(Identity{Subject: "bob"}) {
		t.Fatal("expected second set to be refused")
	}
	id, _ := sc.Identity()
	if id.Subject != "alice" {
		t.Fatalf("expected alice, got %q", id.Subject)
	}
}

func TestMiddlewarePreflightShortCircuits(t *testing.T) {
	a, observer := newTestAuthenticator(t, Options{})
	called := false
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)
	req := newBearerRequest(http.MethodOptions, token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if called {
		t.Fatal("expected downstream handler not to be called")
	}
	assertCORSHeaders(t, rec.Header())
	if e := observer.only(t); e.kind != "preflight" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestMiddlewarePreflightPassthroughLeavesContextUntouched(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{PreflightPassthrough: true})
	called := false
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := SecurityContextFromContext(r.Context()); ok {
			t.Fatal("expected no security context on preflight")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newBearerRequest(http.MethodOptions, token))

	if !called {
		t.Fatal("expected downstream handler to be called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected %d, got %d", http.StatusNoContent, rec.Code)
	}
	assertCORSHeaders(t, rec.Header())
}

func TestMiddlewareNeverRejects(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{})
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatal("expected anonymous request")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, token := range []string{"", "not-a-jwt", signToken(t, makeClaims("alice", time.Hour, -time.Hour), testSecret)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newBearerRequest(http.MethodGet, token))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("token %q: expected %d, got %d", token, http.StatusNoContent, rec.Code)
		}
		assertCORSHeaders(t, rec.Header())
	}
}

func TestMiddlewareEchoesRequestID(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{})
	var seen string
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := newBearerRequest(http.MethodGet, "")
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "req-123" {
		t.Fatalf("expected request id req-123 in context, got %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestAuthenticateUsesTrustedProxyAddress(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	a, _ := newTestAuthenticator(t, Options{ClientIP: resolver})
	token := signToken(t, makeClaims("alice", 5*time.Minute, 55*time.Minute), testSecret)

	req := newBearerRequest(http.MethodGet, token)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.4.4.4")
	req = a.Authenticate(req)

	id, ok := IdentityFromContext(req.Context())
	if !ok {
		t.Fatal("expected identity")
	}
	if id.Details.RemoteAddr != "203.0.113.9" {
		t.Fatalf("expected forwarded client address, got %q", id.Details.RemoteAddr)
	}
}

func TestAuthenticateIsolatesConcurrentRequests(t *testing.T) {
	a, _ := newTestAuthenticator(t, Options{Observer: Observers{}})
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(id.Subject))
	}))

	const workers = 32
	tokens := make([]string, workers)
	for i := range tokens {
		tokens[i] = signToken(t, makeClaims(fmt.Sprintf("user-%d", i), time.Minute, time.Hour), testSecret)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, newBearerRequest(http.MethodGet, tokens[i]))
			if want := fmt.Sprintf("user-%d", i); rec.Body.String() != want {
				errs <- fmt.Errorf("expected %q, got %q", want, rec.Body.String())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func assertCORSHeaders(t *testing.T, h http.Header) {
	t.Helper()

	want := map[string]string{
		"Access-Control-Allow-Origin":      "*",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Allow-Headers":     "Content-Type, Content-Length, Authorization, Admin-Token, Accept, X-Requested-With",
		"Access-Control-Allow-Methods":     "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Max-Age":           "3600",
		"Access-Control-Expose-Headers":    "*",
	}
	for name, value := range want {
		if got := h.Get(name); got != value {
			t.Fatalf("header %s: expected %q, got %q", name, value, got)
		}
	}
}
