package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/golang-jwt/jwt/v5"
)

var (
	testSecret = []byte("test-secret")
	testNow    = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
)

type staticKeyfunc struct {
	secret []byte
}

func (s staticKeyfunc) Keyfunc(_ *jwt.Token) (any, error) {
	return s.secret, nil
}

func (s staticKeyfunc) KeyfuncCtx(_ context.Context) jwt.Keyfunc {
	return s.Keyfunc
}

func (s staticKeyfunc) Storage() jwkset.Storage {
	return nil
}

func (s staticKeyfunc) VerificationKeySet(_ context.Context) (jwt.VerificationKeySet, error) {
	return jwt.VerificationKeySet{}, nil
}

func newTestVerifier(cfg VerifierConfig) *jwtVerifier {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	return newJWTVerifier(staticKeyfunc{secret: testSecret}, cfg, hmacMethods)
}

func signToken(t *testing.T, claims jwt.Claims, secret []byte) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// makeClaims returns claims for subject issued issuedAgo before testNow and
// expiring expiresIn after it.
func makeClaims(subject string, issuedAgo, expiresIn time.Duration) Claims {
	return Claims{
		Authorities: []string{"ROLE_USER"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-issuedAgo)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(expiresIn)),
		},
	}
}

type event struct {
	kind    string
	subject string
	reason  error
	details RequestDetails
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
}

func (o *recordingObserver) record(e event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) Preflight(_ context.Context, details RequestDetails) {
	o.record(event{kind: "preflight", details: details})
}

func (o *recordingObserver) Anonymous(_ context.Context, details RequestDetails, reason error) {
	o.record(event{kind: "anonymous", reason: reason, details: details})
}

func (o *recordingObserver) Authenticated(_ context.Context, id Identity) {
	o.record(event{kind: "authenticated", subject: id.Subject, details: id.Details})
}

func (o *recordingObserver) Retained(_ context.Context, details RequestDetails, existing Identity) {
	o.record(event{kind: "retained", subject: existing.Subject, details: details})
}

func (o *recordingObserver) only(t *testing.T) event {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(o.events), o.events)
	}
	return o.events[0]
}
