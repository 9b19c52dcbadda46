package auth

import (
	"context"
	"sync"
)

// SecurityContext holds at most one Identity for the lifetime of a single request.
// Once an identity is set it cannot be replaced.
type SecurityContext struct {
	mu       sync.RWMutex
	identity *Identity
}

func NewSecurityContext() *SecurityContext {
	return &SecurityContext{}
}

// Identity returns the held identity, if any.
func (sc *SecurityContext) Identity() (Identity, bool) {
	if sc == nil {
		return Identity{}, false
	}
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.identity == nil {
		return Identity{}, false
	}
	return *sc.identity, true
}

// SetIdentity installs id if the context is empty and reports whether it did.
func (sc *SecurityContext) SetIdentity(id Identity) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.identity != nil {
		return false
	}
	sc.identity = &id
	return true
}

type securityContextKey struct{}

func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

func SecurityContextFromContext(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	return sc, ok && sc != nil
}

// IdentityFromContext returns the authenticated identity of the current request.
// It returns false for anonymous requests and for contexts that never passed
// through the authenticator.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	sc, ok := SecurityContextFromContext(ctx)
	if !ok {
		return Identity{}, false
	}
	return sc.Identity()
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
