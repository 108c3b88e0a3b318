// ABOUTME: Security context for carrying the authenticated principal through a request
// ABOUTME: Provides WithPrincipal/FromContext/ClearPrincipal over context.Context

package auth

import (
	"context"

	"github.com/2389/inkwell/internal/store"
)

// SecurityContext holds the principal established for the current request.
type SecurityContext struct {
	Principal *store.Principal
}

// IsAdmin returns true if the principal holds the ADMIN role.
func (s *SecurityContext) IsAdmin() bool {
	return s != nil && s.Principal != nil && s.Principal.IsAdmin()
}

// Role returns the principal's role, or "anonymous" when unauthenticated.
func (s *SecurityContext) Role() string {
	if s == nil || s.Principal == nil {
		return roleAnonymous
	}
	return string(s.Principal.Role)
}

// securityContextKey is the key type for storing SecurityContext in context.Context.
type securityContextKey struct{}

// WithPrincipal returns a new context carrying p as the authenticated principal.
func WithPrincipal(ctx context.Context, p *store.Principal) context.Context {
	return context.WithValue(ctx, securityContextKey{}, &SecurityContext{Principal: p})
}

// ClearPrincipal returns a context in which no principal is established.
func ClearPrincipal(ctx context.Context) context.Context {
	if FromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, securityContextKey{}, (*SecurityContext)(nil))
}

// FromContext retrieves the SecurityContext, returning nil if no principal is established.
func FromContext(ctx context.Context) *SecurityContext {
	sc, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	if !ok || sc == nil || sc.Principal == nil {
		return nil
	}
	return sc
}
