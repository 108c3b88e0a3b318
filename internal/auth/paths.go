// ABOUTME: Public path allowlist shared by the HTTP gate, the authorizer and gRPC interceptors
// ABOUTME: Patterns use casbin keyMatch syntax where a trailing * matches any suffix

package auth

import (
	"github.com/casbin/casbin/v2/util"
)

// DefaultPublicPaths are reachable without a token.
func DefaultPublicPaths() []string {
	return []string{
		"/api/v1/auth",
		"/api/v1/auth/*",
		"/api/v1/health-check",
		"/v3/api-docs",
		"/v3/api-docs/*",
		"/swagger-ui",
		"/swagger-ui/*",
	}
}

// DefaultPublicMethods are gRPC methods reachable without a token.
func DefaultPublicMethods() []string {
	return []string{"/grpc.health.v1.Health/*"}
}

// PublicPaths matches request paths against an allowlist.
type PublicPaths struct {
	patterns []string
}

// NewPublicPaths creates a matcher over patterns.
func NewPublicPaths(patterns []string) *PublicPaths {
	p := make([]string, len(patterns))
	copy(p, patterns)
	return &PublicPaths{patterns: p}
}

// Match reports whether path is public.
func (p *PublicPaths) Match(path string) bool {
	if p == nil {
		return false
	}
	for _, pattern := range p.patterns {
		if util.KeyMatch(path, pattern) {
			return true
		}
	}
	return false
}
