// ABOUTME: Tests for the public path allowlist
// ABOUTME: Exercises keyMatch prefix semantics on the default patterns

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicPaths_Defaults(t *testing.T) {
	public := NewPublicPaths(DefaultPublicPaths())

	tests := []struct {
		path string
		want bool
	}{
		{"/api/v1/auth/login", true},
		{"/api/v1/auth/signup", true},
		{"/api/v1/auth/refresh-token", true},
		{"/api/v1/auth", true},
		{"/api/v1/health-check", true},
		{"/v3/api-docs", true},
		{"/v3/api-docs/swagger-config", true},
		{"/swagger-ui/index.html", true},
		{"/api/v1/authors", false},
		{"/api/v1/users/me", false},
		{"/api/v1/admin/principals", false},
		{"/", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, public.Match(tt.path), tt.path)
	}
}

func TestPublicPaths_NilNeverMatches(t *testing.T) {
	var public *PublicPaths
	assert.False(t, public.Match("/api/v1/auth/login"))
}

func TestPublicPaths_CopiesInput(t *testing.T) {
	patterns := []string{"/open"}
	public := NewPublicPaths(patterns)
	patterns[0] = "/changed"

	assert.True(t, public.Match("/open"))
	assert.False(t, public.Match("/changed"))
}
