// ABOUTME: Tests for casbin-backed path authorization
// ABOUTME: Verifies public bypass, 401 for anonymous and 403 for USER on the admin prefix

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inkwell/internal/store"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	a, err := NewAuthorizer(DefaultAdminPrefix, NewPublicPaths(DefaultPublicPaths()), nil)
	require.NoError(t, err)
	return a
}

func TestAuthorizer_Policy(t *testing.T) {
	a := newTestAuthorizer(t)

	tests := []struct {
		role string
		path string
		want bool
	}{
		{"ADMIN", "/api/v1/admin/principals", true},
		{"ADMIN", "/api/v1/admin", true},
		{"ADMIN", "/api/v1/users/me", true},
		{"USER", "/api/v1/users/me", true},
		{"USER", "/api/v1/posts/42", true},
		{"USER", "/api/v1/admin/principals", false},
		{"USER", "/api/v1/admin", false},
		{"USER", "/api/v1/administrators", true},
		{"anonymous", "/api/v1/users/me", false},
		{"OWNER", "/api/v1/users/me", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Authorize(tt.role, tt.path, http.MethodGet), "%s %s", tt.role, tt.path)
	}
}

func TestAuthorizer_CustomPrefix(t *testing.T) {
	a, err := NewAuthorizer("/manage/", NewPublicPaths(nil), nil)
	require.NoError(t, err)

	assert.False(t, a.Authorize("USER", "/manage/users", http.MethodPost))
	assert.True(t, a.Authorize("USER", "/api/v1/admin/principals", http.MethodGet))
	assert.True(t, a.Authorize("ADMIN", "/manage/users", http.MethodPost))
}

func TestNewAuthorizer_RejectsRelativePrefix(t *testing.T) {
	_, err := NewAuthorizer("admin", nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRequireAuthorized(t *testing.T) {
	a := newTestAuthorizer(t)
	user := &store.Principal{ID: "u-1", Email: "ada@example.com", Role: store.RoleUser}
	admin := &store.Principal{ID: "a-1", Email: "root@example.com", Role: store.RoleAdmin}

	tests := []struct {
		name      string
		path      string
		principal *store.Principal
		want      int
		errMsg    string
	}{
		{"public anonymous", "/api/v1/health-check", nil, http.StatusOK, ""},
		{"protected anonymous", "/api/v1/users/me", nil, http.StatusUnauthorized, "not authenticated"},
		{"protected user", "/api/v1/users/me", user, http.StatusOK, ""},
		{"admin prefix user", "/api/v1/admin/principals", user, http.StatusForbidden, "access denied"},
		{"admin prefix admin", "/api/v1/admin/principals", admin, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()

			a.RequireAuthorized(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.errMsg != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.errMsg, body["error"])
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
