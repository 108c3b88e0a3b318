// ABOUTME: Path authorization backed by a casbin enforcer with an in-memory policy
// ABOUTME: Public paths bypass, the admin prefix needs ADMIN, everything else needs any principal

package auth

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed authz_model.conf
var authzModel string

const roleAnonymous = "anonymous"

// DefaultAdminPrefix is the path prefix reserved for ADMIN principals.
const DefaultAdminPrefix = "/api/v1/admin"

// Authorizer decides whether a role may perform an action on a path.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
	public   *PublicPaths
	logger   *slog.Logger
}

// NewAuthorizer builds the policy: ADMIN and USER may reach every path, USER is
// denied under adminPrefix.
func NewAuthorizer(adminPrefix string, public *PublicPaths, logger *slog.Logger) (*Authorizer, error) {
	adminPrefix = strings.TrimRight(adminPrefix, "/")
	if adminPrefix == "" {
		adminPrefix = DefaultAdminPrefix
	}
	if !strings.HasPrefix(adminPrefix, "/") {
		return nil, fmt.Errorf("%w: admin path prefix must start with /", ErrConfiguration)
	}

	m, err := model.NewModelFromString(authzModel)
	if err != nil {
		return nil, fmt.Errorf("parse authz model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create authz enforcer: %w", err)
	}

	policies := [][]string{
		{"ADMIN", "/*", "*", "allow"},
		{"USER", "/*", "*", "allow"},
		{"USER", adminPrefix, "*", "deny"},
		{"USER", adminPrefix + "/*", "*", "deny"},
	}
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("load authz policy: %w", err)
	}

	return &Authorizer{enforcer: enforcer, public: public, logger: logger}, nil
}

// Authorize reports whether role may perform action on obj.
func (a *Authorizer) Authorize(role, obj, action string) bool {
	ok, err := a.enforcer.Enforce(role, obj, action)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("authz enforce failed", "error", err, "role", role, "obj", obj)
		}
		return false
	}
	return ok
}

// IsPublic reports whether path bypasses authorization.
func (a *Authorizer) IsPublic(path string) bool {
	return a.public.Match(path)
}

// RequireAuthorized is HTTP middleware placed after the Gate. It answers 401
// when no principal was established and 403 when the role is denied.
func (a *Authorizer) RequireAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sc := FromContext(r.Context())
		if sc == nil {
			logHTTPAuthFailure(a.logger, r, "not_authenticated")
			writeAuthError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		if !a.Authorize(sc.Role(), r.URL.Path, r.Method) {
			logHTTPAuthFailure(a.logger, r, "forbidden", "principal_id", sc.Principal.ID, "role", sc.Role())
			writeAuthError(w, http.StatusForbidden, "access denied")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
