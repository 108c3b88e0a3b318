// ABOUTME: Request gate that turns a bearer token into an authenticated principal
// ABOUTME: Never rejects a request; unauthenticated requests continue as anonymous

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/inkwell/internal/store"
)

// Failure reasons logged by the gate.
const (
	reasonTokenVerification = "token_verification_failed"
	reasonPrincipalLookup   = "principal_lookup_failed"
	reasonTokenRejected     = "token_rejected"
	reasonAccountUnusable   = "account_unavailable"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Gate establishes the request principal from a bearer token. The principal
// and its role are re-read from the directory on every request.
type Gate struct {
	directory store.Directory
	codec     *Codec
	public    *PublicPaths
	logger    *slog.Logger
}

// NewGate creates a Gate. A nil logger disables failure logging.
func NewGate(directory store.Directory, codec *Codec, public *PublicPaths, logger *slog.Logger) *Gate {
	return &Gate{
		directory: directory,
		codec:     codec,
		public:    public,
		logger:    logger,
	}
}

// resolve returns the principal for a bearer header, or nil with a failure
// reason. A nil principal with an empty reason means no token was offered.
func (g *Gate) resolve(ctx context.Context, authHeader string) (*store.Principal, string, []any) {
	token, errMsg := extractBearerToken(authHeader)
	if errMsg != "" {
		return nil, "", nil
	}

	claims, err := g.codec.VerifySignatureAndParse(token)
	if err != nil {
		return nil, reasonTokenVerification, []any{"error", err}
	}

	p, err := g.directory.GetPrincipalByEmail(ctx, claims.Subject)
	if err != nil {
		attrs := []any{"subject", claims.Subject}
		if !errors.Is(err, store.ErrPrincipalNotFound) {
			attrs = append(attrs, "error", err)
		}
		return nil, reasonPrincipalLookup, attrs
	}

	if err := g.codec.CheckClaims(claims, p.Email); err != nil {
		return nil, reasonTokenRejected, []any{"subject", claims.Subject, "error", err}
	}

	if !p.Usable() {
		return nil, reasonAccountUnusable, []any{"principal_id", p.ID}
	}
	return p, "", nil
}

// Middleware returns the gate as HTTP middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.public.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if FromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		p, reason, attrs := g.resolve(ctx, r.Header.Get("Authorization"))
		if p == nil {
			if reason != "" {
				logHTTPAuthFailure(g.logger, r, reason, attrs...)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}

// logHTTPAuthFailure logs an authentication failure with request context.
func logHTTPAuthFailure(logger *slog.Logger, r *http.Request, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("http auth failure", baseAttrs...)
}
