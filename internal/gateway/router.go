// ABOUTME: chi router assembly for the inkwell HTTP API
// ABOUTME: Orders shared middleware, the auth gate and authorizer, and mounts all routes

package gateway

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/inkwell/internal/assets"
	"github.com/2389/inkwell/internal/config"
	"github.com/2389/inkwell/internal/ratelimit"
)

const (
	docsPath = "/swagger-ui"
	specPath = "/v3/api-docs"
)

// corsOptions builds the CORS policy for the configured origins.
func corsOptions(cfg config.CORSConfig) cors.Options {
	return cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// requestLogger logs one line per request with status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// realIPFrom applies chi's RealIP only when the socket peer is one of the
// trusted proxies. Everyone else is keyed by their own address.
func realIPFrom(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		forwarded := middleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peerTrusted(r.RemoteAddr, trusted) {
				forwarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(remoteAddr string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	ap, err := netip.ParseAddrPort(remoteAddr)
	if err != nil {
		return false
	}
	addr := ap.Addr().Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Handler returns the HTTP handler with all middleware applied.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(realIPFrom(g.proxies))
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(g.logger.With("component", "http")))
	if len(g.config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(g.config.CORS)))
	}
	r.Use(g.gate.Middleware)
	r.Use(g.authz.RequireAuthorized)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health-check", g.handleHealthCheck)

		r.Route("/auth", func(r chi.Router) {
			r.Use(ratelimit.Middleware(g.limiter, g.ratePolicy, g.logger.With("component", "ratelimit")))
			r.Post("/signup", g.handleSignup)
			r.Post("/login", g.handleLogin)
			r.Post("/refresh-token", g.handleRefreshToken)
		})

		r.Get("/users/me", g.handleMe)
	})

	r.Route(g.config.Auth.AdminPathPrefix, func(r chi.Router) {
		r.Get("/principals", g.handleListPrincipals)
		r.Get("/audit", g.handleListAudit)
	})

	r.Handle(specPath, assets.SpecHandler())
	r.Get(docsPath, http.RedirectHandler(docsPath+"/", http.StatusMovedPermanently).ServeHTTP)
	r.Handle(docsPath+"/*", http.StripPrefix(docsPath, assets.DocsHandler(docsPath+"/", specPath)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		g.sendJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
