// ABOUTME: Gateway orchestrator that wires the store, auth stack and servers together
// ABOUTME: Manages HTTP and gRPC listeners (TCP or tailscale), admin bootstrap and shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/inkwell/internal/accounts"
	"github.com/2389/inkwell/internal/auth"
	"github.com/2389/inkwell/internal/config"
	"github.com/2389/inkwell/internal/ratelimit"
	"github.com/2389/inkwell/internal/store"
)

// grpcAdminPrefix is the method prefix reserved for ADMIN callers.
const grpcAdminPrefix = "/inkwell.v1.Admin"

// Gateway owns the inkwell servers and their dependencies.
type Gateway struct {
	config      *config.Config
	store       *store.SQLiteStore
	accounts    *accounts.Service
	gate        *auth.Gate
	authz       *auth.Authorizer
	limiter     ratelimit.Limiter
	ratePolicy  ratelimit.Policy
	proxies     []netip.Prefix
	validate    *validator.Validate
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// closers release optional components on shutdown
	closers []namedCloser
}

type namedCloser struct {
	label string
	close func() error
}

// initStore opens the configured SQLite database.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	driver := cfg.Database.Driver
	if driver == "" {
		driver = store.DriverModernc
	}
	s, err := store.NewSQLiteStoreWithDriver(driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initLimiter returns the auth endpoint limiter, or nil when rate limiting is off.
func initLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Limiter, *namedCloser, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Backend {
	case "redis":
		rl, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating redis limiter: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rl.Ping(pingCtx); err != nil {
			logger.Warn("redis rate limiter unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		logger.Info("rate limiting enabled", "backend", "redis", "requests", cfg.Requests, "window", cfg.Window)
		return rl, &namedCloser{label: "redis limiter close", close: rl.Close}, nil
	default:
		logger.Info("rate limiting enabled", "backend", "memory", "requests", cfg.Requests, "window", cfg.Window)
		return ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{}), nil, nil
	}
}

// New creates a Gateway from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := build(cfg, sqlStore, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	return gw, nil
}

func build(cfg *config.Config, sqlStore *store.SQLiteStore, logger *slog.Logger) (*Gateway, error) {
	codec, err := auth.NewCodec(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}
	issuer, err := auth.NewIssuer(codec, cfg.Auth.AccessTTL(), cfg.Auth.RefreshTTL())
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}
	hasher := auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}

	authLogger := logger.With("component", "auth")
	authLogger.Info("token signing configured", "alg", codec.Algorithm(),
		"access_ttl", cfg.Auth.AccessTTL(), "refresh_ttl", cfg.Auth.RefreshTTL())
	httpPublic := auth.NewPublicPaths(append(auth.DefaultPublicPaths(), cfg.Auth.PublicPaths...))
	authz, err := auth.NewAuthorizer(cfg.Auth.AdminPathPrefix, httpPublic, authLogger)
	if err != nil {
		return nil, fmt.Errorf("creating authorizer: %w", err)
	}

	proxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	limiter, limiterCloser, err := initLimiter(context.Background(), cfg.RateLimit, logger.With("component", "ratelimit"))
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config: cfg,
		store:  sqlStore,
		accounts: accounts.NewService(sqlStore, hasher, codec, issuer,
			logger.With("component", "accounts"),
			accounts.WithAuditLog(sqlStore),
		),
		gate:    auth.NewGate(sqlStore, codec, httpPublic, authLogger),
		authz:   authz,
		limiter: limiter,
		ratePolicy: ratelimit.Policy{
			Prefix:     "auth",
			Limit:      cfg.RateLimit.Requests,
			Window:     cfg.RateLimit.Window,
			FailClosed: cfg.RateLimit.FailClosed,
		},
		proxies:  proxies,
		validate: newValidator(),
		logger:   logger.With("component", "gateway"),
	}
	if limiterCloser != nil {
		gw.closers = append(gw.closers, *limiterCloser)
	}

	if cfg.Server.GRPCAddr != "" || cfg.Tailscale.Enabled {
		grpcPublic := auth.NewPublicPaths(auth.DefaultPublicMethods())
		grpcAuthz, err := auth.NewAuthorizer(grpcAdminPrefix, grpcPublic, authLogger)
		if err != nil {
			return nil, fmt.Errorf("creating gRPC authorizer: %w", err)
		}
		gw.health = health.NewServer()
		gw.grpcServer = newGRPCServer(auth.NewGate(sqlStore, codec, grpcPublic, authLogger), grpcAuthz, gw.health)
		logger.Info("gRPC auth interceptors enabled")
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Accounts exposes the protocol service for the CLI.
func (g *Gateway) Accounts() *accounts.Service {
	return g.accounts
}

// BootstrapAdmin ensures the configured default administrator exists with a
// fresh password. Returns nil when no admin email is configured.
func (g *Gateway) BootstrapAdmin(ctx context.Context) (*accounts.BootstrapResult, error) {
	bc := g.config.Bootstrap
	if bc.AdminEmail == "" {
		return nil, nil
	}
	result, err := g.accounts.EnsureDefaultAdmin(ctx, accounts.BootstrapOptions{
		Email:          bc.AdminEmail,
		PasswordLength: bc.AdminPasswordLength,
		CharPool:       bc.PasswordCharPool,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrapping admin: %w", err)
	}
	g.logger.Info("default admin ready", "email", result.Principal.Email, "created", result.Created)
	return result, nil
}

// setupTCPListeners creates standard TCP listeners. grpcLn is nil when gRPC is disabled.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning an error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		g.health.Resume()
		go func() {
			g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcLn, httpLn)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "inkwell", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	if g.grpcServer != nil {
		grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}

	httpLn, err = g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener picks funnel, HTTPS or plain HTTP.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	for _, c := range g.closers {
		errs = appendCloseError(errs, c.label, c.close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
