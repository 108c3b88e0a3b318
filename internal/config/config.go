// ABOUTME: Configuration loading for inkwell from YAML or TOML with env overrides
// ABOUTME: Expands ${VAR} references, applies INKWELL_* variables, fills defaults and validates

package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr               = "0.0.0.0:8080"
	DefaultAccessTokenTTLSeconds  = 15 * 60
	DefaultRefreshTokenTTLSeconds = 7 * 24 * 60 * 60
	DefaultAdminPathPrefix        = "/api/v1/admin"
	DefaultRateLimitRequests      = 20
	DefaultRateLimitWindow        = "1m"
	DefaultAdminPasswordLength    = 20

	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength = 72
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener addresses. An empty GRPCAddr disables gRPC.
// X-Forwarded-For and X-Real-IP are honored only from TrustedProxies
// (CIDRs or bare IPs).
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr" toml:"http_addr" env:"INKWELL_HTTP_ADDR"`
	GRPCAddr       string   `yaml:"grpc_addr" toml:"grpc_addr" env:"INKWELL_GRPC_ADDR"`
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies" env:"INKWELL_TRUSTED_PROXIES" envSeparator:","`
}

// TrustedProxyPrefixes parses TrustedProxies.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// TailscaleConfig exposes the service on a tailnet instead of local ports.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"INKWELL_TAILSCALE_ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"INKWELL_TAILSCALE_HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS
}

// DatabaseConfig selects the SQLite driver and file.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver" env:"INKWELL_DATABASE_DRIVER"` // "sqlite" (default) or "sqlite3"
	Path   string `yaml:"path" toml:"path" env:"INKWELL_DATABASE_PATH"`
}

// AuthConfig holds token settings. JWTSecret is standard base64.
type AuthConfig struct {
	JWTSecret              string   `yaml:"jwt_secret" toml:"jwt_secret" env:"INKWELL_JWT_SECRET"`
	AccessTokenTTLSeconds  int64    `yaml:"access_token_ttl_seconds" toml:"access_token_ttl_seconds" env:"INKWELL_ACCESS_TOKEN_TTL_SECONDS"`
	RefreshTokenTTLSeconds int64    `yaml:"refresh_token_ttl_seconds" toml:"refresh_token_ttl_seconds" env:"INKWELL_REFRESH_TOKEN_TTL_SECONDS"`
	AdminPathPrefix        string   `yaml:"admin_path_prefix" toml:"admin_path_prefix"`
	PublicPaths            []string `yaml:"public_paths" toml:"public_paths" env:"INKWELL_PUBLIC_PATHS" envSeparator:","`
	BcryptCost             int      `yaml:"bcrypt_cost" toml:"bcrypt_cost" env:"INKWELL_BCRYPT_COST"`
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLSeconds) * time.Second
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLSeconds) * time.Second
}

// BootstrapConfig controls the default administrator. Empty AdminEmail disables it.
type BootstrapConfig struct {
	AdminEmail          string `yaml:"admin_email" toml:"admin_email" env:"INKWELL_ADMIN_EMAIL"`
	AdminPasswordLength int    `yaml:"admin_password_length" toml:"admin_password_length"`
	PasswordCharPool    string `yaml:"password_char_pool" toml:"password_char_pool"`
}

// RateLimitConfig throttles the auth endpoints per client IP.
type RateLimitConfig struct {
	Enabled    bool          `yaml:"enabled" toml:"enabled" env:"INKWELL_RATE_LIMIT_ENABLED"`
	Backend    string        `yaml:"backend" toml:"backend" env:"INKWELL_RATE_LIMIT_BACKEND"` // "memory" or "redis"
	Requests   int           `yaml:"requests" toml:"requests"`
	FailClosed bool          `yaml:"fail_closed" toml:"fail_closed"`
	Window     time.Duration `yaml:"-" toml:"-"`
	WindowRaw  string        `yaml:"window" toml:"window"`
	Redis      RedisConfig   `yaml:"redis" toml:"redis"`
}

// RedisConfig locates the shared limiter store.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" env:"INKWELL_REDIS_ADDR"`
	Password string `yaml:"password" toml:"password" env:"INKWELL_REDIS_PASSWORD"`
	DB       int    `yaml:"db" toml:"db"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins" env:"INKWELL_CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// LoggingConfig selects level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"INKWELL_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"INKWELL_LOG_FORMAT"` // "json" or "text"
}

// Load reads the config file at path (TOML when the extension is .toml,
// YAML otherwise), applies environment overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with the value of the environment variable.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Auth.AccessTokenTTLSeconds == 0 {
		c.Auth.AccessTokenTTLSeconds = DefaultAccessTokenTTLSeconds
	}
	if c.Auth.RefreshTokenTTLSeconds == 0 {
		c.Auth.RefreshTokenTTLSeconds = DefaultRefreshTokenTTLSeconds
	}
	if c.Auth.AdminPathPrefix == "" {
		c.Auth.AdminPathPrefix = DefaultAdminPathPrefix
	}
	if c.Bootstrap.AdminPasswordLength == 0 {
		c.Bootstrap.AdminPasswordLength = DefaultAdminPasswordLength
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateLimitRequests
	}
	if c.RateLimit.WindowRaw == "" {
		c.RateLimit.WindowRaw = DefaultRateLimitWindow
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.AccessTokenTTLSeconds <= 0 {
		return fmt.Errorf("auth.access_token_ttl_seconds must be positive")
	}
	if c.Auth.RefreshTokenTTLSeconds <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl_seconds must be positive")
	}
	if !strings.HasPrefix(c.Auth.AdminPathPrefix, "/") {
		return fmt.Errorf("auth.admin_path_prefix must start with /")
	}
	// Zero selects bcrypt.DefaultCost.
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.Bootstrap.AdminPasswordLength < 0 || c.Bootstrap.AdminPasswordLength > maxPasswordLength {
		return fmt.Errorf("bootstrap.admin_password_length must be between 1 and %d", maxPasswordLength)
	}
	widest := 1
	for _, r := range c.Bootstrap.PasswordCharPool {
		widest = max(widest, utf8.RuneLen(r))
	}
	if c.Bootstrap.AdminPasswordLength*widest > maxPasswordLength {
		return fmt.Errorf("bootstrap.password_char_pool has %d-byte characters; %d of them can exceed %d bytes",
			widest, c.Bootstrap.AdminPasswordLength, maxPasswordLength)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.Enabled && c.RateLimit.Redis.Addr == "" {
			return fmt.Errorf("rate_limit.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts duration strings into time.Duration fields.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.RateLimit.WindowRaw != "" {
		cfg.RateLimit.Window, err = time.ParseDuration(cfg.RateLimit.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_limit.window %q: %w", cfg.RateLimit.WindowRaw, err)
		}
		if cfg.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive")
		}
	}

	return nil
}
