// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "aW5rd2VsbC10ZXN0LXNlY3JldC0zMi1ieXRlcyEhISE="

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  grpc_addr: "0.0.0.0:50051"
  http_addr: "0.0.0.0:8080"

database:
  driver: "sqlite3"
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  access_token_ttl_seconds: 60
  refresh_token_ttl_seconds: 3600
  public_paths:
    - "/api/v1/posts/*"

bootstrap:
  admin_email: "admin@example.com"
  admin_password_length: 24

rate_limit:
  enabled: true
  backend: "redis"
  requests: 5
  window: "30s"
  redis:
    addr: "localhost:6379"
    db: 2

cors:
  allowed_origins:
    - "https://blog.example.com"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Driver != "sqlite3" || cfg.Database.Path != "./test.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Auth.AccessTTL() != time.Minute {
		t.Errorf("Auth.AccessTTL() = %v, want %v", cfg.Auth.AccessTTL(), time.Minute)
	}
	if cfg.Auth.RefreshTTL() != time.Hour {
		t.Errorf("Auth.RefreshTTL() = %v, want %v", cfg.Auth.RefreshTTL(), time.Hour)
	}
	if len(cfg.Auth.PublicPaths) != 1 || cfg.Auth.PublicPaths[0] != "/api/v1/posts/*" {
		t.Errorf("Auth.PublicPaths = %v", cfg.Auth.PublicPaths)
	}
	if cfg.Auth.AdminPathPrefix != DefaultAdminPathPrefix {
		t.Errorf("Auth.AdminPathPrefix = %q, want default", cfg.Auth.AdminPathPrefix)
	}
	if cfg.Bootstrap.AdminEmail != "admin@example.com" || cfg.Bootstrap.AdminPasswordLength != 24 {
		t.Errorf("Bootstrap = %+v", cfg.Bootstrap)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Backend != "redis" || cfg.RateLimit.Requests != 5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit.Window = %v, want 30s", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Redis.Addr != "localhost:6379" || cfg.RateLimit.Redis.DB != 2 {
		t.Errorf("RateLimit.Redis = %+v", cfg.RateLimit.Redis)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:9000"

[database]
path = "blog.db"

[auth]
jwt_secret = "`+testSecret+`"
refresh_token_ttl_seconds = 120

[rate_limit]
window = "10s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "blog.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.RefreshTTL() != 2*time.Minute {
		t.Errorf("Auth.RefreshTTL() = %v", cfg.Auth.RefreshTTL())
	}
	if cfg.RateLimit.Window != 10*time.Second {
		t.Errorf("RateLimit.Window = %v", cfg.RateLimit.Window)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "blog.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Server.GRPCAddr != "" {
		t.Errorf("Server.GRPCAddr = %q, want empty", cfg.Server.GRPCAddr)
	}
	if cfg.Auth.AccessTokenTTLSeconds != DefaultAccessTokenTTLSeconds {
		t.Errorf("AccessTokenTTLSeconds = %d", cfg.Auth.AccessTokenTTLSeconds)
	}
	if cfg.Auth.RefreshTokenTTLSeconds != DefaultRefreshTokenTTLSeconds {
		t.Errorf("RefreshTokenTTLSeconds = %d", cfg.Auth.RefreshTokenTTLSeconds)
	}
	if cfg.Bootstrap.AdminPasswordLength != DefaultAdminPasswordLength {
		t.Errorf("AdminPasswordLength = %d", cfg.Bootstrap.AdminPasswordLength)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled should default to false")
	}
	if cfg.RateLimit.Backend != "memory" || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_INKWELL_SECRET", testSecret)
	t.Setenv("TEST_INKWELL_DB", "/var/lib/inkwell.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_INKWELL_DB}"
auth:
  jwt_secret: "${TEST_INKWELL_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, testSecret)
	}
	if cfg.Database.Path != "/var/lib/inkwell.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("TEST_INKWELL_UNSET_VAR")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "blog.db"
auth:
  jwt_secret: "${TEST_INKWELL_UNSET_VAR}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail when the secret expands to empty")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error %q should mention jwt_secret", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("INKWELL_JWT_SECRET", testSecret)
	t.Setenv("INKWELL_DATABASE_PATH", "/override.db")
	t.Setenv("INKWELL_HTTP_ADDR", "127.0.0.1:1234")
	t.Setenv("INKWELL_ACCESS_TOKEN_TTL_SECONDS", "30")
	t.Setenv("INKWELL_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "file.db"
auth:
  jwt_secret: "from-file"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want env value", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/override.db" {
		t.Errorf("Database.Path = %q, want /override.db", cfg.Database.Path)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:1234" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.AccessTTL() != 30*time.Second {
		t.Errorf("Auth.AccessTTL() = %v", cfg.Auth.AccessTTL())
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should fail for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error %q should mention parsing", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", "[server\nhttp_addr = ")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Load() should fail for invalid TOML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "blog.db"
auth:
  jwt_secret: "`+testSecret+`"
rate_limit:
  window: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail for invalid duration")
	}
	if !strings.Contains(err.Error(), "rate_limit.window") {
		t.Errorf("error %q should mention rate_limit.window", err)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Path: "blog.db"},
		Auth:     AuthConfig{JWTSecret: testSecret},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"negative access ttl", func(c *Config) { c.Auth.AccessTokenTTLSeconds = -1 }, "access_token_ttl_seconds"},
		{"negative refresh ttl", func(c *Config) { c.Auth.RefreshTokenTTLSeconds = -1 }, "refresh_token_ttl_seconds"},
		{"relative admin prefix", func(c *Config) { c.Auth.AdminPathPrefix = "admin" }, "admin_path_prefix"},
		{"bcrypt cost too low", func(c *Config) { c.Auth.BcryptCost = 3 }, "bcrypt_cost"},
		{"bcrypt cost too high", func(c *Config) { c.Auth.BcryptCost = 32 }, "bcrypt_cost"},
		{"password too long", func(c *Config) { c.Bootstrap.AdminPasswordLength = 73 }, "admin_password_length"},
		{"multibyte pool too long", func(c *Config) {
			c.Bootstrap.AdminPasswordLength = 40
			c.Bootstrap.PasswordCharPool = "éü"
		}, "password_char_pool"},
		{"unknown limiter", func(c *Config) { c.RateLimit.Backend = "memcached" }, "rate_limit.backend"},
		{"redis without addr", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Backend = "redis"
		}, "rate_limit.redis.addr"},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/33"} }, "trusted_proxies"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"no listener", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() should fail with %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_TailscaleConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.HTTPAddr = ""
	cfg.Tailscale.Enabled = true

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "tailscale.hostname") {
		t.Errorf("Validate() error = %v, want tailscale.hostname error", err)
	}

	cfg.Tailscale.Hostname = "inkwell"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")
	t.Setenv("TEST_EXPAND_B", "beta")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_EXPAND_A}", "alpha"},
		{"${TEST_EXPAND_A}-${TEST_EXPAND_B}", "alpha-beta"},
		{"no vars here", "no vars here"},
		{"${TEST_EXPAND_MISSING}", ""},
		{"$TEST_EXPAND_A", "$TEST_EXPAND_A"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTrustedProxyPrefixes(t *testing.T) {
	s := ServerConfig{TrustedProxies: []string{"10.1.2.3/8", " 192.0.2.4 ", "::ffff:198.51.100.1", "2001:db8::/32"}}

	got, err := s.TrustedProxyPrefixes()
	if err != nil {
		t.Fatalf("TrustedProxyPrefixes() error = %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.4/32", "198.51.100.1/32", "2001:db8::/32"}
	if len(got) != len(want) {
		t.Fatalf("got %d prefixes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("prefix %d = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := (ServerConfig{TrustedProxies: []string{"proxy.internal"}}).TrustedProxyPrefixes(); err == nil {
		t.Error("hostname should be rejected")
	}
}
