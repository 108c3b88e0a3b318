// Package config handles configuration loading for inkwell.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension),
// with ${VAR} expansion, INKWELL_* environment overrides, defaults and
// validation applied in that order.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from INKWELL_CONFIG environment variable
//  3. ~/.config/inkwell/config.yaml
//
// # Environment Variables
//
// Values can reference the environment directly:
//
//	auth:
//	  jwt_secret: "${INKWELL_SECRET}"
//
// Selected fields are also overridden by well-known variables after the
// file is parsed, e.g. INKWELL_JWT_SECRET, INKWELL_DATABASE_PATH,
// INKWELL_HTTP_ADDR and INKWELL_REDIS_ADDR.
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"
//
//	database:
//	  path: "./inkwell.db"
//
//	auth:
//	  jwt_secret: "${INKWELL_JWT_SECRET}"
//	  access_token_ttl_seconds: 900
//	  refresh_token_ttl_seconds: 604800
//
//	bootstrap:
//	  admin_email: "admin@example.com"
//
//	rate_limit:
//	  enabled: true
//	  backend: "memory"
//	  requests: 20
//	  window: "1m"
package config
