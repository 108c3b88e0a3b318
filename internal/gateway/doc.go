// Package gateway wires the inkwell servers together.
//
// # Overview
//
// New opens the SQLite store, builds the token codec, issuer, credential
// verifier and accounts service, and assembles the HTTP router and the
// optional gRPC server. Run binds the listeners (plain TCP, or a tailnet
// node when tailscale is enabled) and blocks until the context is canceled.
//
// # HTTP API
//
// Middleware runs in this order: request ID, real IP, panic recovery,
// request logging, CORS, the auth gate, then the authorizer. The gate never
// rejects a request; it only attaches a principal when a valid bearer token
// names a usable account. The authorizer answers 401 or 403.
//
//	POST /api/v1/auth/signup          public, rate limited
//	POST /api/v1/auth/login           public, rate limited
//	POST /api/v1/auth/refresh-token   public, rate limited
//	GET  /api/v1/health-check         public
//	GET  /api/v1/users/me             any authenticated principal
//	GET  /api/v1/admin/principals     ADMIN
//	GET  /api/v1/admin/audit          ADMIN
//	GET  /v3/api-docs, /swagger-ui/   public
//
// Errors are JSON objects of the form {"error": "message"}.
//
// # gRPC
//
// When server.grpc_addr is set, a gRPC server runs the same gate and
// authorizer as interceptors. Only grpc.health.v1.Health is public; methods
// under /inkwell.v1.Admin require ADMIN.
package gateway
