// Package ratelimit throttles the unauthenticated auth endpoints.
//
// Two Limiter backends share the same fixed-window semantics: MemoryLimiter
// for a single process and RedisLimiter when several instances sit behind a
// load balancer. Middleware keys requests by client IP and writes the
// RateLimit-* and Retry-After headers.
package ratelimit
