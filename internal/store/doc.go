// Package store provides persistent storage for inkwell using SQLite.
//
// # Architecture
//
// Two interfaces describe what the rest of the service needs:
//
//   - Directory: principal lookup by email, creation, password rotation, listing
//   - AuditLog: append-only record of authentication events
//
// SQLiteStore implements both in a single struct. MockStore is an in-memory
// implementation for tests.
//
// # Drivers
//
// The default driver is modernc.org/sqlite (registered as "sqlite"), which
// needs no cgo. github.com/mattn/go-sqlite3 (registered as "sqlite3") can be
// selected with database.driver for deployments that prefer the C library.
//
// # Data Models
//
//   - Principal: email identifier, bcrypt hash, role (ADMIN or USER) and the
//     enabled / locked / credentials-expired / account-expired flags
//   - AuditEntry: actor, action, target and a JSON detail blob
//
// Emails are unique case-insensitively (COLLATE NOCASE). Principals are never
// deleted by this package.
//
// # Errors
//
//   - ErrPrincipalNotFound: no principal with that email
//   - ErrDuplicateEmail: email already registered
package store
