// Package accounts implements the signup, login and refresh-token protocol.
//
// Service ties the principal directory, password hasher and token issuer
// together and returns an Outcome (access token, refresh token and both
// expiries) for every successful call. Refresh tokens are returned unchanged
// by RefreshToken; only a new access token is minted.
//
// EnsureDefaultAdmin creates the configured administrator on first start and
// rotates its password on every later start, returning the generated password
// so the caller can show it once.
package accounts
