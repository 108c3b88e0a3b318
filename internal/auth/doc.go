// Package auth provides stateless token authentication and path authorization for inkwell.
//
// # Tokens
//
// Codec signs compact JWS tokens with an HMAC key decoded from the base64
// auth.jwt_secret. Claims are sub (the principal's email), iat, exp and a
// random jti. Signature verification and expiry checking are separate steps so
// callers can tell "expired" from "forged":
//
//	claims, err := codec.VerifySignatureAndParse(token) // signature + structure
//	err = codec.CheckClaims(claims, principal.Email)     // subject + expiry
//
// Issuer mints access and refresh tokens that differ only in lifetime. Roles
// are never written into tokens; they are read from the directory on every
// request.
//
// # Credentials
//
// CredentialVerifier checks an email/password pair with bcrypt. Unknown emails
// and wrong passwords return the same ErrInvalidCredentials after the same
// amount of bcrypt work.
//
// # Request Gate
//
// Gate runs once per request (HTTP middleware or gRPC interceptor). It skips
// public paths, reads "Authorization: Bearer <token>", re-resolves the
// principal and attaches a SecurityContext. It never rejects a request.
//
// # Authorization
//
// Authorizer holds a casbin policy: public paths bypass, paths under the
// admin prefix (default /api/v1/admin) need ADMIN, everything else needs any
// authenticated principal. RequireAuthorized answers 401 or 403.
package auth
