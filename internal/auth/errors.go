// ABOUTME: Error taxonomy for token and credential handling
// ABOUTME: Sentinels are compared with errors.Is and carry no token or password detail

package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens, missing claims,
	// subject mismatch and expiry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is an ErrInvalidToken whose signature verified but whose
	// expiry has passed.
	ErrExpiredToken = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrConfiguration is fatal at startup: unusable key material or TTLs.
	ErrConfiguration = errors.New("auth configuration error")

	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountUnavailable is returned when the password matched but the account
	// is disabled, locked or expired.
	ErrAccountUnavailable = errors.New("account unavailable")

	// ErrPasswordTooLong is returned for passwords longer than MaxPasswordBytes.
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
)
