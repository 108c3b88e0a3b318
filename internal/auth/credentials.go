// ABOUTME: Password hashing and credential verification against the principal directory
// ABOUTME: Unknown emails and wrong passwords are indistinguishable in result and timing

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/inkwell/internal/store"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// fallbackDummyHash is a DefaultCost hash used only if the hasher cannot
// produce its own dummy.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher is the one-way password encoding capability.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher hashes with bcrypt at Cost (bcrypt.DefaultCost when zero).
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt encoding of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Compare returns ErrInvalidCredentials when password does not match hash.
func (h BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CredentialVerifier confirms an email/password pair against the directory.
type CredentialVerifier struct {
	directory store.Directory
	hasher    PasswordHasher
	// dummyHash is compared against for unknown emails. It is minted by
	// hasher so both failure paths pay the same cost.
	dummyHash string
}

// NewCredentialVerifier creates a verifier.
func NewCredentialVerifier(directory store.Directory, hasher PasswordHasher) *CredentialVerifier {
	v := &CredentialVerifier{directory: directory, hasher: hasher, dummyHash: fallbackDummyHash}
	if hash, err := hasher.Hash(rand.Text()); err == nil {
		v.dummyHash = hash
	}
	return v
}

// Verify returns the principal when the password matches and the account is
// usable. Lookup failures other than not-found are returned wrapped.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*store.Principal, error) {
	p, err := v.directory.GetPrincipalByEmail(ctx, email)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		_ = v.hasher.Compare(v.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	if err := v.hasher.Compare(p.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !p.Usable() {
		return nil, ErrAccountUnavailable
	}
	return p, nil
}
