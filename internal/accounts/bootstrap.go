// ABOUTME: Default administrator bootstrap run at startup or from the CLI
// ABOUTME: Creates the admin with a random password, or rotates the password if it already exists

package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/2389/inkwell/internal/auth"
	"github.com/2389/inkwell/internal/store"
)

// Bootstrap defaults.
const (
	DefaultAdminName      = "Administrator"
	DefaultPasswordLength = 20
	DefaultCharPool       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*()-_=+"
)

// BootstrapOptions configures EnsureDefaultAdmin.
type BootstrapOptions struct {
	Email          string
	Name           string
	PasswordLength int
	CharPool       string
}

// BootstrapResult reports what EnsureDefaultAdmin did.
type BootstrapResult struct {
	Principal *store.Principal
	Password  string
	Created   bool
}

// EnsureDefaultAdmin creates an ADMIN principal for opts.Email with a random
// password, or sets a new random password when the principal already exists.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, opts BootstrapOptions) (*BootstrapResult, error) {
	if opts.Email == "" {
		return nil, errors.New("bootstrap admin email is required")
	}
	if opts.Name == "" {
		opts.Name = DefaultAdminName
	}
	if opts.PasswordLength == 0 {
		opts.PasswordLength = DefaultPasswordLength
	}
	if opts.CharPool == "" {
		opts.CharPool = DefaultCharPool
	}
	if opts.PasswordLength*widestRune(opts.CharPool) > auth.MaxPasswordBytes {
		return nil, fmt.Errorf("bootstrap admin password of %d characters: %w", opts.PasswordLength, ErrPasswordTooLong)
	}

	password, err := GeneratePassword(opts.PasswordLength, opts.CharPool)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.directory.GetPrincipalByEmail(ctx, opts.Email)
	switch {
	case err == nil:
		if err := s.directory.UpdatePrincipalPassword(ctx, existing.Email, hash); err != nil {
			return nil, fmt.Errorf("rotating admin password: %w", err)
		}
		existing.PasswordHash = hash
		existing.CredentialsExpired = false
		s.logger.Info("default admin already exists, password rotated", "email", existing.Email)
		s.record(ctx, store.ActorSystem, store.AuditRotateAdminPassword, existing.Email, "")
		return &BootstrapResult{Principal: existing, Password: password}, nil

	case !errors.Is(err, store.ErrPrincipalNotFound):
		return nil, fmt.Errorf("looking up admin: %w", err)
	}

	p := &store.Principal{
		Name:         opts.Name,
		Email:        opts.Email,
		PasswordHash: hash,
		Role:         store.RoleAdmin,
		Enabled:      true,
	}
	if err := s.directory.CreatePrincipal(ctx, p); err != nil {
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	s.logger.Info("default admin created", "email", p.Email, "principal_id", p.ID)
	s.record(ctx, store.ActorSystem, store.AuditBootstrapAdmin, p.Email, "")
	return &BootstrapResult{Principal: p, Password: password, Created: true}, nil
}

// widestRune returns the largest UTF-8 encoding length among pool's characters.
func widestRune(pool string) int {
	widest := 0
	for _, r := range pool {
		if n := utf8.RuneLen(r); n > widest {
			widest = n
		}
	}
	return widest
}

// GeneratePassword draws length characters uniformly from pool using crypto/rand.
func GeneratePassword(length int, pool string) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	chars := []rune(pool)
	if len(chars) == 0 {
		return "", errors.New("password character pool is empty")
	}

	poolSize := big.NewInt(int64(len(chars)))
	out := make([]rune, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, poolSize)
		if err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		out[i] = chars[n.Int64()]
	}
	return string(out), nil
}
