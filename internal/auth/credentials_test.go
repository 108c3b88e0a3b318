// ABOUTME: Tests for bcrypt hashing and credential verification
// ABOUTME: Unknown email and wrong password must produce the same error

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/inkwell/internal/store"
)

// countingHasher records how many comparisons ran.
type countingHasher struct {
	BcryptHasher
	compares int
}

func (h *countingHasher) Compare(hash, password string) error {
	h.compares++
	return h.BcryptHasher.Compare(hash, password)
}

func seedPrincipal(t *testing.T, dir *store.MockStore, email, password string, role store.Role) *store.Principal {
	t.Helper()
	hash, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash(password)
	require.NoError(t, err)
	p := &store.Principal{
		Name:         "Test",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Enabled:      true,
	}
	require.NoError(t, dir.CreatePrincipal(context.Background(), p))
	return p
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, h.Compare(hash, "hunter2"))
	assert.ErrorIs(t, h.Compare(hash, "hunter3"), ErrInvalidCredentials)
	assert.ErrorIs(t, h.Compare("not-a-hash", "hunter2"), ErrInvalidCredentials)
}

func TestBcryptHasher_CountsBytes(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	// 40 characters, 80 bytes.
	_, err := h.Hash(strings.Repeat("é", 40))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("é", 36))
	assert.NoError(t, err)
}

func TestBcryptHasher_DefaultCost(t *testing.T) {
	hash, err := BcryptHasher{}.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestCredentialVerifier_Success(t *testing.T) {
	dir := store.NewMockStore()
	seedPrincipal(t, dir, "ada@example.com", "analytical-engine", store.RoleUser)
	v := NewCredentialVerifier(dir, BcryptHasher{Cost: bcrypt.MinCost})

	p, err := v.Verify(context.Background(), "ada@example.com", "analytical-engine")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", p.Email)
}

func TestCredentialVerifier_FailureParity(t *testing.T) {
	dir := store.NewMockStore()
	seedPrincipal(t, dir, "ada@example.com", "analytical-engine", store.RoleUser)
	hasher := &countingHasher{BcryptHasher: BcryptHasher{Cost: bcrypt.MinCost}}
	v := NewCredentialVerifier(dir, hasher)

	_, wrongPassword := v.Verify(context.Background(), "ada@example.com", "difference-engine")
	assert.Equal(t, 1, hasher.compares)

	_, unknownEmail := v.Verify(context.Background(), "nobody@example.com", "difference-engine")
	assert.Equal(t, 2, hasher.compares, "unknown email must still run a comparison")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestCredentialVerifier_DummyHashSharesCost(t *testing.T) {
	for _, cost := range []int{bcrypt.MinCost, bcrypt.MinCost + 2} {
		v := NewCredentialVerifier(store.NewMockStore(), BcryptHasher{Cost: cost})

		got, err := bcrypt.Cost([]byte(v.dummyHash))
		require.NoError(t, err)
		assert.Equal(t, cost, got)
	}
}

func TestCredentialVerifier_AccountUnavailable(t *testing.T) {
	dir := store.NewMockStore()
	seedPrincipal(t, dir, "ada@example.com", "analytical-engine", store.RoleUser)
	require.NoError(t, dir.Mutate("ada@example.com", func(p *store.Principal) { p.AccountLocked = true }))
	v := NewCredentialVerifier(dir, BcryptHasher{Cost: bcrypt.MinCost})

	_, err := v.Verify(context.Background(), "ada@example.com", "analytical-engine")
	assert.ErrorIs(t, err, ErrAccountUnavailable)

	// A wrong password on a locked account still reads as bad credentials.
	_, err = v.Verify(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCredentialVerifier_StoreError(t *testing.T) {
	dir := store.NewMockStore()
	dir.LookupErr = errors.New("disk I/O error")
	v := NewCredentialVerifier(dir, BcryptHasher{Cost: bcrypt.MinCost})

	_, err := v.Verify(context.Background(), "ada@example.com", "pw")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
	assert.Contains(t, err.Error(), "disk I/O error")
}
