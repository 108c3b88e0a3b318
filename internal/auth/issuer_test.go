// ABOUTME: Tests for access and refresh token issuance
// ABOUTME: Verifies subjects, distinct lifetimes and TTL validation

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inkwell/internal/store"
)

func TestIssuer_AccessAndRefreshLifetimes(t *testing.T) {
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	issuer, err := NewIssuer(codec, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	p := &store.Principal{Email: "ada@example.com", Role: store.RoleAdmin}

	access, err := issuer.IssueAccessToken(p)
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken(p)
	require.NoError(t, err)

	accessClaims, err := codec.VerifySignatureAndParse(access)
	require.NoError(t, err)
	refreshClaims, err := codec.VerifySignatureAndParse(refresh)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", accessClaims.Subject)
	assert.Equal(t, "ada@example.com", refreshClaims.Subject)
	assert.Equal(t, 15*time.Minute, accessClaims.ExpiresAt.Sub(accessClaims.IssuedAt))
	assert.Equal(t, 7*24*time.Hour, refreshClaims.ExpiresAt.Sub(refreshClaims.IssuedAt))
}

func TestIssuer_RoleNotEmbedded(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())
	issuer, err := NewIssuer(codec, time.Minute, time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueAccessToken(&store.Principal{Email: "root@example.com", Role: store.RoleAdmin})
	require.NoError(t, err)

	assert.NotContains(t, token, "ADMIN")
	claims, err := codec.VerifySignatureAndParse(token)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", claims.Subject)
}

func TestNewIssuer_RejectsNonPositiveTTL(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())

	_, err := NewIssuer(codec, 0, time.Hour)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewIssuer(codec, time.Minute, -time.Hour)
	assert.ErrorIs(t, err, ErrConfiguration)
}
