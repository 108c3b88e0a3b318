// ABOUTME: Token issuer that mints access and refresh tokens for principals
// ABOUTME: The two kinds differ only in lifetime; role is never embedded

package auth

import (
	"fmt"
	"time"

	"github.com/2389/inkwell/internal/store"
)

// Issuer mints access and refresh tokens with the configured lifetimes.
type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an Issuer. Both lifetimes must be positive.
func NewIssuer(codec *Codec, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if accessTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrConfiguration)
	}
	if refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: refresh token ttl must be positive", ErrConfiguration)
	}
	return &Issuer{codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// IssueAccessToken mints a short-lived token whose subject is the principal's email.
func (i *Issuer) IssueAccessToken(p *store.Principal) (string, error) {
	return i.codec.Issue(p.Email, i.accessTTL)
}

// IssueRefreshToken mints a long-lived token whose subject is the principal's email.
func (i *Issuer) IssueRefreshToken(p *store.Principal) (string, error) {
	return i.codec.Issue(p.Email, i.refreshTTL)
}
