// ABOUTME: Token codec for signing and parsing HMAC JWTs carrying sub, iat and exp
// ABOUTME: Signature verification and expiry checking are separate so expired tokens can still be read

package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the minimum decoded key length (256 bits).
const MinSecretBytes = 32

// Claims is the parsed, signature-verified content of a token.
type Claims struct {
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid at now.
func (c *Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Codec signs and verifies tokens with a process-wide secret.
type Codec struct {
	key    []byte
	method *jwt.SigningMethodHMAC
	parser *jwt.Parser
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec decodes a standard base64 secret and picks the HMAC variant from
// its length (HS512 for 64+ bytes, HS384 for 48+, otherwise HS256).
func NewCodec(secretBase64 string, opts ...CodecOption) (*Codec, error) {
	secretBase64 = strings.TrimSpace(secretBase64)
	if secretBase64 == "" {
		return nil, fmt.Errorf("%w: jwt secret is empty", ErrConfiguration)
	}
	key, err := base64.StdEncoding.DecodeString(secretBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: jwt secret is not valid base64: %v", ErrConfiguration, err)
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("%w: jwt secret must decode to at least %d bytes, got %d",
			ErrConfiguration, MinSecretBytes, len(key))
	}

	c := &Codec{
		key:    key,
		method: methodForKey(key),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
		// Rejects non-zero padding bits so every signature character counts.
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

func methodForKey(key []byte) *jwt.SigningMethodHMAC {
	switch {
	case len(key) >= 64:
		return jwt.SigningMethodHS512
	case len(key) >= 48:
		return jwt.SigningMethodHS384
	default:
		return jwt.SigningMethodHS256
	}
}

// Algorithm returns the JWS alg header value used for signing.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Issue mints a token for subject that expires ttl after now. Each token gets a
// random jti so two tokens minted within the same second still differ.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: token ttl must be positive, got %s", ErrConfiguration, ttl)
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifySignatureAndParse checks the signature and structure of a token and
// returns its claims. Expiry is not checked.
func (c *Codec) VerifySignatureAndParse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var registered jwt.RegisteredClaims
	token, err := c.parser.ParseWithClaims(tokenString, &registered, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	switch {
	case registered.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	case registered.IssuedAt == nil:
		return nil, fmt.Errorf("%w: missing iat", ErrInvalidToken)
	case registered.ExpiresAt == nil:
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}

	return &Claims{
		ID:        registered.ID,
		Subject:   registered.Subject,
		IssuedAt:  registered.IssuedAt.Time,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

// ExtractSubject returns the sub claim of a signature-verified token.
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	claims, err := c.VerifySignatureAndParse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiry returns the exp claim of a signature-verified token.
func (c *Codec) ExtractExpiry(tokenString string) (time.Time, error) {
	claims, err := c.VerifySignatureAndParse(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt, nil
}

// CheckClaims enforces subject match and expiry on already-parsed claims.
func (c *Codec) CheckClaims(claims *Claims, identifier string) error {
	if claims.Subject != identifier {
		return fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	if claims.Expired(c.now()) {
		return ErrExpiredToken
	}
	return nil
}

// Validate reports whether the token verifies, names identifier as its
// subject and has not expired.
func (c *Codec) Validate(tokenString, identifier string) error {
	claims, err := c.VerifySignatureAndParse(tokenString)
	if err != nil {
		return err
	}
	return c.CheckClaims(claims, identifier)
}
