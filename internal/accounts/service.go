// ABOUTME: Authentication protocol handler for signup, login and refresh-token
// ABOUTME: Produces token pairs and translates store and token errors into protocol errors

package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/inkwell/internal/auth"
	"github.com/2389/inkwell/internal/store"
)

// Protocol errors. Callers compare with errors.Is.
var (
	ErrInvalidCredentials  = auth.ErrInvalidCredentials
	ErrInvalidToken        = auth.ErrInvalidToken
	ErrAccountUnavailable  = auth.ErrAccountUnavailable
	ErrPrincipalNotFound   = store.ErrPrincipalNotFound
	ErrDuplicateIdentifier = store.ErrDuplicateEmail
	ErrPasswordTooLong     = auth.ErrPasswordTooLong
)

// Outcome is the result of a successful signup, login or refresh.
type Outcome struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// SignupRequest carries the fields needed to register a principal.
type SignupRequest struct {
	Name     string
	Email    string
	Password string
}

// Service implements the authentication protocol.
type Service struct {
	directory store.Directory
	hasher    auth.PasswordHasher
	verifier  *auth.CredentialVerifier
	codec     *auth.Codec
	issuer    *auth.Issuer
	audit     store.AuditLog
	logger    *slog.Logger
	location  *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLog records protocol events to log.
func WithAuditLog(log store.AuditLog) Option {
	return func(s *Service) {
		s.audit = log
	}
}

// WithLocation sets the zone expiries are reported in (time.Local by default).
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.location = loc
	}
}

// NewService creates a Service.
func NewService(directory store.Directory, hasher auth.PasswordHasher, codec *auth.Codec, issuer *auth.Issuer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		directory: directory,
		hasher:    hasher,
		verifier:  auth.NewCredentialVerifier(directory, hasher),
		codec:     codec,
		issuer:    issuer,
		logger:    logger.With("component", "accounts"),
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a USER principal and returns a fresh token pair.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Outcome, error) {
	if len(req.Password) > auth.MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	email := store.NormalizeEmail(req.Email)

	_, err := s.directory.GetPrincipalByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrDuplicateIdentifier
	case !errors.Is(err, store.ErrPrincipalNotFound):
		return nil, fmt.Errorf("checking existing principal: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	p := &store.Principal{
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         store.RoleUser,
		Enabled:      true,
	}
	if err := s.directory.CreatePrincipal(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("creating principal: %w", err)
	}

	outcome, err := s.issuePair(p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("principal signed up", "principal_id", p.ID)
	s.record(ctx, p.ID, store.AuditSignup, p.Email, "")
	return outcome, nil
}

// Login verifies credentials and returns a fresh token pair. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Outcome, error) {
	p, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.record(ctx, store.ActorAnonymous, store.AuditLoginFailed, store.NormalizeEmail(email), store.ReasonInvalidCredentials)
			return nil, ErrInvalidCredentials
		case errors.Is(err, auth.ErrAccountUnavailable):
			s.record(ctx, store.ActorAnonymous, store.AuditLoginFailed, store.NormalizeEmail(email), store.ReasonAccountUnavailable)
			return nil, ErrAccountUnavailable
		default:
			return nil, err
		}
	}

	// Re-read the principal; it may have vanished since verification.
	p, err = s.directory.GetPrincipalByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			s.record(ctx, store.ActorAnonymous, store.AuditLoginFailed, store.NormalizeEmail(email), store.ReasonPrincipalNotFound)
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	outcome, err := s.issuePair(p)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("principal logged in", "principal_id", p.ID)
	s.record(ctx, p.ID, store.AuditLogin, p.Email, "")
	return outcome, nil
}

// RefreshToken mints a new access token from a valid refresh token. The
// refresh token itself is returned unchanged.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*Outcome, error) {
	ctx = auth.ClearPrincipal(ctx)

	claims, err := s.codec.VerifySignatureAndParse(refreshToken)
	if err != nil {
		s.record(ctx, store.ActorAnonymous, store.AuditRefreshFailed, "", store.ReasonTokenVerification)
		return nil, ErrInvalidToken
	}

	p, err := s.directory.GetPrincipalByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			s.record(ctx, store.ActorAnonymous, store.AuditRefreshFailed, claims.Subject, store.ReasonPrincipalNotFound)
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	if err := s.codec.CheckClaims(claims, p.Email); err != nil {
		reason := store.ReasonTokenRejected
		if errors.Is(err, auth.ErrExpiredToken) {
			reason = store.ReasonTokenExpired
		}
		s.record(ctx, p.ID, store.AuditRefreshFailed, p.Email, reason)
		return nil, ErrInvalidToken
	}

	if !p.Usable() {
		s.record(ctx, p.ID, store.AuditRefreshFailed, p.Email, store.ReasonAccountUnavailable)
		return nil, ErrAccountUnavailable
	}

	access, err := s.issuer.IssueAccessToken(p)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	outcome, err := s.outcome(access, refreshToken)
	if err != nil {
		return nil, err
	}

	s.record(ctx, p.ID, store.AuditRefreshToken, p.Email, "")
	return outcome, nil
}

// Principals lists principals for administrators.
func (s *Service) Principals(ctx context.Context, filter store.PrincipalFilter) ([]store.Principal, error) {
	return s.directory.ListPrincipals(ctx, filter)
}

// AuditTrail lists recorded protocol events. Returns an empty list when no
// audit log is configured.
func (s *Service) AuditTrail(ctx context.Context, filter store.AuditFilter) ([]store.AuditEntry, error) {
	if s.audit == nil {
		return []store.AuditEntry{}, nil
	}
	return s.audit.ListAuditLog(ctx, filter)
}

func (s *Service) issuePair(p *store.Principal) (*Outcome, error) {
	access, err := s.issuer.IssueAccessToken(p)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefreshToken(p)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}
	return s.outcome(access, refresh)
}

// outcome reads both expiries back out of the tokens.
func (s *Service) outcome(access, refresh string) (*Outcome, error) {
	accessExp, err := s.codec.ExtractExpiry(access)
	if err != nil {
		return nil, fmt.Errorf("reading access token expiry: %w", err)
	}
	refreshExp, err := s.codec.ExtractExpiry(refresh)
	if err != nil {
		return nil, fmt.Errorf("reading refresh token expiry: %w", err)
	}
	return &Outcome{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp.In(s.location),
		RefreshTokenExpiresAt: refreshExp.In(s.location),
	}, nil
}

// record appends an audit entry. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, actor string, action store.AuditAction, subject string, reason store.AuditReason) {
	if s.audit == nil {
		return
	}
	entry := &store.AuditEntry{
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Reason:  reason,
	}
	if err := s.audit.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append audit log", "action", action, "error", err)
	}
}
