// ABOUTME: Principal entity and directory methods backed by the principals table
// ABOUTME: Lookup by email, creation with duplicate detection, password rotation and listing

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPrincipalNotFound is returned when no principal has the requested email.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrDuplicateEmail is returned when creating a principal whose email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// Role is the single authority level carried by a principal.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Principal is an account that can authenticate. Email is the login identifier
// and the token subject.
type Principal struct {
	ID                 string
	Name               string
	Email              string
	PasswordHash       string // bcrypt
	Role               Role
	Enabled            bool
	AccountLocked      bool
	CredentialsExpired bool
	AccountExpired     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Usable reports whether the account flags allow authentication.
func (p *Principal) Usable() bool {
	return p.Enabled && !p.AccountLocked && !p.CredentialsExpired && !p.AccountExpired
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Directory is the principal lookup and persistence capability.
type Directory interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	UpdatePrincipalPassword(ctx context.Context, email, passwordHash string) error
	ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]Principal, error)
}

// PrincipalFilter narrows ListPrincipals.
type PrincipalFilter struct {
	Role   *Role
	Limit  int // default 100, max 1000
	Offset int
}

// Ensure SQLiteStore implements Directory.
var _ Directory = (*SQLiteStore)(nil)

// NormalizeEmail trims surrounding whitespace. Comparison is case-insensitive
// at the storage layer.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// CreatePrincipal inserts a new principal, generating ID and timestamps if unset.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if !p.Role.Valid() {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	p.Email = NormalizeEmail(p.Email)
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO principals (principal_id, name, email, password_hash, role, enabled,
			account_locked, credentials_expired, account_expired, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		p.PasswordHash,
		string(p.Role),
		p.Enabled,
		p.AccountLocked,
		p.CredentialsExpired,
		p.AccountExpired,
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Info("created principal", "id", p.ID, "role", p.Role)
	return nil
}

const principalColumns = `principal_id, name, email, password_hash, role, enabled,
	account_locked, credentials_expired, account_expired, created_at, updated_at`

// scanPrincipal scans a row into a Principal.
func scanPrincipal(scanner interface{ Scan(dest ...any) error }) (*Principal, error) {
	var p Principal
	var role, createdAtStr, updatedAtStr string

	if err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.PasswordHash,
		&role,
		&p.Enabled,
		&p.AccountLocked,
		&p.CredentialsExpired,
		&p.AccountExpired,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	p.Role = Role(role)
	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &p, nil
}

// GetPrincipalByEmail retrieves a principal by email (case-insensitive).
func (s *SQLiteStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = ?`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return p, nil
}

// UpdatePrincipalPassword replaces the stored hash and clears the
// credentials-expired flag.
func (s *SQLiteStore) UpdatePrincipalPassword(ctx context.Context, email, passwordHash string) error {
	query := `
		UPDATE principals
		SET password_hash = ?, credentials_expired = 0, updated_at = ?
		WHERE email = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		passwordHash,
		time.Now().UTC().Format(time.RFC3339),
		NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("updating principal password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Info("updated principal password", "email", email)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to list limits.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// ListPrincipals returns principals ordered by creation time, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]Principal, error) {
	var roleStr *string
	if filter.Role != nil {
		r := string(*filter.Role)
		roleStr = &r
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + principalColumns + `
		FROM principals
		WHERE (? IS NULL OR role = ?)
		ORDER BY created_at ASC, email ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, roleStr, roleStr, normalizeLimit(filter.Limit), offset)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	principals := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}
