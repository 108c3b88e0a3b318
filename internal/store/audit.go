// ABOUTME: Audit trail of authentication events: signups, logins, refreshes and admin bootstrap
// ABOUTME: Each entry names who acted, which account it concerns and, for failures, a typed reason

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the authentication event being recorded.
type AuditAction string

const (
	AuditSignup              AuditAction = "signup"
	AuditLogin               AuditAction = "login"
	AuditLoginFailed         AuditAction = "login_failed"
	AuditRefreshToken        AuditAction = "refresh_token"
	AuditRefreshFailed       AuditAction = "refresh_failed"
	AuditBootstrapAdmin      AuditAction = "bootstrap_admin"
	AuditRotateAdminPassword AuditAction = "rotate_admin_password"
)

// Valid reports whether a is a known action.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditSignup, AuditLogin, AuditLoginFailed, AuditRefreshToken,
		AuditRefreshFailed, AuditBootstrapAdmin, AuditRotateAdminPassword:
		return true
	}
	return false
}

// AuditReason explains a failed login or refresh.
type AuditReason string

const (
	ReasonInvalidCredentials AuditReason = "invalid_credentials"
	ReasonAccountUnavailable AuditReason = "account_unavailable"
	ReasonTokenVerification  AuditReason = "token_verification_failed"
	ReasonPrincipalNotFound  AuditReason = "principal_not_found"
	ReasonTokenExpired       AuditReason = "token_expired"
	ReasonTokenRejected      AuditReason = "token_rejected"
)

// Actors that are not principals.
const (
	ActorAnonymous = "anonymous"
	ActorSystem    = "system"
)

// AuditLog appends and lists audit entries.
type AuditLog interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

var _ AuditLog = (*SQLiteStore)(nil)

// AuditEntry is one recorded event.
type AuditEntry struct {
	ID        string
	Actor     string // principal id, ActorAnonymous or ActorSystem
	Action    AuditAction
	Subject   string      // email of the account concerned, may be empty
	Reason    AuditReason // empty on success
	Timestamp time.Time
}

// AuditFilter narrows ListAuditLog. Zero fields match everything.
type AuditFilter struct {
	Since   *time.Time
	Until   *time.Time
	Actor   string
	Action  AuditAction
	Subject string // compared case-insensitively
	Limit   int    // default 100, max 1000
	Offset  int
}

// ErrInvalidAuditAction is returned when appending an unknown action.
var ErrInvalidAuditAction = errors.New("invalid audit action")

// auditTimeLayout is fixed-width UTC so stored timestamps sort as text.
const auditTimeLayout = "2006-01-02T15:04:05.000000Z"

func formatAuditTime(t time.Time) string {
	return t.UTC().Format(auditTimeLayout)
}

// AppendAuditLog stores e, filling ID and Timestamp when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuditAction, e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (audit_id, actor, action, subject, reason, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Actor, string(e.Action), e.Subject, string(e.Reason), formatAuditTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "action", e.Action, "actor", e.Actor, "reason", e.Reason)
	return nil
}

// where renders the filter as a SQL WHERE clause and its arguments.
func (f AuditFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Since != nil {
		add("ts >= ?", formatAuditTime(*f.Since))
	}
	if f.Until != nil {
		add("ts <= ?", formatAuditTime(*f.Until))
	}
	if f.Actor != "" {
		add("actor = ?", f.Actor)
	}
	if f.Action != "" {
		add("action = ?", string(f.Action))
	}
	if f.Subject != "" {
		add("subject = ? COLLATE NOCASE", f.Subject)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListAuditLog returns matching entries, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	where, args := f.where()
	query := `SELECT audit_id, actor, action, subject, reason, ts FROM audit_log` + where +
		` ORDER BY ts DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var action, reason, ts string
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Subject, &reason, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = AuditAction(action)
		e.Reason = AuditReason(reason)
		if e.Timestamp, err = time.Parse(auditTimeLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
