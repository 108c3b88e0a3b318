// ABOUTME: In-memory Directory and AuditLog implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject lookup failures

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Directory and AuditLog for tests.
type MockStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal // keyed by lowercased email
	audit      []AuditEntry

	// LookupErr, when set, is returned by GetPrincipalByEmail.
	LookupErr error
	// Lookups counts GetPrincipalByEmail calls.
	Lookups int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		principals: make(map[string]*Principal),
	}
}

var (
	_ Directory = (*MockStore)(nil)
	_ AuditLog  = (*MockStore)(nil)
)

func emailKey(email string) string {
	return strings.ToLower(NormalizeEmail(email))
}

// CreatePrincipal stores a copy of p.
func (m *MockStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !p.Role.Valid() {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	key := emailKey(p.Email)
	if _, exists := m.principals[key]; exists {
		return ErrDuplicateEmail
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Email = NormalizeEmail(p.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt

	c := *p
	m.principals[key] = &c
	return nil
}

// GetPrincipalByEmail returns a copy of the stored principal.
func (m *MockStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Lookups++
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	p, ok := m.principals[emailKey(email)]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	c := *p
	return &c, nil
}

// UpdatePrincipalPassword replaces the stored hash.
func (m *MockStore) UpdatePrincipalPassword(ctx context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[emailKey(email)]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordHash = passwordHash
	p.CredentialsExpired = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Mutate applies fn to the stored principal, for flipping account flags in tests.
func (m *MockStore) Mutate(email string, fn func(*Principal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[emailKey(email)]
	if !ok {
		return ErrPrincipalNotFound
	}
	fn(p)
	return nil
}

// ListPrincipals returns principals ordered by creation time then email.
func (m *MockStore) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Principal{}
	for _, p := range m.principals {
		if filter.Role != nil && p.Role != *filter.Role {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Email < result[j].Email
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []Principal{}, nil
	}
	result = result[offset:]
	if limit := normalizeLimit(filter.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AppendAuditLog records an entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuditAction, e.Action)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns entries newest first by insertion, honoring every
// filter field except the time bounds.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		switch {
		case f.Action != "" && e.Action != f.Action,
			f.Actor != "" && e.Actor != f.Actor,
			f.Subject != "" && !strings.EqualFold(e.Subject, f.Subject):
			continue
		}
		entries = append(entries, e)
	}
	if f.Offset >= len(entries) {
		return []AuditEntry{}, nil
	}
	entries = entries[max(f.Offset, 0):]
	if limit := normalizeLimit(f.Limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// AuditActions returns the recorded actions in insertion order.
func (m *MockStore) AuditActions() []AuditAction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make([]AuditAction, len(m.audit))
	for i, e := range m.audit {
		actions[i] = e.Action
	}
	return actions
}
