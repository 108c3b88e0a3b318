// ABOUTME: Tests for the HTTP request gate
// ABOUTME: Covers public paths, anonymous fallthrough, principal re-resolution and failure logging

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/inkwell/internal/store"
)

// httpTestLogHandler captures log records for testing HTTP auth logging.
type httpTestLogHandler struct {
	records []slog.Record
}

func (h *httpTestLogHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *httpTestLogHandler) WithAttrs(_ []slog.Attr) slog.Handler         { return h }
func (h *httpTestLogHandler) WithGroup(_ string) slog.Handler              { return h }
func (h *httpTestLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *httpTestLogHandler) hasRecordWithReason(reason string) bool {
	for _, r := range h.records {
		var foundReason string
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "reason" {
				foundReason = a.Value.String()
				return false
			}
			return true
		})
		if foundReason == reason {
			return true
		}
	}
	return false
}

type gateFixture struct {
	dir    *store.MockStore
	codec  *Codec
	clock  *fakeClock
	gate   *Gate
	logs   *httpTestLogHandler
	issuer *Issuer
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	clock := newFakeClock()
	codec := newTestCodec(t, clock)
	issuer, err := NewIssuer(codec, time.Minute, time.Hour)
	require.NoError(t, err)
	dir := store.NewMockStore()
	logs := &httpTestLogHandler{}
	gate := NewGate(dir, codec, NewPublicPaths(DefaultPublicPaths()), slog.New(logs))
	return &gateFixture{dir: dir, codec: codec, clock: clock, gate: gate, logs: logs, issuer: issuer}
}

// serve runs a request through the gate and returns the SecurityContext seen downstream.
func (f *gateFixture) serve(t *testing.T, path, authHeader string) (*SecurityContext, *httptest.ResponseRecorder) {
	t.Helper()
	var got *SecurityContext
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	f.gate.Middleware(next).ServeHTTP(rec, req)

	require.True(t, called, "gate must always call the next handler")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	return got, rec
}

func TestGate_ValidTokenEstablishesPrincipal(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token)

	require.NotNil(t, sc)
	assert.Equal(t, "ada@example.com", sc.Principal.Email)
	assert.Equal(t, store.RoleUser, sc.Principal.Role)
}

func TestGate_PublicPathSkipsLookup(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	sc, _ := f.serve(t, "/api/v1/auth/login", "Bearer "+token)

	assert.Nil(t, sc)
	assert.Equal(t, 0, f.dir.Lookups)
}

func TestGate_AnonymousFallthrough(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reason string
	}{
		{"no header", "", ""},
		{"basic auth", "Basic YWRhOnB3", ""},
		{"empty bearer", "Bearer ", ""},
		{"garbage token", "Bearer not-a-jwt", reasonTokenVerification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)

			sc, _ := f.serve(t, "/api/v1/posts", tt.header)

			assert.Nil(t, sc)
			assert.Equal(t, 0, f.dir.Lookups)
			if tt.reason == "" {
				assert.Empty(t, f.logs.records)
			} else {
				assert.True(t, f.logs.hasRecordWithReason(tt.reason))
			}
		})
	}
}

func TestGate_TamperedTokenIsAnonymous(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token[:len(token)-4]+"AAAA")

	assert.Nil(t, sc)
	assert.True(t, f.logs.hasRecordWithReason(reasonTokenVerification))
}

func TestGate_ExpiredTokenIsAnonymous(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token)

	assert.Nil(t, sc)
	assert.Equal(t, 1, f.dir.Lookups)
	assert.True(t, f.logs.hasRecordWithReason(reasonTokenRejected))
}

func TestGate_UnknownSubjectIsAnonymous(t *testing.T) {
	f := newGateFixture(t)
	token, err := f.codec.Issue("ghost@example.com", time.Minute)
	require.NoError(t, err)

	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token)

	assert.Nil(t, sc)
	assert.True(t, f.logs.hasRecordWithReason(reasonPrincipalLookup))
}

func TestGate_UnusableAccountIsAnonymous(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)
	require.NoError(t, f.dir.Mutate("ada@example.com", func(p *store.Principal) { p.Enabled = false }))

	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token)

	assert.Nil(t, sc)
	assert.True(t, f.logs.hasRecordWithReason(reasonAccountUnusable))
}

func TestGate_RoleReResolvedPerRequest(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	sc, _ := f.serve(t, "/api/v1/posts", "Bearer "+token)
	require.NotNil(t, sc)
	assert.False(t, sc.IsAdmin())

	require.NoError(t, f.dir.Mutate("ada@example.com", func(p *store.Principal) { p.Role = store.RoleAdmin }))

	sc, _ = f.serve(t, "/api/v1/posts", "Bearer "+token)
	require.NotNil(t, sc)
	assert.True(t, sc.IsAdmin())
	assert.Equal(t, 2, f.dir.Lookups)
}

func TestGate_ExistingPrincipalNotReplaced(t *testing.T) {
	f := newGateFixture(t)
	p := seedPrincipal(t, f.dir, "ada@example.com", "pw", store.RoleUser)
	token, err := f.issuer.IssueAccessToken(p)
	require.NoError(t, err)

	existing := &store.Principal{Email: "earlier@example.com", Role: store.RoleAdmin}
	var got *SecurityContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req = req.WithContext(WithPrincipal(req.Context(), existing))
	f.gate.Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Same(t, existing, got.Principal)
	assert.Equal(t, 0, f.dir.Lookups)
}

func TestGate_NoLoggerNoPanic(t *testing.T) {
	codec := newTestCodec(t, newFakeClock())
	gate := NewGate(store.NewMockStore(), codec, NewPublicPaths(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)
	})
}
