// ABOUTME: HTTP API handlers for the auth protocol, account and admin endpoints
// ABOUTME: Validates JSON bodies and translates protocol errors into status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/2389/inkwell/internal/accounts"
	"github.com/2389/inkwell/internal/auth"
	"github.com/2389/inkwell/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// localDateTimeLayout renders instants as local wall-clock time without an offset.
const localDateTimeLayout = "2006-01-02T15:04:05"

// LocalDateTime marshals as local wall-clock time in the server's zone.
type LocalDateTime time.Time

// MarshalJSON implements json.Marshaler.
func (t LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(localDateTimeLayout))
}

// SignupRequest is the JSON request body for POST /api/v1/auth/signup.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72,maxbytes=72"`
}

// LoginRequest is the JSON request body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for POST /api/v1/auth/refresh-token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// AuthenticationResponse is returned by all three auth endpoints.
type AuthenticationResponse struct {
	AccessToken           string        `json:"accessToken"`
	RefreshToken          string        `json:"refreshToken"`
	AccessTokenExpiresAt  LocalDateTime `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt LocalDateTime `json:"refreshTokenExpiresAt"`
}

// PrincipalResponse describes a principal without its password hash.
type PrincipalResponse struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Email              string        `json:"email"`
	Role               string        `json:"role"`
	Enabled            bool          `json:"enabled"`
	AccountLocked      bool          `json:"accountLocked"`
	CredentialsExpired bool          `json:"credentialsExpired"`
	AccountExpired     bool          `json:"accountExpired"`
	CreatedAt          LocalDateTime `json:"createdAt"`
}

// ListPrincipalsResponse is the JSON response for GET {admin}/principals.
type ListPrincipalsResponse struct {
	Principals []PrincipalResponse `json:"principals"`
}

// AuditEntryResponse is one row of GET {admin}/audit.
type AuditEntryResponse struct {
	ID        string        `json:"id"`
	Actor     string        `json:"actor"`
	Action    string        `json:"action"`
	Subject   string        `json:"subject,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp LocalDateTime `json:"timestamp"`
}

// ListAuditResponse is the JSON response for GET {admin}/audit.
type ListAuditResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// maxbytes bounds the UTF-8 length where max counts characters.
	if err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	}); err != nil {
		panic(err)
	}
	return v
}

// validationMessage turns the first validation failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes a 400 and returns false.
func (g *Gateway) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			g.sendJSONError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := g.validate.Struct(dst); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func toAuthenticationResponse(o *accounts.Outcome) AuthenticationResponse {
	return AuthenticationResponse{
		AccessToken:           o.AccessToken,
		RefreshToken:          o.RefreshToken,
		AccessTokenExpiresAt:  LocalDateTime(o.AccessTokenExpiresAt),
		RefreshTokenExpiresAt: LocalDateTime(o.RefreshTokenExpiresAt),
	}
}

func toPrincipalResponse(p *store.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Email:              p.Email,
		Role:               string(p.Role),
		Enabled:            p.Enabled,
		AccountLocked:      p.AccountLocked,
		CredentialsExpired: p.CredentialsExpired,
		AccountExpired:     p.AccountExpired,
		CreatedAt:          LocalDateTime(p.CreatedAt.In(time.Local)),
	}
}

// handleSignup handles POST /api/v1/auth/signup.
func (g *Gateway) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := g.accounts.Signup(r.Context(), accounts.SignupRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		g.sendProtocolError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAuthenticationResponse(outcome))
}

// handleLogin handles POST /api/v1/auth/login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := g.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		g.sendProtocolError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAuthenticationResponse(outcome))
}

// handleRefreshToken handles POST /api/v1/auth/refresh-token.
func (g *Gateway) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !g.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := g.accounts.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		g.sendProtocolError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, toAuthenticationResponse(outcome))
}

// handleHealthCheck reports UP when the store answers.
func (g *Gateway) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(); err != nil {
		g.logger.Error("health check failed", "error", err)
		g.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// handleMe returns the authenticated principal.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	sc := auth.FromContext(r.Context())
	if sc == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	g.sendJSON(w, http.StatusOK, toPrincipalResponse(sc.Principal))
}

// parsePaging reads non-negative limit and offset query parameters.
func parsePaging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// handleListPrincipals handles GET {admin}/principals.
func (g *Gateway) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.PrincipalFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("role"); s != "" {
		role := store.Role(strings.ToUpper(s))
		if !role.Valid() {
			g.sendJSONError(w, http.StatusBadRequest, "role must be ADMIN or USER")
			return
		}
		filter.Role = &role
	}

	principals, err := g.accounts.Principals(r.Context(), filter)
	if err != nil {
		g.sendProtocolError(w, r, err)
		return
	}

	resp := ListPrincipalsResponse{Principals: make([]PrincipalResponse, 0, len(principals))}
	for i := range principals {
		resp.Principals = append(resp.Principals, toPrincipalResponse(&principals[i]))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleListAudit handles GET {admin}/audit.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := store.AuditFilter{
		Limit:   limit,
		Offset:  offset,
		Action:  store.AuditAction(q.Get("action")),
		Subject: q.Get("subject"),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		g.sendJSONError(w, http.StatusBadRequest, "unknown audit action")
		return
	}

	entries, err := g.accounts.AuditTrail(r.Context(), filter)
	if err != nil {
		g.sendProtocolError(w, r, err)
		return
	}

	resp := ListAuditResponse{Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, AuditEntryResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    string(e.Action),
			Subject:   e.Subject,
			Reason:    string(e.Reason),
			Timestamp: LocalDateTime(e.Timestamp.In(time.Local)),
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// sendProtocolError maps service errors onto HTTP responses. Token and
// credential failures never expose detail.
func (g *Gateway) sendProtocolError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials), errors.Is(err, accounts.ErrPrincipalNotFound):
		g.sendJSONError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, accounts.ErrInvalidToken):
		g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, accounts.ErrDuplicateIdentifier):
		g.sendJSONError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, accounts.ErrAccountUnavailable):
		g.sendJSONError(w, http.StatusForbidden, "account unavailable")
	case errors.Is(err, accounts.ErrPasswordTooLong):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		g.logger.Error("request failed", "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
