package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/infra/security"
	"github.com/coursava/auth-service/internal/repository"
	redisrepo "github.com/coursava/auth-service/internal/repository/redis"
	"github.com/coursava/auth-service/internal/transport/http/middleware"
	"github.com/coursava/auth-service/internal/usecase"
)

const testPassword = "Sup3rStrong!1"

type stubUsers struct {
	users map[string]domain.User
}

func (s *stubUsers) Create(ctx context.Context, user domain.User) error {
	return fmt.Errorf("unexpected call: Create")
}

func (s *stubUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *stubUsers) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	for _, user := range s.users {
		if user.Email == identifier || user.Username == identifier {
			found := user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}

type authAPIFixture struct {
	router *gin.Engine
	server *miniredis.Miniredis
	codec  *security.TokenCodec
}

func newAuthAPIFixture(t *testing.T) *authAPIFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	store := redisrepo.NewSessionRepository(client)

	codec, err := security.NewTokenCodec(security.TokenCodecOptions{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		Issuer:        "auth-service-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token codec: %v", err)
	}

	hash, err := security.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	users := &stubUsers{users: map[string]domain.User{
		"user-1": {
			ID:           "user-1",
			Email:        "sam@example.com",
			Username:     "sam",
			PasswordHash: hash,
			Role:         domain.RoleStudent,
			IsActive:     true,
			CreatedAt:    time.Now().UTC().Add(-24 * time.Hour),
		},
		"user-2": {
			ID:           "user-2",
			Email:        "dora@example.com",
			Username:     "dora",
			PasswordHash: hash,
			Role:         domain.RoleInstructor,
			IsActive:     false,
			CreatedAt:    time.Now().UTC().Add(-24 * time.Hour),
		},
	}}

	log := zaptest.NewLogger(t)
	tokens := usecase.NewTokenService(codec, store, users, log)
	lockout := usecase.NewLockoutService(store, nil, usecase.LockoutSettings{}, log)
	auth := usecase.NewAuthService(users, tokens, lockout, nil, log)
	gate := middleware.NewGate(tokens)

	router := gin.New()
	NewAuthHandler(auth).RegisterRoutes(router.Group("/api/v1/auth"), gate, nil, nil)

	return &authAPIFixture{router: router, server: server, codec: codec}
}

func (f *authAPIFixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *authAPIFixture) login(t *testing.T, identifier, password string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{
		"identifier": identifier,
		"password":   password,
	}, "")
}

func (f *authAPIFixture) mustLogin(t *testing.T) AuthLoginResponse {
	t.Helper()

	rec := f.login(t, "sam@example.com", testPassword)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp AuthLoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestLoginReturnsTokenPair(t *testing.T) {
	f := newAuthAPIFixture(t)

	resp := f.mustLogin(t)

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both tokens, got access=%q refresh=%q", resp.AccessToken, resp.RefreshToken)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("token_type = %q, want %q", resp.TokenType, "Bearer")
	}
	if resp.ExpiresIn != 900 {
		t.Fatalf("expires_in = %d, want 900", resp.ExpiresIn)
	}
	if resp.User.ID != "user-1" || resp.User.Username != "sam" || resp.User.Role != domain.RoleStudent {
		t.Fatalf("unexpected user summary: %+v", resp.User)
	}
}

func TestLoginNeverLeaksPasswordMaterial(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.login(t, "sam@example.com", testPassword)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	if strings.Contains(body, "password") || strings.Contains(body, "argon2id") {
		t.Fatalf("response leaked credential material: %s", body)
	}
}

func TestLoginWrongPasswordReturnsInvalidCredentials(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.login(t, "sam@example.com", "not-the-password")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	resp := decodeError(t, rec)
	if resp.Code != CodeInvalidCredentials {
		t.Fatalf("code = %q, want %q", resp.Code, CodeInvalidCredentials)
	}
}

func TestLoginMissingPasswordReturnsValidationError(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"identifier": "sam"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	resp := decodeError(t, rec)
	if resp.Code != CodeInvalidRequest {
		t.Fatalf("code = %q, want %q", resp.Code, CodeInvalidRequest)
	}
}

func TestLoginDisabledAccountReturnsForbidden(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.login(t, "dora@example.com", testPassword)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	resp := decodeError(t, rec)
	if resp.Code != CodeAccountDisabled {
		t.Fatalf("code = %q, want %q", resp.Code, CodeAccountDisabled)
	}
}

func TestLoginLockedAccountReturnsTooManyRequests(t *testing.T) {
	f := newAuthAPIFixture(t)

	for i := 0; i < 5; i++ {
		rec := f.login(t, "sam@example.com", "not-the-password")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want %d", i+1, rec.Code, http.StatusUnauthorized)
		}
	}

	rec := f.login(t, "sam@example.com", testPassword)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusTooManyRequests, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "900" {
		t.Fatalf("Retry-After = %q, want %q", got, "900")
	}

	var resp LockoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode lockout response: %v", err)
	}
	if resp.Code != CodeAccountLocked {
		t.Fatalf("code = %q, want %q", resp.Code, CodeAccountLocked)
	}
	if resp.RemainingMinutes != 15 {
		t.Fatalf("remaining_minutes = %d, want 15", resp.RemainingMinutes)
	}
}

func TestRefreshRotatesTokenPair(t *testing.T) {
	f := newAuthAPIFixture(t)
	first := f.mustLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": first.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp TokenRefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode refresh response: %v", err)
	}
	if resp.RefreshToken == "" || resp.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a fresh refresh token, got %q", resp.RefreshToken)
	}
	if resp.User != nil {
		t.Fatalf("user should be omitted unless include_user is set, got %+v", resp.User)
	}

	replay := f.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": first.RefreshToken}, "")
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want %d", replay.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, replay); resp.Code != CodeRefreshTokenReused {
		t.Fatalf("replay code = %q, want %q", resp.Code, CodeRefreshTokenReused)
	}
}

func TestRefreshIncludeUserReturnsSummary(t *testing.T) {
	f := newAuthAPIFixture(t)
	first := f.mustLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/refresh?include_user=true", gin.H{"refresh_token": first.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp TokenRefreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode refresh response: %v", err)
	}
	if resp.User == nil || resp.User.ID != "user-1" {
		t.Fatalf("expected user summary for user-1, got %+v", resp.User)
	}
}

func TestRefreshGarbageTokenReturnsInvalidToken(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": "garbage"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rec); resp.Code != CodeInvalidToken {
		t.Fatalf("code = %q, want %q", resp.Code, CodeInvalidToken)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	f := newAuthAPIFixture(t)
	session := f.mustLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", nil, session.AccessToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d (body: %s)", rec.Code, http.StatusNoContent, rec.Body.String())
	}

	profile := f.do(t, http.MethodGet, "/api/v1/auth/profile", nil, session.AccessToken)
	if profile.Code != http.StatusUnauthorized {
		t.Fatalf("profile status after logout = %d, want %d", profile.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, profile); resp.Code != CodeTokenRevoked {
		t.Fatalf("code = %q, want %q", resp.Code, CodeTokenRevoked)
	}

	again := f.do(t, http.MethodPost, "/api/v1/auth/logout", nil, session.AccessToken)
	if again.Code != http.StatusNoContent {
		t.Fatalf("repeated logout status = %d, want %d", again.Code, http.StatusNoContent)
	}
}

func TestLogoutWithoutTokenReturnsNoToken(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rec); resp.Code != CodeNoToken {
		t.Fatalf("code = %q, want %q", resp.Code, CodeNoToken)
	}
}

func TestLogoutRetiresNamedRefreshRecord(t *testing.T) {
	f := newAuthAPIFixture(t)
	session := f.mustLogin(t)

	claims, err := f.codec.ParseRefreshToken(session.RefreshToken)
	if err != nil {
		t.Fatalf("failed to parse refresh token: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", gin.H{"refresh_token_id": claims.ID}, session.AccessToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	refresh := f.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": session.RefreshToken}, "")
	if refresh.Code != http.StatusUnauthorized {
		t.Fatalf("refresh status = %d, want %d", refresh.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, refresh); resp.Code != CodeRefreshTokenReused {
		t.Fatalf("code = %q, want %q", resp.Code, CodeRefreshTokenReused)
	}
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	f := newAuthAPIFixture(t)
	first := f.mustLogin(t)
	second := f.mustLogin(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout-all", nil, first.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp LogoutAllResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode logout-all response: %v", err)
	}
	if resp.RevokedCount != 2 {
		t.Fatalf("revoked_count = %d, want 2", resp.RevokedCount)
	}

	for i, token := range []string{first.RefreshToken, second.RefreshToken} {
		refresh := f.do(t, http.MethodPost, "/api/v1/auth/refresh", gin.H{"refresh_token": token}, "")
		if refresh.Code != http.StatusUnauthorized {
			t.Fatalf("refresh %d status = %d, want %d", i+1, refresh.Code, http.StatusUnauthorized)
		}
	}

	// Access tokens stay live until expiry; logout-all only ends refreshability.
	profile := f.do(t, http.MethodGet, "/api/v1/auth/profile", nil, first.AccessToken)
	if profile.Code != http.StatusOK {
		t.Fatalf("profile status = %d, want %d", profile.Code, http.StatusOK)
	}
}

func TestLogoutAllWithoutTokenIsRejectedByGate(t *testing.T) {
	f := newAuthAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout-all", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rec); resp.Code != CodeNoToken {
		t.Fatalf("code = %q, want %q", resp.Code, CodeNoToken)
	}
}

func TestProfileReturnsAuthenticatedUser(t *testing.T) {
	f := newAuthAPIFixture(t)
	session := f.mustLogin(t)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/profile", nil, session.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp ProfileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode profile response: %v", err)
	}
	if resp.User.ID != "user-1" || resp.User.Email != "sam@example.com" || resp.User.Role != domain.RoleStudent {
		t.Fatalf("unexpected profile: %+v", resp.User)
	}
}
