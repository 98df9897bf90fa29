package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/transport/http/middleware"
)

// Machine-readable error codes carried in the error envelope. Clients branch
// on the code; the message is advisory and may change.
const (
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountLocked        = "ACCOUNT_LOCKED"
	CodeAccountDisabled      = "ACCOUNT_DISABLED"
	CodeNoToken              = "NO_TOKEN"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeRefreshTokenReused   = "REFRESH_TOKEN_REUSED"
	CodeSigningConfiguration = "SIGNING_CONFIGURATION"
	CodeStoreUnavailable     = "SESSION_STORE_UNAVAILABLE"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInternal             = "INTERNAL_ERROR"
)

// ErrorResponse is the error envelope returned by every failing endpoint.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: middleware.GetTraceID(c),
	}
}

// LockoutResponse extends the error envelope with the minutes left on an
// active lockout window.
type LockoutResponse struct {
	ErrorResponse
	RemainingMinutes int `json:"remaining_minutes"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Username  string      `json:"username"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	LastLogin *time.Time  `json:"last_login,omitempty"`
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// AuthLoginResponse describes the response returned for a successful login.
type AuthLoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains tokens issued by the refresh endpoint.
type TokenRefreshResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *UserSummary `json:"user,omitempty"`
}

// LogoutRequest optionally names the refresh token record to retire together
// with the presented access token.
type LogoutRequest struct {
	RefreshTokenID string `json:"refresh_token_id"`
}

// LogoutAllResponse summarises a bulk session revocation.
type LogoutAllResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

// ProfileResponse wraps the authenticated user's account view.
type ProfileResponse struct {
	User UserSummary `json:"user"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserSummary converts a domain user to a summary suitable for API responses.
func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
	}
}
