package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/usecase"
)

// Refresh-hint headers stamped by the gate and read by client token monitors.
const (
	HeaderTokenExpired       = "X-Token-Expired"
	HeaderRefreshRequired    = "X-Refresh-Required"
	HeaderTokenExpiresIn     = "X-Token-Expires-In"
	HeaderRefreshRecommended = "X-Token-Refresh-Recommended"
	HeaderRefreshPriority    = "X-Refresh-Priority"
)

// Context keys set by the gate for downstream handlers.
const (
	// ClaimsKey holds the decoded *domain.AccessTokenInfo.
	ClaimsKey = "claims"
	// RoleKey holds the token's role claim as a string.
	RoleKey = "role"
)

// Machine codes for gate rejections. They match the handlers' taxonomy.
const (
	codeNoToken          = "NO_TOKEN"
	codeInvalidToken     = "INVALID_TOKEN"
	codeTokenExpired     = "TOKEN_EXPIRED"
	codeTokenRevoked     = "TOKEN_REVOKED"
	codeAccountDisabled  = "ACCOUNT_DISABLED"
	codeStoreUnavailable = "SESSION_STORE_UNAVAILABLE"
)

const (
	defaultRefreshThreshold = 5 * time.Minute
	defaultWarningThreshold = 10 * time.Minute
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID.
func newErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: GetTraceID(c),
	}
}

// TokenAuthorizer runs the server-side checks on a bearer token: signature
// and expiry, blacklist membership, account state. The decoded view comes
// back non-nil for any decodable token, including rejected ones, so the gate
// can stamp refresh hints.
type TokenAuthorizer interface {
	Authorize(ctx context.Context, accessToken string) (*domain.AccessTokenInfo, error)
}

// Gate guards routes with bearer-token checks and annotates responses with
// refresh-hint headers whenever the presented token decoded.
type Gate struct {
	authorizer       TokenAuthorizer
	refreshThreshold time.Duration
	warningThreshold time.Duration
	now              func() time.Time
}

// GateOption customizes gate construction.
type GateOption func(*Gate)

// WithHintThresholds overrides the refresh-hint thresholds. Tokens with less
// than warning remaining get a recommendation; less than refresh marks it
// high priority.
func WithHintThresholds(refresh, warning time.Duration) GateOption {
	return func(g *Gate) {
		if refresh > 0 {
			g.refreshThreshold = refresh
		}
		if warning > 0 {
			g.warningThreshold = warning
		}
	}
}

// WithGateClock overrides the gate clock for deterministic tests.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate constructs a request gate around the supplied authorizer.
func NewGate(authorizer TokenAuthorizer, opts ...GateOption) *Gate {
	gate := &Gate{
		authorizer:       authorizer,
		refreshThreshold: defaultRefreshThreshold,
		warningThreshold: defaultWarningThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate
}

// RequireAuth rejects requests without a valid, unrevoked bearer token whose
// subject is still active. On success the decoded identity is attached to the
// request context.
func (g *Gate) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code, message := bearerToken(c)
		if code != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, code, message))
			return
		}

		info, err := g.authorizer.Authorize(c.Request.Context(), token)
		if info != nil {
			g.stampHints(c, info, err)
		}
		if err != nil {
			status, code, message := rejectionFor(err)
			c.AbortWithStatusJSON(status, newErrorResponse(c, code, message))
			return
		}

		attachIdentity(c, info)
		c.Next()
	}
}

// OptionalAuth decodes a bearer token when one is present, stamping refresh
// hints and attaching identity on success, but never rejects the request.
// Routes carrying it stay reachable with a missing, expired, or revoked
// token.
func (g *Gate) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, code, _ := bearerToken(c)
		if code != "" {
			c.Next()
			return
		}

		info, err := g.authorizer.Authorize(c.Request.Context(), token)
		if info != nil {
			g.stampHints(c, info, err)
		}
		if err == nil {
			attachIdentity(c, info)
		}
		c.Next()
	}
}

// stampHints attaches refresh-hint headers based on the token's remaining
// lifetime. Expired tokens get the hard signal pair; live tokens under the
// warning threshold get the countdown with a priority marker.
func (g *Gate) stampHints(c *gin.Context, info *domain.AccessTokenInfo, authErr error) {
	if errors.Is(authErr, usecase.ErrTokenExpired) {
		c.Header(HeaderTokenExpired, "true")
		c.Header(HeaderRefreshRequired, "true")
		return
	}

	remaining := info.RemainingLifetime(g.now())
	if remaining >= g.warningThreshold {
		return
	}

	c.Header(HeaderTokenExpiresIn, strconv.FormatInt(int64(remaining/time.Second), 10))
	c.Header(HeaderRefreshRecommended, "true")
	if remaining < g.refreshThreshold {
		c.Header(HeaderRefreshPriority, "high")
	} else {
		c.Header(HeaderRefreshPriority, "normal")
	}
}

// bearerToken extracts the bearer token from the Authorization header. A
// non-empty code signals the extraction failure to report.
func bearerToken(c *gin.Context) (token, code, message string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", codeNoToken, "missing authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", codeInvalidToken, "invalid authorization format: expected 'Bearer <token>'"
	}

	token = strings.TrimSpace(parts[1])
	if token == "" {
		return "", codeNoToken, "missing access token"
	}

	return token, "", ""
}

func rejectionFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, usecase.ErrTokenExpired):
		return http.StatusUnauthorized, codeTokenExpired, "access token expired"
	case errors.Is(err, usecase.ErrTokenRevoked):
		return http.StatusUnauthorized, codeTokenRevoked, "access token revoked"
	case errors.Is(err, usecase.ErrAccountDisabled):
		return http.StatusForbidden, codeAccountDisabled, "account is disabled"
	case errors.Is(err, usecase.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, codeStoreUnavailable, "session store unavailable"
	default:
		return http.StatusUnauthorized, codeInvalidToken, "invalid access token"
	}
}

func attachIdentity(c *gin.Context, info *domain.AccessTokenInfo) {
	c.Set(UserIDKey, info.Subject)
	c.Set(ClaimsKey, info)
	c.Set(RoleKey, string(info.Role))

	if reqCtx := GetRequestContext(c); reqCtx != nil {
		reqCtx.UserID = info.Subject
	}
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
