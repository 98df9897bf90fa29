package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursava/auth-service/internal/transport/http/middleware"
	"github.com/coursava/auth-service/internal/usecase"
)

// AuthHandler exposes the credential and session lifecycle endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying the optional
// middleware chains ahead of the throttled endpoints. Routes needing a
// verified identity sit behind the gate; logout runs behind OptionalAuth
// instead so a client holding an already-expired or already-revoked token
// can still complete it, and the handler extracts the bearer token itself.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, gate *middleware.Gate, loginMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	login := append([]gin.HandlerFunc{}, loginMiddlewares...)
	login = append(login, h.login)
	r.POST("/login", login...)

	refresh := append([]gin.HandlerFunc{}, refreshMiddlewares...)
	refresh = append(refresh, h.refresh)
	r.POST("/refresh", refresh...)

	r.POST("/logout", gate.OptionalAuth(), h.logout)
	r.POST("/logout-all", gate.RequireAuth(), h.logoutAll)
	r.GET("/profile", gate.RequireAuth(), h.profile)
}

// login validates the submitted identifier and password, returning an access
// and refresh token pair on success.
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, CodeInvalidRequest, "identifier and password are required"))
		return
	}

	input := usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IP:         strings.TrimSpace(c.ClientIP()),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.Tokens.ExpiresIn,
		User:         newUserSummary(*result.User),
	})
}

// refresh exchanges a valid refresh token for a fresh token pair. The spent
// token is invalidated before the new pair is issued, so replaying it yields
// REFRESH_TOKEN_REUSED.
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, CodeInvalidRequest, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRefreshTokenReused, Status: http.StatusUnauthorized, Code: CodeRefreshTokenReused, Message: "refresh token already used or revoked"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Code: CodeTokenExpired, Message: "refresh token expired"},
			{Err: usecase.ErrTokenMalformed, Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: "invalid refresh token"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Code: CodeAccountDisabled, Message: "account is disabled"},
			{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: CodeStoreUnavailable, Message: "session store unavailable"},
			{Err: usecase.ErrSigningConfiguration, Status: http.StatusInternalServerError, Code: CodeSigningConfiguration, Message: "token signing unavailable"},
		}, http.StatusInternalServerError, CodeInternal, "failed to refresh token")
		return
	}

	response := TokenRefreshResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.Tokens.ExpiresIn,
	}

	rawInclude := c.DefaultQuery("include_user", "false")
	if strings.EqualFold(rawInclude, "true") || rawInclude == "1" {
		summary := newUserSummary(*result.User)
		response.User = &summary
	}

	c.JSON(http.StatusOK, response)
}

// logout blacklists the presented access token for its remaining lifetime.
// Repeating the call with the same token succeeds again; revocation is a
// set-membership write, not a state transition.
func (h *AuthHandler) logout(c *gin.Context) {
	token := bearerFromHeader(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, CodeNoToken, "missing access token"))
		return
	}

	var req LogoutRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, CodeInvalidRequest, "invalid logout payload"))
			return
		}
	}

	err := h.auth.Logout(c.Request.Context(), token, strings.TrimSpace(req.RefreshTokenID))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTokenMalformed, Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: "invalid access token"},
			{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: CodeStoreUnavailable, Message: "session store unavailable"},
		}, http.StatusInternalServerError, CodeInternal, "failed to revoke session")
		return
	}

	c.Status(http.StatusNoContent)
}

// logoutAll ends every refresh session of the authenticated subject and
// reports how many were dropped.
func (h *AuthHandler) logoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, CodeNoToken, "authentication required"))
		return
	}

	count, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: CodeStoreUnavailable, Message: "session store unavailable"},
		}, http.StatusInternalServerError, CodeInternal, "failed to revoke sessions")
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{RevokedCount: count})
}

// profile returns the authenticated subject's account view.
func (h *AuthHandler) profile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, CodeNoToken, "authentication required"))
		return
	}

	user, err := h.auth.Profile(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Code: CodeAccountDisabled, Message: "account is disabled"},
		}, http.StatusInternalServerError, CodeInternal, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{User: newUserSummary(*user)})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var locked *usecase.LockoutError
	if errors.As(err, &locked) {
		respondLocked(c, locked)
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: CodeInvalidCredentials, Message: "invalid credentials"},
		{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Code: CodeAccountDisabled, Message: "account is disabled"},
		{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Code: CodeStoreUnavailable, Message: "session store unavailable"},
		{Err: usecase.ErrSigningConfiguration, Status: http.StatusInternalServerError, Code: CodeSigningConfiguration, Message: "token signing unavailable"},
	}, http.StatusInternalServerError, CodeInternal, "authentication failed")
}

func respondLocked(c *gin.Context, locked *usecase.LockoutError) {
	retryAfter := int64(locked.Remaining / time.Second)
	if locked.Remaining%time.Second != 0 {
		retryAfter++
	}
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

	minutes := locked.RemainingMinutes()
	c.JSON(http.StatusTooManyRequests, LockoutResponse{
		ErrorResponse:    NewErrorResponse(c, CodeAccountLocked, fmt.Sprintf("too many failed attempts: try again in %d minute(s)", minutes)),
		RemainingMinutes: minutes,
	})
}

// bearerFromHeader pulls the bearer token out of the Authorization header.
// Logout runs behind OptionalAuth, which never rejects, so the handler
// extracts the token itself instead of reading gate context.
func bearerFromHeader(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
