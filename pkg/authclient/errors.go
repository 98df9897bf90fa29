package authclient

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the client. Callers branch with errors.Is.
var (
	// ErrNoSession is returned when an operation needs a stored session
	// and none exists (never logged in, or state was cleared).
	ErrNoSession = errors.New("no active session")

	// ErrSessionExpired is returned once a refresh has terminally failed
	// and the local session state has been cleared.
	ErrSessionExpired = errors.New("session expired")
)

// Machine-readable error codes the service puts in its error envelope.
// Exposed so callers can branch on APIError.Code without magic strings.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeNoToken            = "NO_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeRefreshTokenReused = "REFRESH_TOKEN_REUSED"
	CodeStoreUnavailable   = "SESSION_STORE_UNAVAILABLE"
)

// APIError is a decoded server error envelope. The server responds with
// {"code": "...", "message": "...", "trace_id": "..."} on failures; Code
// carries the machine-readable taxonomy value.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	TraceID    string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// isTransient reports whether err is worth retrying: network failures,
// throttling, and 5xx-class server conditions. Auth rejections (revoked,
// reused, malformed) are terminal and must not be retried; the session is
// gone and repeating the call cannot bring it back.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == CodeStoreUnavailable {
			return true
		}
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// url.Error and friends wrap the transport failure; anything that is
	// not a decoded server rejection is treated as a transport problem.
	return true
}
