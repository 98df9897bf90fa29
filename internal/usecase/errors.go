package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates too many failed login attempts for the identifier or IP.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountDisabled indicates the account exists but cannot authenticate.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTokenMalformed indicates a token failed structural or signature checks.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked indicates the access token was blacklisted before natural expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshTokenReused indicates a refresh token whose validity record is
	// gone: it was already rotated, explicitly revoked, or expired server side.
	ErrRefreshTokenReused = errors.New("refresh token reused or revoked")
	// ErrSigningConfiguration indicates tokens cannot be signed; structural, never user-facing.
	ErrSigningConfiguration = errors.New("signing configuration error")
	// ErrStoreUnavailable indicates the session store cannot be reached. Fatal
	// for login and refresh: issuing a token whose validity cannot be recorded
	// is unsafe.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// LockoutError carries how long a locked identifier or IP stays rejected.
// It unwraps to ErrAccountLocked so callers can branch with errors.Is and
// extract the remaining wait with errors.As.
type LockoutError struct {
	Scope     string
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s locked for %d more minute(s)", e.Scope, e.RemainingMinutes())
}

func (e *LockoutError) Unwrap() error {
	return ErrAccountLocked
}

// RemainingMinutes reports the lockout remainder rounded up to whole minutes,
// so a user is never told zero while still locked.
func (e *LockoutError) RemainingMinutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	minutes := int((e.Remaining + time.Minute - 1) / time.Minute)
	return minutes
}
