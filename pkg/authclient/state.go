package authclient

import "time"

// Session is the client-side token state for the process. One logical
// session exists at a time; the Monitor owns the mutable copy and hands
// out value snapshots so callers can never race on the fields.
type Session struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsRefreshing  bool      `json:"-"`
	LastRefreshAt time.Time `json:"last_refresh_at,omitzero"`
}

// Active reports whether the session holds a token pair at all. It says
// nothing about expiry; an expired pair is still Active until cleared.
func (s Session) Active() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// RemainingLifetime returns how long the access token stays valid from
// the given instant, clamped at zero.
func (s Session) RemainingLifetime(at time.Time) time.Duration {
	remaining := s.ExpiresAt.Sub(at)
	if remaining < 0 {
		return 0
	}
	return remaining
}
