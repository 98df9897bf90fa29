package domain

import "time"

// UserLoggedInEvent represents the payload for auth.user.logged_in messages.
type UserLoggedInEvent struct {
	EventID  string
	UserID   string
	Username string
	IP       string
	LoggedAt time.Time
	Metadata map[string]any
}

// AccountLockedEvent represents the payload for auth.account.locked messages,
// emitted when failed-login counters reach the configured maximum.
type AccountLockedEvent struct {
	EventID    string
	Identifier string
	IP         string
	Attempts   int64
	LockedAt   time.Time
	UnlocksAt  time.Time
	Metadata   map[string]any
}

// TokenRevokedEvent represents the payload for auth.token.revoked messages
// (logout blacklisting an access token before natural expiry).
type TokenRevokedEvent struct {
	EventID   string
	UserID    string
	Reason    string
	RevokedAt time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// SessionsRevokedEvent represents the payload for auth.sessions.revoked
// messages (logout-everywhere wiping every refresh token of a subject).
type SessionsRevokedEvent struct {
	EventID      string
	UserID       string
	RevokedCount int64
	Reason       string
	RevokedAt    time.Time
	Metadata     map[string]any
}
