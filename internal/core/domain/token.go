package domain

import "time"

// TokenPair is the result of token issuance: a short-lived access token, a
// long-lived single-use refresh token, and the access token's lifetime in
// seconds as declared to clients.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AccessTokenInfo is the decoded, verified view of an access token used by
// the request gate and the logout flow.
type AccessTokenInfo struct {
	Subject   string
	Email     string
	Username  string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RemainingLifetime reports how long the token stays valid from the supplied
// moment. Negative results are clamped to zero.
func (i AccessTokenInfo) RemainingLifetime(at time.Time) time.Duration {
	remaining := i.ExpiresAt.Sub(at)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefreshTokenInfo is the decoded, verified view of a refresh token. TokenID
// combines with Subject to locate the validity record in the session store.
type RefreshTokenInfo struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
