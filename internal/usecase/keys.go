package usecase

// Session store key namespace: refresh validity under
// refresh:{subject}:{tokenId}, revoked access tokens under blacklist:{token},
// and login-attempt counters under attempts:{identifier}.
const (
	refreshKeyPrefix   = "refresh:"
	blacklistKeyPrefix = "blacklist:"
	attemptsKeyPrefix  = "attempts:"
)

func refreshTokenKey(subject, tokenID string) string {
	return refreshKeyPrefix + subject + ":" + tokenID
}

// subjectRefreshPrefix is the prefix shared by every refresh record of one
// subject; deleting under it is the logout-everywhere mechanism.
func subjectRefreshPrefix(subject string) string {
	return refreshKeyPrefix + subject + ":"
}

// blacklistKey derives the revocation key from the raw token string. Tokens
// are compared by exact string match, so a signing-key rotation would leave
// previously issued tokens unrevocable through this key.
func blacklistKey(accessToken string) string {
	return blacklistKeyPrefix + accessToken
}

func attemptsKey(identifier string) string {
	return attemptsKeyPrefix + identifier
}
