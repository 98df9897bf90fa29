package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/infra/security"
	"github.com/coursava/auth-service/internal/repository"
)

// blacklistMarker is the value stored under blacklist keys. Only presence
// matters; the marker makes manual inspection of the store less cryptic.
const blacklistMarker = "revoked"

// refreshRecordValue marks a refresh token as still valid. The record's
// existence, not its value, is what rotation checks.
const refreshRecordValue = "valid"

// TokenService issues, rotates, revokes, and authorizes token pairs. Every
// refresh token it signs is paired with a session-store record whose absence
// revokes the token regardless of its signature; every access token it revokes
// lands on the blacklist for exactly its remaining lifetime.
type TokenService struct {
	codec  *security.TokenCodec
	store  port.SessionStore
	users  port.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(codec *security.TokenCodec, store port.SessionStore, users port.UserRepository, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &TokenService{
		codec:  codec,
		store:  store,
		users:  users,
		logger: logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// AccessTokenTTL reports the configured access-token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.codec.AccessTokenTTL()
}

// Issue signs a new access/refresh pair for the verified identity and records
// the refresh token's validity in the session store. A store write failure
// aborts issuance: a refresh token whose validity cannot be recorded must
// never reach a client.
func (s *TokenService) Issue(ctx context.Context, identity domain.Identity) (*domain.TokenPair, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	accessToken, accessClaims, err := s.codec.SignAccessToken(security.AccessTokenOptions{
		Subject:  identity.ID,
		Email:    identity.Email,
		Username: identity.Username,
		Role:     string(identity.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningConfiguration, err)
	}

	tokenID := uuid.NewString()
	refreshToken, _, err := s.codec.SignRefreshToken(identity.ID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningConfiguration, err)
	}

	key := refreshTokenKey(identity.ID, tokenID)
	if err := s.store.SetWithTTL(ctx, key, refreshRecordValue, s.codec.RefreshTokenTTL()); err != nil {
		return nil, fmt.Errorf("%w: record refresh validity: %v", ErrStoreUnavailable, err)
	}

	expiresIn := int64(accessClaims.ExpiresAt.Time.Sub(accessClaims.IssuedAt.Time) / time.Second)

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// Rotate exchanges a refresh token for a fresh pair. The old token must carry
// a valid signature AND a live session-store record; the record is deleted
// before the new pair is issued, so each refresh token rotates exactly once.
// A missing record means the token was already rotated, explicitly revoked,
// or expired server side - never a retryable condition.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error) {
	claims, err := s.codec.ParseRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	key := refreshTokenKey(claims.Subject, claims.ID)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: check refresh validity: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		s.logger.Warn("refresh token replay or revoked",
			zap.String("subject", claims.Subject),
			zap.String("token_id", claims.ID),
		)
		return nil, nil, ErrRefreshTokenReused
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrRefreshTokenReused
		}
		return nil, nil, fmt.Errorf("lookup subject: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrAccountDisabled
	}

	// Delete before issue: when issuance fails the old token is already
	// burned, which errs toward revocation rather than replay.
	if err := s.store.Delete(ctx, key); err != nil {
		return nil, nil, fmt.Errorf("%w: consume refresh record: %v", ErrStoreUnavailable, err)
	}

	pair, err := s.Issue(ctx, user.Identity())
	if err != nil {
		return nil, nil, err
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return pair, &sanitized, nil
}

// Revoke blacklists an access token for exactly its remaining lifetime and
// returns its decoded view. Expired tokens are a no-op: they already fail
// verification everywhere, and a blacklist entry would only waste store
// memory. Re-revoking an already-listed token rewrites the marker, so the
// operation stays idempotent.
func (s *TokenService) Revoke(ctx context.Context, accessToken string) (*domain.AccessTokenInfo, error) {
	info, err := s.decodeAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return info, nil
		}
		return nil, err
	}

	remaining := info.RemainingLifetime(s.now())
	if remaining <= 0 {
		return info, nil
	}

	if err := s.store.SetWithTTL(ctx, blacklistKey(accessToken), blacklistMarker, remaining); err != nil {
		return nil, fmt.Errorf("%w: blacklist access token: %v", ErrStoreUnavailable, err)
	}

	return info, nil
}

// RevokeRefreshRecord deletes one refresh-token validity record. Used by
// logout when the client names the refresh token it holds; deleting an
// already-absent record is not an error.
func (s *TokenService) RevokeRefreshRecord(ctx context.Context, subject, tokenID string) error {
	subject = strings.TrimSpace(subject)
	tokenID = strings.TrimSpace(tokenID)
	if subject == "" || tokenID == "" {
		return fmt.Errorf("subject and token id are required")
	}

	if err := s.store.Delete(ctx, refreshTokenKey(subject, tokenID)); err != nil {
		return fmt.Errorf("%w: delete refresh record: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// RevokeAllForSubject deletes every refresh record of one subject and reports
// how many went. This is the logout-everywhere mechanism: the next rotation
// attempt with any previously issued refresh token finds no record and fails.
func (s *TokenService) RevokeAllForSubject(ctx context.Context, subject string) (int64, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, fmt.Errorf("subject is required")
	}

	removed, err := s.store.DeleteByPrefix(ctx, subjectRefreshPrefix(subject))
	if err != nil {
		return removed, fmt.Errorf("%w: revoke subject sessions: %v", ErrStoreUnavailable, err)
	}

	return removed, nil
}

// Authorize runs the server-side checks on an inbound bearer token: signature
// and expiry, blacklist membership, and the subject's current account state.
// The decoded view is returned whenever the token was decodable, including on
// rejection, so callers can attach refresh hints to the response.
func (s *TokenService) Authorize(ctx context.Context, accessToken string) (*domain.AccessTokenInfo, error) {
	info, err := s.decodeAccessToken(accessToken)
	if err != nil {
		return info, err
	}

	revoked, err := s.store.Exists(ctx, blacklistKey(accessToken))
	if err != nil {
		// Fail closed: a cryptographically valid token is not trustworthy
		// until the blacklist check also passes.
		return info, fmt.Errorf("%w: check blacklist: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		return info, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, info.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return info, ErrAccountDisabled
		}
		return info, fmt.Errorf("resolve subject state: %w", err)
	}
	if !user.IsActive {
		return info, ErrAccountDisabled
	}

	return info, nil
}

// decodeAccessToken parses and verifies an access token, mapping codec errors
// to the usecase taxonomy. For expired-but-authentic tokens the decoded view
// is returned together with ErrTokenExpired.
func (s *TokenService) decodeAccessToken(accessToken string) (*domain.AccessTokenInfo, error) {
	claims, err := s.codec.ParseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) && claims != nil {
			return accessInfoFromClaims(claims), fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	return accessInfoFromClaims(claims), nil
}

func accessInfoFromClaims(claims *security.AccessTokenClaims) *domain.AccessTokenInfo {
	info := &domain.AccessTokenInfo{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     domain.Role(claims.Role),
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}
