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
	"github.com/coursava/auth-service/internal/infra/logger"
	"github.com/coursava/auth-service/internal/infra/security"
	"github.com/coursava/auth-service/internal/repository"
)

// LoginInput carries the credentials of a login attempt plus the client IP
// used for per-source brute-force accounting.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
}

// LoginResult pairs the issued tokens with the sanitized authenticated user.
type LoginResult struct {
	Tokens *domain.TokenPair
	User   *domain.User
}

// AuthService coordinates the authentication flows: credential login, refresh
// rotation, logout, and profile lookup. Lockout checks run before any
// credential work so a locked caller learns nothing new per attempt.
type AuthService struct {
	users     port.UserRepository
	tokens    *TokenService
	lockout   *LockoutService
	publisher port.EventPublisher
	logger    *zap.Logger
	metrics   *AuthMetrics
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	tokens *TokenService,
	lockout *LockoutService,
	publisher port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &AuthService{
		users:     users,
		tokens:    tokens,
		lockout:   lockout,
		publisher: publisher,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches outcome counters.
func (s *AuthService) WithMetrics(metrics *AuthMetrics) *AuthService {
	s.metrics = metrics
	return s
}

// Login validates credentials and issues a token pair. The order is fixed:
// lockout check, user lookup, account state, password verification. Failed
// credential checks feed the lockout counters; a success clears them.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Identifier = strings.TrimSpace(input.Identifier)

	if err := s.lockout.CheckAllowed(ctx, input.Identifier, input.IP); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.metrics.countLogin(outcomeLocked)
		}
		return nil, err
	}

	user, err := s.users.GetByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.failAttempt(ctx, input.Identifier, input.IP)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		s.metrics.countLogin(outcomeDisabled)
		return nil, ErrAccountDisabled
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.failAttempt(ctx, input.Identifier, input.IP)
	}

	if err := s.lockout.RecordSuccess(ctx, input.Identifier, input.IP); err != nil {
		s.logger.Warn("reset lockout counters failed",
			zap.String("identifier", logger.MaskIdentifier(input.Identifier)),
			zap.Error(err),
		)
	}

	pair, err := s.tokens.Issue(ctx, user.Identity())
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.publishLoggedIn(ctx, user, input.IP, now)
	s.metrics.countLogin(outcomeSuccess)

	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{Tokens: pair, User: &sanitized}, nil
}

// failAttempt records a credential failure against both counters and reports
// the attempt as invalid credentials. A store failure while recording
// surfaces instead, matching the fail-closed handling of the lockout check.
func (s *AuthService) failAttempt(ctx context.Context, identifier, ip string) error {
	if err := s.lockout.RecordFailure(ctx, identifier, ip); err != nil {
		return err
	}
	s.metrics.countLogin(outcomeInvalidCredentials)
	return ErrInvalidCredentials
}

// Refresh exchanges a valid single-use refresh token for a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	pair, user, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		s.metrics.countRefresh(refreshOutcome(err))
		return nil, err
	}
	s.metrics.countRefresh(outcomeSuccess)
	return &LoginResult{Tokens: pair, User: user}, nil
}

// Logout blacklists the presented access token for its remaining lifetime and
// optionally drops one refresh validity record. Repeating a logout with the
// same token is a no-op, not an error.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshTokenID string) error {
	info, err := s.tokens.Revoke(ctx, accessToken)
	if err != nil {
		return err
	}

	if refreshTokenID != "" {
		if err := s.tokens.RevokeRefreshRecord(ctx, info.Subject, refreshTokenID); err != nil {
			return err
		}
	}

	s.publishTokenRevoked(ctx, info)
	s.metrics.countRevocation("logout")
	return nil
}

// LogoutAll wipes every refresh validity record of the subject and reports
// how many sessions that ended. Already-issued access tokens keep working
// until expiry unless individually blacklisted.
func (s *AuthService) LogoutAll(ctx context.Context, subject string) (int64, error) {
	count, err := s.tokens.RevokeAllForSubject(ctx, subject)
	if err != nil {
		return 0, err
	}

	s.publishSessionsRevoked(ctx, subject, count)
	s.metrics.countRevocation("logout_all")
	return count, nil
}

// Profile returns the sanitized account of an authenticated subject.
func (s *AuthService) Profile(ctx context.Context, subject string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountDisabled
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

func (s *AuthService) publishLoggedIn(ctx context.Context, user *domain.User, ip string, at time.Time) {
	if s.publisher == nil {
		return
	}

	event := domain.UserLoggedInEvent{
		EventID:  uuid.NewString(),
		UserID:   user.ID,
		Username: user.Username,
		IP:       ip,
		LoggedAt: at,
	}
	if err := s.publisher.PublishUserLoggedIn(ctx, event); err != nil {
		s.logger.Warn("publish user logged in event failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func (s *AuthService) publishTokenRevoked(ctx context.Context, info *domain.AccessTokenInfo) {
	if s.publisher == nil {
		return
	}

	event := domain.TokenRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    info.Subject,
		Reason:    "logout",
		RevokedAt: s.now(),
		ExpiresAt: info.ExpiresAt,
	}
	if err := s.publisher.PublishTokenRevoked(ctx, event); err != nil {
		s.logger.Warn("publish token revoked event failed",
			zap.String("user_id", info.Subject),
			zap.Error(err),
		)
	}
}

func (s *AuthService) publishSessionsRevoked(ctx context.Context, subject string, count int64) {
	if s.publisher == nil {
		return
	}

	event := domain.SessionsRevokedEvent{
		EventID:      uuid.NewString(),
		UserID:       subject,
		RevokedCount: count,
		Reason:       "logout_all",
		RevokedAt:    s.now(),
	}
	if err := s.publisher.PublishSessionsRevoked(ctx, event); err != nil {
		s.logger.Warn("publish sessions revoked event failed",
			zap.String("user_id", subject),
			zap.Error(err),
		)
	}
}
