package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/infra/logger"
	"github.com/coursava/auth-service/internal/repository"
)

const (
	defaultMaxIdentifierAttempts = 5
	defaultMaxIPAttempts         = 10
	defaultLockoutDuration       = 15 * time.Minute
)

// LockoutSettings tunes the brute-force protection counters.
type LockoutSettings struct {
	MaxIdentifierAttempts int
	MaxIPAttempts         int
	Duration              time.Duration
}

// LockoutService tracks failed-login counters per identifier and per client IP
// in the session store and rejects further attempts once either counter
// reaches its maximum. The lockout window runs from the FIRST failure: the TTL
// is applied on the first increment only, so repeated probing cannot extend a
// lockout indefinitely.
type LockoutService struct {
	store     port.SessionStore
	publisher port.EventPublisher
	logger    *zap.Logger
	settings  LockoutSettings
	metrics   *AuthMetrics
	now       func() time.Time
}

// NewLockoutService constructs a LockoutService instance.
func NewLockoutService(store port.SessionStore, publisher port.EventPublisher, settings LockoutSettings, log *zap.Logger) *LockoutService {
	if log == nil {
		log = zap.NewNop()
	}
	if settings.MaxIdentifierAttempts <= 0 {
		settings.MaxIdentifierAttempts = defaultMaxIdentifierAttempts
	}
	if settings.MaxIPAttempts <= 0 {
		settings.MaxIPAttempts = defaultMaxIPAttempts
	}
	if settings.Duration <= 0 {
		settings.Duration = defaultLockoutDuration
	}

	service := &LockoutService{
		store:     store,
		publisher: publisher,
		logger:    log,
		settings:  settings,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the service clock for deterministic tests.
func (s *LockoutService) WithClock(clock func() time.Time) *LockoutService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics attaches outcome counters.
func (s *LockoutService) WithMetrics(metrics *AuthMetrics) *LockoutService {
	s.metrics = metrics
	return s
}

// CheckAllowed is the read-only precondition evaluated before any credential
// verification, so a locked-out caller cannot use timing or error differences
// to keep probing. Either counter at its maximum rejects the attempt with the
// remaining lockout duration.
func (s *LockoutService) CheckAllowed(ctx context.Context, identifier, ip string) error {
	if err := s.checkCounter(ctx, identifier, s.settings.MaxIdentifierAttempts, "account"); err != nil {
		return err
	}
	if err := s.checkCounter(ctx, ip, s.settings.MaxIPAttempts, "client"); err != nil {
		return err
	}
	return nil
}

func (s *LockoutService) checkCounter(ctx context.Context, identifier string, max int, scope string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	count, err := s.readCounter(ctx, identifier)
	if err != nil {
		return err
	}
	if count < int64(max) {
		return nil
	}

	remaining, err := s.store.TTL(ctx, attemptsKey(identifier))
	if err != nil {
		return fmt.Errorf("%w: read lockout ttl: %v", ErrStoreUnavailable, err)
	}
	if remaining <= 0 {
		// Counter at max but no expiry left; treat as a full window so the
		// caller is never told zero while still rejected.
		remaining = s.settings.Duration
	}

	return &LockoutError{Scope: scope, Remaining: remaining}
}

// RecordFailure bumps both counters atomically. The first increment on a key
// also starts its lockout window; reaching a maximum publishes an
// account-locked event.
func (s *LockoutService) RecordFailure(ctx context.Context, identifier, ip string) error {
	identifierCount, err := s.bumpCounter(ctx, identifier)
	if err != nil {
		return err
	}
	ipCount, err := s.bumpCounter(ctx, ip)
	if err != nil {
		return err
	}

	if identifierCount == int64(s.settings.MaxIdentifierAttempts) || ipCount == int64(s.settings.MaxIPAttempts) {
		s.metrics.countLockout()
		s.publishLocked(ctx, identifier, ip, max(identifierCount, ipCount))
	}

	return nil
}

func (s *LockoutService) bumpCounter(ctx context.Context, identifier string) (int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, nil
	}

	count, err := s.store.Increment(ctx, attemptsKey(identifier), s.settings.Duration)
	if err != nil {
		return 0, fmt.Errorf("%w: record login failure: %v", ErrStoreUnavailable, err)
	}

	return count, nil
}

// RecordSuccess deletes both counters: a user who eventually authenticates
// correctly carries no partial penalty into future failures.
func (s *LockoutService) RecordSuccess(ctx context.Context, identifier, ip string) error {
	for _, id := range []string{strings.TrimSpace(identifier), strings.TrimSpace(ip)} {
		if id == "" {
			continue
		}
		if err := s.store.Delete(ctx, attemptsKey(id)); err != nil {
			return fmt.Errorf("%w: reset login attempts: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

func (s *LockoutService) readCounter(ctx context.Context, identifier string) (int64, error) {
	value, err := s.store.Get(ctx, attemptsKey(identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read login attempts: %v", ErrStoreUnavailable, err)
	}

	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attempt counter %q: %w", value, err)
	}

	return count, nil
}

func (s *LockoutService) publishLocked(ctx context.Context, identifier, ip string, attempts int64) {
	if s.publisher == nil {
		return
	}

	now := s.now()
	event := domain.AccountLockedEvent{
		EventID:    uuid.NewString(),
		Identifier: identifier,
		IP:         ip,
		Attempts:   attempts,
		LockedAt:   now,
		UnlocksAt:  now.Add(s.settings.Duration),
	}

	if err := s.publisher.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked event failed",
			zap.String("identifier", logger.MaskIdentifier(identifier)),
			zap.String("ip", logger.MaskIP(ip)),
			zap.Error(err),
		)
	}
}
