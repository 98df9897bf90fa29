package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserLoggedIn logs auth.user.logged_in events.
func (p *StubPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	payload := map[string]any{
		"user_id":   event.UserID,
		"username":  event.Username,
		"ip":        logger.MaskIP(event.IP),
		"logged_at": event.LoggedAt,
		"metadata":  event.Metadata,
	}
	p.logEvent(EventTypeUserLoggedIn, event.UserID, event.LoggedAt, payload)
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"identifier": logger.MaskIdentifier(event.Identifier),
		"ip":         logger.MaskIP(event.IP),
		"attempts":   event.Attempts,
		"locked_at":  event.LockedAt,
		"unlocks_at": event.UnlocksAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeAccountLocked, "", event.LockedAt, payload)
	return nil
}

// PublishTokenRevoked logs auth.token.revoked events.
func (p *StubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"revoked_at": event.RevokedAt,
		"expires_at": event.ExpiresAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeTokenRevoked, event.UserID, event.RevokedAt, payload)
	return nil
}

// PublishSessionsRevoked logs auth.sessions.revoked events.
func (p *StubPublisher) PublishSessionsRevoked(_ context.Context, event domain.SessionsRevokedEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"revoked_count": event.RevokedCount,
		"reason":        event.Reason,
		"revoked_at":    event.RevokedAt,
		"metadata":      event.Metadata,
	}
	p.logEvent(EventTypeSessionsRevoked, event.UserID, event.RevokedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
