package port

import (
	"context"

	"github.com/coursava/auth-service/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error
	PublishSessionsRevoked(ctx context.Context, event domain.SessionsRevokedEvent) error
}
