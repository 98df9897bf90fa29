package port

import (
	"context"
	"time"

	"github.com/coursava/auth-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users. It is the identity
// store the auth flows consult for credential checks and account state.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
