package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/core/port"
	"github.com/coursava/auth-service/internal/infra/config"
	"github.com/coursava/auth-service/internal/infra/logger"
)

const schemaVersion = "1.0"

// Event types emitted by the auth service.
const (
	EventTypeUserLoggedIn    = "auth.user.logged_in"
	EventTypeAccountLocked   = "auth.account.locked"
	EventTypeTokenRevoked    = "auth.token.revoked"
	EventTypeSessionsRevoked = "auth.sessions.revoked"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		metadata["trace_id"] = traceID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserLoggedIn publishes auth.user.logged_in events.
func (p *EventPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	payload := struct {
		UserID   string         `json:"user_id"`
		Username string         `json:"username"`
		IP       string         `json:"ip,omitempty"`
		LoggedAt time.Time      `json:"logged_at"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}{
		UserID:   event.UserID,
		Username: event.Username,
		IP:       logger.MaskIP(event.IP),
		LoggedAt: event.LoggedAt.UTC(),
		Metadata: event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeUserLoggedIn, event.UserID, event.LoggedAt, payload)
}

// PublishAccountLocked publishes auth.account.locked events. The lockout
// identifier is a login identifier (email or username), so it is masked
// before leaving the service.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		Identifier string         `json:"identifier"`
		IP         string         `json:"ip,omitempty"`
		Attempts   int64          `json:"attempts"`
		LockedAt   time.Time      `json:"locked_at"`
		UnlocksAt  time.Time      `json:"unlocks_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		Identifier: logger.MaskIdentifier(event.Identifier),
		IP:         logger.MaskIP(event.IP),
		Attempts:   event.Attempts,
		LockedAt:   event.LockedAt.UTC(),
		UnlocksAt:  event.UnlocksAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeAccountLocked, "", event.LockedAt, payload)
}

// PublishTokenRevoked publishes auth.token.revoked events.
func (p *EventPublisher) PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		Reason    string         `json:"reason"`
		RevokedAt time.Time      `json:"revoked_at"`
		ExpiresAt time.Time      `json:"expires_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeTokenRevoked, event.UserID, event.RevokedAt, payload)
}

// PublishSessionsRevoked publishes auth.sessions.revoked events.
func (p *EventPublisher) PublishSessionsRevoked(ctx context.Context, event domain.SessionsRevokedEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		RevokedCount int64          `json:"revoked_count"`
		Reason       string         `json:"reason"`
		RevokedAt    time.Time      `json:"revoked_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		RevokedCount: event.RevokedCount,
		Reason:       event.Reason,
		RevokedAt:    event.RevokedAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeSessionsRevoked, event.UserID, event.RevokedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
