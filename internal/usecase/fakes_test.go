package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/infra/security"
	"github.com/coursava/auth-service/internal/repository"
)

// memorySessionStore is an in-memory port.SessionStore driven by a manual
// clock, so token and lockout TTLs can be asserted without sleeping.
type memorySessionStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	fail    error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func newMemorySessionStore(now func() time.Time) *memorySessionStore {
	return &memorySessionStore{
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *memorySessionStore) purgeLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !entry.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

func (s *memorySessionStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.purgeLocked()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memorySessionStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.purgeLocked()
	entry, ok := s.entries[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return entry.value, nil
}

func (s *memorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.purgeLocked()
	delete(s.entries, key)
	return nil
}

func (s *memorySessionStore) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	s.purgeLocked()
	var removed int64
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memorySessionStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	s.purgeLocked()
	entry := s.entries[key]
	count := int64(0)
	if entry.value != "" {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		count = parsed
	}
	count++
	entry.value = strconv.FormatInt(count, 10)
	if entry.expiresAt.IsZero() && ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return count, nil
}

func (s *memorySessionStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	s.purgeLocked()
	_, ok := s.entries[key]
	return ok, nil
}

func (s *memorySessionStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	s.purgeLocked()
	entry, ok := s.entries[key]
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

func (s *memorySessionStore) keysWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	var keys []string
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// stubUserRepository serves a fixed set of users and records last-login
// updates. Unconfigured operations report themselves as unexpected.
type stubUserRepository struct {
	users            map[string]domain.User
	lastLoginUpdates []string
}

func (r *stubUserRepository) Create(context.Context, domain.User) error {
	return errors.New("unexpected call: Create")
}

func (r *stubUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := r.users[id]; ok {
		copy := user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepository) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == identifier || user.Username == identifier {
			copy := user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepository) UpdateLastLogin(_ context.Context, id string, _ time.Time) error {
	r.lastLoginUpdates = append(r.lastLoginUpdates, id)
	return nil
}

// recordingPublisher captures every published event for assertions.
type recordingPublisher struct {
	loggedIn        []domain.UserLoggedInEvent
	locked          []domain.AccountLockedEvent
	tokenRevoked    []domain.TokenRevokedEvent
	sessionsRevoked []domain.SessionsRevokedEvent
}

func (p *recordingPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.loggedIn = append(p.loggedIn, event)
	return nil
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.locked = append(p.locked, event)
	return nil
}

func (p *recordingPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	p.tokenRevoked = append(p.tokenRevoked, event)
	return nil
}

func (p *recordingPublisher) PublishSessionsRevoked(_ context.Context, event domain.SessionsRevokedEvent) error {
	p.sessionsRevoked = append(p.sessionsRevoked, event)
	return nil
}

// manualClock hands out a mutable instant so tests can move time forward.
type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func newManualClock(at time.Time) *manualClock {
	return &manualClock{at: at}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func newTestCodec(t *testing.T, clock func() time.Time, accessTTL, refreshTTL time.Duration) *security.TokenCodec {
	t.Helper()
	codec, err := security.NewTokenCodec(security.TokenCodecOptions{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		Issuer:        "auth-service-test",
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}, security.WithClock(clock))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func testIdentity() domain.Identity {
	return domain.Identity{
		ID:       "user-1",
		Email:    "sam@example.com",
		Username: "sam",
		Role:     domain.RoleStudent,
	}
}

func activeTestUser() domain.User {
	return domain.User{
		ID:       "user-1",
		Email:    "sam@example.com",
		Username: "sam",
		Role:     domain.RoleStudent,
		IsActive: true,
	}
}
