package authclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRefreshThreshold   = 5 * time.Minute
	defaultMinRefreshInterval = 30 * time.Second
	defaultCheckInterval      = time.Minute
)

// refreshOp is the shared pending refresh. Waiters block on done; result
// fields are written exactly once, before done is closed.
type refreshOp struct {
	done    chan struct{}
	session Session
	err     error
}

// Monitor owns the process-wide session state. All mutation goes through
// it, so concurrent application calls can never race on the token pair,
// and at most one refresh request is on the wire at any time.
type Monitor struct {
	client  *Client
	storage Storage
	bus     *eventBus
	log     *zap.Logger

	refreshThreshold   time.Duration
	minRefreshInterval time.Duration
	checkInterval      time.Duration
	maxAttempts        int
	backoff            backoffFunc
	now                func() time.Time

	mu         sync.Mutex
	session    Session
	pending    *refreshOp
	generation uint64
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithStorage mirrors the session to durable storage, restoring it at
// construction.
func WithStorage(storage Storage) MonitorOption {
	return func(m *Monitor) { m.storage = storage }
}

// WithRefreshThreshold sets how close to expiry a token must be before
// the monitor refreshes proactively.
func WithRefreshThreshold(threshold time.Duration) MonitorOption {
	return func(m *Monitor) {
		if threshold > 0 {
			m.refreshThreshold = threshold
		}
	}
}

// WithMinRefreshInterval sets the floor between two proactive refreshes,
// so a burst of near-simultaneous requests cannot each decide to refresh.
func WithMinRefreshInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.minRefreshInterval = interval
		}
	}
}

// WithCheckInterval sets the background loop period.
func WithCheckInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		if interval > 0 {
			m.checkInterval = interval
		}
	}
}

// WithRetry bounds refresh attempts and sets the linear backoff base.
func WithRetry(maxAttempts int, backoffBase time.Duration) MonitorOption {
	return func(m *Monitor) {
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
		if backoffBase > 0 {
			m.backoff = linearBackoff(backoffBase)
		}
	}
}

// WithMonitorLogger attaches a logger.
func WithMonitorLogger(log *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMonitorClock overrides the time source, for tests.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor builds a Monitor around the given API client. When storage
// is configured, a previously persisted session is restored.
func NewMonitor(client *Client, opts ...MonitorOption) (*Monitor, error) {
	if client == nil {
		return nil, fmt.Errorf("authclient: nil client")
	}

	m := &Monitor{
		client:             client,
		bus:                newEventBus(),
		log:                zap.NewNop(),
		refreshThreshold:   defaultRefreshThreshold,
		minRefreshInterval: defaultMinRefreshInterval,
		checkInterval:      defaultCheckInterval,
		maxAttempts:        defaultMaxAttempts,
		backoff:            linearBackoff(defaultRetryBackoff),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.storage != nil {
		restored, err := m.storage.Load()
		if err != nil {
			return nil, fmt.Errorf("restore session: %w", err)
		}
		if restored != nil && restored.Active() {
			restored.IsRefreshing = false
			m.session = *restored
		}
	}
	return m, nil
}

// Subscribe registers a handler for session lifecycle events and returns
// an id for Unsubscribe. Handlers run synchronously on the goroutine
// driving the transition and must not block.
func (m *Monitor) Subscribe(handler func(Event)) int {
	return m.bus.subscribe(handler)
}

// Unsubscribe removes a previously registered handler.
func (m *Monitor) Unsubscribe(id int) {
	m.bus.unsubscribe(id)
}

// Snapshot returns a copy of the current session. IsRefreshing reflects
// whether a refresh is in flight at the time of the call.
func (m *Monitor) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.session
	snapshot.IsRefreshing = m.pending != nil
	return snapshot
}

// SetSession installs a freshly issued pair, typically after login.
// ExpiresAt is computed from the pair's ExpiresIn.
func (m *Monitor) SetSession(pair TokenPair) {
	now := m.now()
	session := Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(pair.ExpiresIn) * time.Second),
	}

	m.mu.Lock()
	m.session = session
	m.generation++
	m.mu.Unlock()

	m.persist(session)
}

// Clear wipes the session state and storage mirror and emits
// EventSessionCleared. A refresh still in flight cannot resurrect the
// cleared session.
func (m *Monitor) Clear() {
	m.clear(EventSessionCleared)
}

// Login authenticates and installs the resulting session.
func (m *Monitor) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	result, err := m.client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	m.SetSession(result.TokenPair)
	return result, nil
}

// Logout revokes the current access token server-side, then clears local
// state. Local state is cleared even when the server call fails; the
// tokens age out on their own.
func (m *Monitor) Logout(ctx context.Context) error {
	session := m.Snapshot()
	if !session.Active() {
		return ErrNoSession
	}

	err := m.client.Logout(ctx, session.AccessToken, "")
	m.Clear()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// LogoutAll ends every session of the subject, then clears local state.
func (m *Monitor) LogoutAll(ctx context.Context) (int64, error) {
	session := m.Snapshot()
	if !session.Active() {
		return 0, ErrNoSession
	}

	revoked, err := m.client.LogoutAll(ctx, session.AccessToken)
	m.Clear()
	if err != nil {
		return 0, fmt.Errorf("logout all: %w", err)
	}
	return revoked, nil
}

// ShouldRefresh reports whether a proactive refresh is due: the token is
// under the refresh threshold, the minimum interval since the previous
// refresh has elapsed, and no refresh is already in flight.
func (m *Monitor) ShouldRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.Active() || m.pending != nil {
		return false
	}
	now := m.now()
	if m.session.RemainingLifetime(now) >= m.refreshThreshold {
		return false
	}
	if !m.session.LastRefreshAt.IsZero() && now.Sub(m.session.LastRefreshAt) < m.minRefreshInterval {
		return false
	}
	return true
}

// Refresh rotates the token pair. Concurrent callers share one pending
// operation: exactly one network call happens no matter how many callers
// arrive while it is in flight, and all of them receive its result. A
// caller whose context ends stops waiting, but the shared operation runs
// to completion regardless.
//
// Transient failures are retried with linear backoff up to the configured
// bound. A terminal failure clears the session and emits
// EventSessionExpired.
func (m *Monitor) Refresh(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if op := m.pending; op != nil {
		m.mu.Unlock()
		return m.await(ctx, op)
	}
	if !m.session.Active() {
		m.mu.Unlock()
		return Session{}, ErrNoSession
	}

	op := &refreshOp{done: make(chan struct{})}
	m.pending = op
	refreshToken := m.session.RefreshToken
	generation := m.generation
	m.mu.Unlock()

	go m.runRefresh(context.WithoutCancel(ctx), op, refreshToken, generation)
	return m.await(ctx, op)
}

// Run drives proactive refreshes until ctx ends. Each tick checks
// ShouldRefresh; when a refresh is already in flight the tick is a no-op.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.ShouldRefresh() {
				continue
			}
			if _, err := m.Refresh(ctx); err != nil {
				m.log.Warn("proactive token refresh failed", zap.Error(err))
			}
		}
	}
}

func (m *Monitor) await(ctx context.Context, op *refreshOp) (Session, error) {
	select {
	case <-op.done:
		return op.session, op.err
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

func (m *Monitor) runRefresh(ctx context.Context, op *refreshOp, refreshToken string, generation uint64) {
	pair, err := attempt(ctx, m.maxAttempts, m.backoff, func(ctx context.Context) (*TokenPair, error) {
		return m.client.Refresh(ctx, refreshToken)
	})
	if err != nil {
		m.settleFailure(op, err)
		return
	}

	now := m.now()
	session := Session{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		ExpiresAt:     now.Add(time.Duration(pair.ExpiresIn) * time.Second),
		LastRefreshAt: now,
	}

	m.mu.Lock()
	// A Clear or SetSession that happened mid-flight wins over this
	// result; waiters still get the pair they asked for.
	committed := m.generation == generation
	if committed {
		m.session = session
	}
	m.pending = nil
	m.mu.Unlock()

	if committed {
		m.persist(session)
		m.bus.publish(Event{Type: EventTokenRefreshed, Session: session})
	}

	op.session = session
	close(op.done)
}

// settleFailure clears all session state: whether the server rejected the
// refresh token or the transport gave out after every retry, the client
// no longer holds a usable session and the application must re-login.
func (m *Monitor) settleFailure(op *refreshOp, err error) {
	m.mu.Lock()
	m.session = Session{}
	m.generation++
	m.pending = nil
	m.mu.Unlock()

	if m.storage != nil {
		if clearErr := m.storage.Clear(); clearErr != nil {
			m.log.Warn("failed to clear persisted session", zap.Error(clearErr))
		}
	}
	m.log.Warn("token refresh failed terminally", zap.Error(err))
	m.bus.publish(Event{Type: EventSessionExpired})

	op.err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
	close(op.done)
}

func (m *Monitor) clear(event EventType) {
	m.mu.Lock()
	m.session = Session{}
	m.generation++
	m.mu.Unlock()

	if m.storage != nil {
		if err := m.storage.Clear(); err != nil {
			m.log.Warn("failed to clear persisted session", zap.Error(err))
		}
	}
	m.bus.publish(Event{Type: event})
}

func (m *Monitor) persist(session Session) {
	if m.storage == nil {
		return
	}
	if err := m.storage.Save(session); err != nil {
		m.log.Warn("failed to persist session", zap.Error(err))
	}
}
