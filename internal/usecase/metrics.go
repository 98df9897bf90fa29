package usecase

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for login and refresh counters.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeLocked             = "locked"
	outcomeDisabled           = "disabled"
	outcomeReused             = "reused"
	outcomeExpired            = "expired"
	outcomeInvalid            = "invalid"
	outcomeError              = "error"
)

// AuthMetrics counts authentication outcomes. All recording methods are
// nil-safe, so services constructed without metrics skip instrumentation.
type AuthMetrics struct {
	Logins      *prometheus.CounterVec
	Refreshes   *prometheus.CounterVec
	Lockouts    prometheus.Counter
	Revocations *prometheus.CounterVec
}

// NewAuthMetrics registers the auth counters, adopting collectors already
// present in the registerer so repeated construction in one process is safe.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "logins_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"result"}))
	if err != nil {
		return nil, fmt.Errorf("register logins counter: %w", err)
	}

	refreshes, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "refreshes_total",
		Help:      "Refresh token rotations partitioned by outcome.",
	}, []string{"result"}))
	if err != nil {
		return nil, fmt.Errorf("register refreshes counter: %w", err)
	}

	lockouts, err := registerCollector[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "lockouts_total",
		Help:      "Accounts or clients locked after repeated login failures.",
	}))
	if err != nil {
		return nil, fmt.Errorf("register lockouts counter: %w", err)
	}

	revocations, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "revocations_total",
		Help:      "Token and session revocations partitioned by kind.",
	}, []string{"kind"}))
	if err != nil {
		return nil, fmt.Errorf("register revocations counter: %w", err)
	}

	return &AuthMetrics{
		Logins:      logins,
		Refreshes:   refreshes,
		Lockouts:    lockouts,
		Revocations: revocations,
	}, nil
}

func registerCollector[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
		var zero C
		return zero, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}

	var zero C
	return zero, err
}

func (m *AuthMetrics) countLogin(result string) {
	if m == nil || m.Logins == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *AuthMetrics) countRefresh(result string) {
	if m == nil || m.Refreshes == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *AuthMetrics) countLockout() {
	if m == nil || m.Lockouts == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *AuthMetrics) countRevocation(kind string) {
	if m == nil || m.Revocations == nil {
		return
	}
	m.Revocations.WithLabelValues(kind).Inc()
}

// refreshOutcome maps a rotation error to its counter label.
func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, ErrRefreshTokenReused):
		return outcomeReused
	case errors.Is(err, ErrTokenExpired):
		return outcomeExpired
	case errors.Is(err, ErrTokenMalformed):
		return outcomeInvalid
	case errors.Is(err, ErrAccountDisabled):
		return outcomeDisabled
	default:
		return outcomeError
	}
}
