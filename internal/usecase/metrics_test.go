package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newMeteredFixture(t *testing.T) (*authFixture, *AuthMetrics) {
	t.Helper()

	metrics, err := NewAuthMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAuthMetrics: %v", err)
	}

	f := newAuthFixture(t)
	f.lockout.WithMetrics(metrics)
	f.service.WithMetrics(metrics)
	return f, metrics
}

func TestAuthMetricsCountLoginOutcomes(t *testing.T) {
	f, metrics := newMeteredFixture(t)
	ctx := context.Background()

	f.login(t)

	for i := 0; i < 5; i++ {
		_, err := f.service.Login(ctx, LoginInput{Identifier: "sam@example.com", Password: "wrong", IP: "192.0.2.10"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	_, err := f.service.Login(ctx, LoginInput{Identifier: "sam@example.com", Password: testPassword, IP: "192.0.2.10"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Logins.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Fatalf("success logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Logins.WithLabelValues(outcomeInvalidCredentials)); got != 5 {
		t.Fatalf("invalid credential logins = %v, want 5", got)
	}
	if got := testutil.ToFloat64(metrics.Logins.WithLabelValues(outcomeLocked)); got != 1 {
		t.Fatalf("locked logins = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Lockouts); got != 1 {
		t.Fatalf("lockouts = %v, want 1", got)
	}
}

func TestAuthMetricsCountDisabledLogin(t *testing.T) {
	f, metrics := newMeteredFixture(t)

	user := f.users.users["user-1"]
	user.IsActive = false
	f.users.users["user-1"] = user

	_, err := f.service.Login(context.Background(), LoginInput{Identifier: "sam@example.com", Password: testPassword, IP: "192.0.2.10"})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Logins.WithLabelValues(outcomeDisabled)); got != 1 {
		t.Fatalf("disabled logins = %v, want 1", got)
	}
}

func TestAuthMetricsCountRefreshOutcomes(t *testing.T) {
	f, metrics := newMeteredFixture(t)
	ctx := context.Background()

	result := f.login(t)

	if _, err := f.service.Refresh(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if _, err := f.service.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("expected ErrRefreshTokenReused on replay, got %v", err)
	}

	if got := testutil.ToFloat64(metrics.Refreshes.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Fatalf("successful refreshes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Refreshes.WithLabelValues(outcomeReused)); got != 1 {
		t.Fatalf("reused refreshes = %v, want 1", got)
	}
}

func TestAuthMetricsCountRevocations(t *testing.T) {
	f, metrics := newMeteredFixture(t)
	ctx := context.Background()

	result := f.login(t)
	if err := f.service.Logout(ctx, result.Tokens.AccessToken, ""); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	f.login(t)
	if _, err := f.service.LogoutAll(ctx, "user-1"); err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.Revocations.WithLabelValues("logout")); got != 1 {
		t.Fatalf("logout revocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Revocations.WithLabelValues("logout_all")); got != 1 {
		t.Fatalf("logout_all revocations = %v, want 1", got)
	}
}

func TestNewAuthMetricsAdoptsExistingCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := NewAuthMetrics(registry)
	if err != nil {
		t.Fatalf("first NewAuthMetrics: %v", err)
	}
	second, err := NewAuthMetrics(registry)
	if err != nil {
		t.Fatalf("second NewAuthMetrics: %v", err)
	}

	first.countLogin(outcomeSuccess)
	second.countLogin(outcomeSuccess)

	if got := testutil.ToFloat64(second.Logins.WithLabelValues(outcomeSuccess)); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestAuthMetricsNilSafe(t *testing.T) {
	var metrics *AuthMetrics

	metrics.countLogin(outcomeSuccess)
	metrics.countRefresh(outcomeError)
	metrics.countLockout()
	metrics.countRevocation("logout")
}
