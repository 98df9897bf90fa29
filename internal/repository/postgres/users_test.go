package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/coursava/auth-service/internal/core/domain"
	"github.com/coursava/auth-service/internal/repository"
)

func newMockUserRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	return NewUserRepository(mock), mock
}

func TestUserRepository_Create(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	createdAt := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	user := domain.User{
		ID:           "user-1",
		Email:        "sam@example.com",
		Username:     "sam",
		PasswordHash: "argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		Role:         domain.RoleStudent,
		IsActive:     true,
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO auth\.users`).
		WithArgs(
			user.ID,
			user.Email,
			user.Username,
			user.PasswordHash,
			string(user.Role),
			user.IsActive,
			user.CreatedAt,
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIdentifierMatchesEmailOrUsername(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	createdAt := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	lastLogin := createdAt.Add(-time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "email", "username", "password_hash", "role", "is_active", "created_at", "last_login",
	}).AddRow(
		"user-1", "sam@example.com", "sam", "hash", "student", true, createdAt, &lastLogin,
	)

	mock.ExpectQuery(`SELECT .+ FROM auth\.users WHERE \(email = \$1 OR username = \$2\)`).
		WithArgs("sam@example.com", "sam@example.com").
		WillReturnRows(rows)

	user, err := repo.GetByIdentifier(context.Background(), "sam@example.com")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if user.ID != "user-1" || user.Username != "sam" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Role != domain.RoleStudent {
		t.Fatalf("role = %q, want %q", user.Role, domain.RoleStudent)
	}
	if user.LastLogin == nil || !user.LastLogin.Equal(lastLogin) {
		t.Fatalf("last login = %v, want %v", user.LastLogin, lastLogin)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM auth\.users WHERE id = \$1`).
		WithArgs("user-404").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "user-404"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNeverLoggedIn(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	createdAt := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "email", "username", "password_hash", "role", "is_active", "created_at", "last_login",
	}).AddRow(
		"user-2", "dora@example.com", "dora", "hash", "instructor", false, createdAt, nil,
	)

	mock.ExpectQuery(`SELECT .+ FROM auth\.users WHERE id = \$1`).
		WithArgs("user-2").
		WillReturnRows(rows)

	user, err := repo.GetByID(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if user.LastLogin != nil {
		t.Fatalf("expected nil last login, got %v", user.LastLogin)
	}
	if user.IsActive {
		t.Fatal("expected inactive user")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdateLastLogin(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	at := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE auth\.users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(at, "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateLastLogin(context.Background(), "user-1", at); err != nil {
		t.Fatalf("UpdateLastLogin returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_UpdateLastLoginMissingUser(t *testing.T) {
	repo, mock := newMockUserRepo(t)

	at := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE auth\.users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(at, "user-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdateLastLogin(context.Background(), "user-404", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
