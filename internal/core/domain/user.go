package domain

import "time"

// Role enumerates platform roles carried inside access tokens.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Identity is the verified subset of a user handed to the token issuer after
// credential checks pass. It carries exactly what ends up inside access-token
// claims.
type Identity struct {
	ID       string
	Email    string
	Username string
	Role     Role
}

// Identity projects the token-relevant fields of a user.
func (u User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
	}
}
