package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

// MinPasswordLength is the shortest password accepted on sign-up and reset.
const MinPasswordLength = 6

// Account joins a user row with its profile.
type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	IsActive     bool
	FullName     string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity converts the stored account into the principal seen by the rest
// of the application. Role strings outside the closed set map to the zero
// Role, which the session provider normalises.
func (a Account) Identity() identity.Identity {
	role, _ := identity.ParseRole(a.Role)
	return identity.Identity{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.FullName,
		Role:        role,
	}
}

// NewAccount holds the values required to register.
type NewAccount struct {
	Email        string
	PasswordHash string
	FullName     string
}

// SessionRecord is the persisted binding between a browser session and an account.
type SessionRecord struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
	IP        string
	UA        string
}
