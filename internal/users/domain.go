// Package users backs the admin client directory.
package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when the user id does not exist.
var ErrUserNotFound = errors.New("users: user not found")

// Client is a registered investor as listed in the back office.
type Client struct {
	ID          uuid.UUID
	Email       string
	FullName    string
	IsActive    bool
	Investments int
	TotalAmount float64
	CreatedAt   time.Time
}

// DisplayName returns the profile name or the email when none was given.
func (c Client) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Email
}
