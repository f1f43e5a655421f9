// Package support records tickets opened from the public support page.
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ticket lifecycle values stored with every ticket.
const (
	StatusOpen     = "open"
	PriorityMedium = "medium"
)

// ErrSignInRequired is returned when an anonymous visitor submits a ticket.
var ErrSignInRequired = errors.New("support: sign in required")

// Ticket is a support request.
type Ticket struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Subject   string
	Message   string
	Status    string
	Priority  string
	CreatedAt time.Time
}

// Repository persists tickets.
type Repository interface {
	CreateTicket(ctx context.Context, t Ticket) (Ticket, error)
}

// Service opens tickets.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Open stores a new ticket for userID with the default status and priority.
func (s *Service) Open(ctx context.Context, userID uuid.UUID, subject, message string) (Ticket, error) {
	if userID == uuid.Nil {
		return Ticket{}, ErrSignInRequired
	}
	ticket, err := s.repo.CreateTicket(ctx, Ticket{
		UserID:   userID,
		Subject:  strings.TrimSpace(subject),
		Message:  strings.TrimSpace(message),
		Status:   StatusOpen,
		Priority: PriorityMedium,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("open ticket: %w", err)
	}
	return ticket, nil
}
