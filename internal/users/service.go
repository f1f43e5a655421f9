package users

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListClients(ctx context.Context) ([]Client, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// SessionRevoker ends every session bound to a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID uuid.UUID) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	sessions SessionRevoker
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, sessions SessionRevoker) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// ListClients returns all clients.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListClients(ctx)
}

// SetActive enables or disables a client. Disabling also signs the client
// out everywhere.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if active || s.sessions == nil {
		return nil
	}
	return s.sessions.RevokeUser(ctx, id)
}
