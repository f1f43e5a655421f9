package plans

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service exposes the catalogue through the versioned cache.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService builds a Service. A nil cache reads straight from repo.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// List returns the catalogue in display order.
func (s *Service) List(ctx context.Context) ([]Plan, error) {
	key, err := s.cache.BuildKey(ctx, "list")
	if err != nil {
		s.logger.Warn("plans cache version", slog.Any("error", err))
		return s.repo.ListPlans(ctx)
	}
	var out []Plan
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		plans, err := s.repo.ListPlans(ctx)
		if err != nil {
			return nil, err
		}
		if plans == nil {
			plans = []Plan{}
		}
		return plans, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return out, nil
}

// SetSoldOut updates a plan's availability and invalidates the cache.
func (s *Service) SetSoldOut(ctx context.Context, id uuid.UUID, soldOut bool) error {
	if err := s.repo.SetSoldOut(ctx, id, soldOut); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Refresh drops every cached catalogue.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump plans cache: %w", err)
	}
	return nil
}
