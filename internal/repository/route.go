package repository

import (
	"context"

	"fakemyrun/internal/domain"
)

// RouteRepository exposes persistence operations for SavedRoute records.
// Every operation that takes an owner id is scoped to that owner; a route
// belonging to someone else is indistinguishable from a missing one.
type RouteRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, route *domain.SavedRoute) error
	Replace(ctx context.Context, route *domain.SavedRoute) error
	FindByOwnerAndName(ctx context.Context, ownerID, name string) (*domain.SavedRoute, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.SavedRoute, error)
	Get(ctx context.Context, ownerID, id string) (*domain.SavedRoute, error)
	Delete(ctx context.Context, ownerID, id string) error
}
