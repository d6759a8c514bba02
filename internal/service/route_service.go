package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

// RouteService persists routes scoped to their owning user. Save implements
// overwrite-by-name: the only mutation path is an explicit overwrite of a
// same-named route; otherwise every save inserts a fresh record, duplicate
// names included.
type RouteService interface {
	Save(ctx context.Context, ownerID string, coords []domain.Coordinate, details domain.RunDetails, overwrite bool) (*domain.SavedRoute, error)
	List(ctx context.Context, ownerID string) ([]domain.SavedRoute, error)
	Get(ctx context.Context, ownerID, routeID string) (*domain.SavedRoute, error)
	Delete(ctx context.Context, ownerID, routeID string) error
}

type routeService struct {
	routes repository.RouteRepository
}

func NewRouteService(routes repository.RouteRepository) RouteService {
	return &routeService{routes: routes}
}

func (s *routeService) Save(ctx context.Context, ownerID string, coords []domain.Coordinate, details domain.RunDetails, overwrite bool) (*domain.SavedRoute, error) {
	if len(coords) < 2 {
		return nil, validationf("route must contain at least 2 points")
	}

	details.ApplyDefaults()
	name := details.RouteName
	if name == "" {
		name = details.Name
	}
	if name == "" {
		return nil, validationf("route name is required")
	}
	details.RouteName = name

	route := &domain.SavedRoute{
		Name:        name,
		Coordinates: coords,
		RunDetails:  details,
		CreatedAt:   time.Now().UTC(),
		UserID:      ownerID,
	}

	if overwrite {
		existing, err := s.routes.FindByOwnerAndName(ctx, ownerID, name)
		switch {
		case err == nil:
			// Check-then-act: two concurrent overwrites of the same name
			// race on which write lands last.
			route.ID = existing.ID
			if err := s.routes.Replace(ctx, route); err != nil {
				return nil, err
			}
			return route, nil
		case errors.Is(err, repository.ErrNotFound):
			// No prior route with that name: fall through to a plain insert.
		default:
			return nil, err
		}
	}

	route.ID = uuid.NewString()
	if err := s.routes.Create(ctx, route); err != nil {
		return nil, err
	}
	return route, nil
}

func (s *routeService) List(ctx context.Context, ownerID string) ([]domain.SavedRoute, error) {
	return s.routes.ListByOwner(ctx, ownerID)
}

func (s *routeService) Get(ctx context.Context, ownerID, routeID string) (*domain.SavedRoute, error) {
	route, err := s.routes.Get(ctx, ownerID, routeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
		}
		return nil, err
	}
	return route, nil
}

func (s *routeService) Delete(ctx context.Context, ownerID, routeID string) error {
	if err := s.routes.Delete(ctx, ownerID, routeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("route %s: %w", routeID, ErrNotFound)
		}
		return err
	}
	return nil
}
