package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

const createSavedRoutesTable = `
CREATE TABLE IF NOT EXISTS saved_routes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	coordinates_json TEXT NOT NULL,
	run_details_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_saved_routes_user ON saved_routes(user_id);
`

type RouteRepository struct {
	db *sql.DB
}

func NewRouteRepository(db *sql.DB) repository.RouteRepository {
	return &RouteRepository{db: db}
}

func (r *RouteRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSavedRoutesTable); err != nil {
		return fmt.Errorf("create saved_routes table: %w", err)
	}
	return nil
}

func (r *RouteRepository) Create(ctx context.Context, route *domain.SavedRoute) error {
	coords, details, err := marshalRoutePayload(route)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO saved_routes (id, name, coordinates_json, run_details_json, created_at, user_id)
VALUES (?, ?, ?, ?, ?, ?)`,
		route.ID,
		route.Name,
		coords,
		details,
		route.CreatedAt,
		route.UserID,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

// Replace rewrites the payload and created_at of an existing route in place.
// The id and owner never change.
func (r *RouteRepository) Replace(ctx context.Context, route *domain.SavedRoute) error {
	coords, details, err := marshalRoutePayload(route)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE saved_routes
SET name = ?, coordinates_json = ?, run_details_json = ?, created_at = ?
WHERE id = ? AND user_id = ?`,
		route.Name,
		coords,
		details,
		route.CreatedAt,
		route.ID,
		route.UserID,
	)
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update route rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("route: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *RouteRepository) FindByOwnerAndName(ctx context.Context, ownerID, name string) (*domain.SavedRoute, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, coordinates_json, run_details_json, created_at, user_id
FROM saved_routes
WHERE user_id = ? AND name = ?
ORDER BY created_at DESC
LIMIT 1`,
		ownerID,
		name,
	)
	return scanRoute(row)
}

func (r *RouteRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.SavedRoute, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, coordinates_json, run_details_json, created_at, user_id
FROM saved_routes
WHERE user_id = ?
ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	routes := []domain.SavedRoute{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	return routes, nil
}

func (r *RouteRepository) Get(ctx context.Context, ownerID, id string) (*domain.SavedRoute, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, coordinates_json, run_details_json, created_at, user_id
FROM saved_routes
WHERE id = ? AND user_id = ?`,
		id,
		ownerID,
	)
	return scanRoute(row)
}

func (r *RouteRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM saved_routes
WHERE id = ? AND user_id = ?`,
		id,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete route rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("route: %w", repository.ErrNotFound)
	}
	return nil
}

func marshalRoutePayload(route *domain.SavedRoute) (coords, details string, err error) {
	coordsBytes, err := json.Marshal(route.Coordinates)
	if err != nil {
		return "", "", fmt.Errorf("marshal coordinates: %w", err)
	}
	detailsBytes, err := json.Marshal(route.RunDetails)
	if err != nil {
		return "", "", fmt.Errorf("marshal run details: %w", err)
	}
	return string(coordsBytes), string(detailsBytes), nil
}

// scanRoute is the single row-to-object mapping for saved routes; every
// read path goes through it so stored payloads decode uniformly.
func scanRoute(row interface {
	Scan(dest ...any) error
}) (*domain.SavedRoute, error) {
	var (
		route   domain.SavedRoute
		coords  string
		details string
	)
	if err := row.Scan(
		&route.ID,
		&route.Name,
		&coords,
		&details,
		&route.CreatedAt,
		&route.UserID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("route: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan route: %w", err)
	}
	if err := json.Unmarshal([]byte(coords), &route.Coordinates); err != nil {
		return nil, fmt.Errorf("unmarshal coordinates: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &route.RunDetails); err != nil {
		return nil, fmt.Errorf("unmarshal run details: %w", err)
	}
	return &route, nil
}
