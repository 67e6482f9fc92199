package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
)

const routeSelect = `
	SELECT r.id, r.origin_port_id, r.destination_port_id, r.slug,
	       r.duration_minutes, r.is_active, r.created_at, r.updated_at,
	       op.name AS origin_port_name, op.code AS origin_port_code,
	       dp.name AS destination_port_name, dp.code AS destination_port_code
	FROM routes r
	JOIN ports op ON op.id = r.origin_port_id
	JOIN ports dp ON dp.id = r.destination_port_id`

// RouteRepository handles route database operations
type RouteRepository struct {
	db DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// Create inserts a route. A duplicate origin/destination pair returns models.ErrDuplicate.
func (r *RouteRepository) Create(ctx context.Context, route *models.Route) error {
	route.ID = uuid.New()
	route.CreatedAt = time.Now()
	route.UpdatedAt = route.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO routes (
			id, origin_port_id, destination_port_id, slug,
			duration_minutes, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, route.ID, route.OriginPortID, route.DestinationPortID, route.Slug,
		route.DurationMinutes, route.IsActive, route.CreatedAt, route.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return models.ErrPortNotFound
		}
		return fmt.Errorf("failed to create route: %w", err)
	}
	return nil
}

// GetByID retrieves a route with its port names. Returns nil if not found.
func (r *RouteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.GetContext(ctx, &route, routeSelect+` WHERE r.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &route, nil
}

// List returns all routes with port names
func (r *RouteRepository) List(ctx context.Context) ([]*models.Route, error) {
	routes := []*models.Route{}
	if err := r.db.SelectContext(ctx, &routes, routeSelect+` ORDER BY op.name, dp.name`); err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return routes, nil
}

// Update writes the mutable fields of a route
func (r *RouteRepository) Update(ctx context.Context, route *models.Route) error {
	route.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE routes
		SET duration_minutes = $2, is_active = $3, updated_at = $4
		WHERE id = $1
	`, route.ID, route.DurationMinutes, route.IsActive, route.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update route: %w", err)
	}
	return expectOne(result, models.ErrRouteNotFound)
}

// Delete removes a route that no schedule references
func (r *RouteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrInUse
		}
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return expectOne(result, models.ErrRouteNotFound)
}
