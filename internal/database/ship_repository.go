package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lib/pq"
)

// ShipRepository handles ship database operations
type ShipRepository struct {
	db DB
}

// NewShipRepository creates a new ship repository
func NewShipRepository(db DB) *ShipRepository {
	return &ShipRepository{db: db}
}

// Create inserts a ship. Duplicate registration numbers return models.ErrDuplicate.
func (r *ShipRepository) Create(ctx context.Context, ship *models.Ship) error {
	ship.ID = uuid.New()
	ship.CreatedAt = time.Now()
	ship.UpdatedAt = ship.CreatedAt
	if ship.Facilities == nil {
		ship.Facilities = pq.StringArray{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ships (
			id, name, registration_number, capacity, facilities,
			description, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ship.ID, ship.Name, ship.RegistrationNumber, ship.Capacity, ship.Facilities,
		ship.Description, ship.IsActive, ship.CreatedAt, ship.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to create ship: %w", err)
	}
	return nil
}

// GetByID retrieves a ship. Returns nil if not found.
func (r *ShipRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ship, error) {
	var ship models.Ship
	err := r.db.GetContext(ctx, &ship, `SELECT * FROM ships WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ship: %w", err)
	}
	return &ship, nil
}

// List returns all ships ordered by name
func (r *ShipRepository) List(ctx context.Context) ([]*models.Ship, error) {
	ships := []*models.Ship{}
	if err := r.db.SelectContext(ctx, &ships, `SELECT * FROM ships ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list ships: %w", err)
	}
	return ships, nil
}

// Update writes the mutable fields of a ship
func (r *ShipRepository) Update(ctx context.Context, ship *models.Ship) error {
	ship.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE ships
		SET name = $2, capacity = $3, facilities = $4, description = $5,
		    is_active = $6, updated_at = $7
		WHERE id = $1
	`, ship.ID, ship.Name, ship.Capacity, ship.Facilities, ship.Description, ship.IsActive, ship.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ship: %w", err)
	}
	return expectOne(result, models.ErrShipNotFound)
}

// Delete removes a ship that no schedule references
func (r *ShipRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ships WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrInUse
		}
		return fmt.Errorf("failed to delete ship: %w", err)
	}
	return expectOne(result, models.ErrShipNotFound)
}
