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

// PortRepository handles port database operations
type PortRepository struct {
	db DB
}

// NewPortRepository creates a new port repository
func NewPortRepository(db DB) *PortRepository {
	return &PortRepository{db: db}
}

// Create inserts a port. Duplicate code or slug returns models.ErrDuplicate.
func (r *PortRepository) Create(ctx context.Context, port *models.Port) error {
	port.ID = uuid.New()
	port.CreatedAt = time.Now()
	port.UpdatedAt = port.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ports (id, code, name, slug, city, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, port.ID, port.Code, port.Name, port.Slug, port.City, port.IsActive, port.CreatedAt, port.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to create port: %w", err)
	}
	return nil
}

// GetByID retrieves a port. Returns nil if not found.
func (r *PortRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Port, error) {
	var port models.Port
	err := r.db.GetContext(ctx, &port, `SELECT * FROM ports WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get port: %w", err)
	}
	return &port, nil
}

// List returns ports ordered by name
func (r *PortRepository) List(ctx context.Context, activeOnly bool) ([]*models.Port, error) {
	ports := []*models.Port{}
	query := `SELECT * FROM ports`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	if err := r.db.SelectContext(ctx, &ports, query); err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return ports, nil
}

// Update writes the mutable fields of a port
func (r *PortRepository) Update(ctx context.Context, port *models.Port) error {
	port.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, `
		UPDATE ports
		SET name = $2, slug = $3, city = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`, port.ID, port.Name, port.Slug, port.City, port.IsActive, port.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to update port: %w", err)
	}
	return expectOne(result, models.ErrPortNotFound)
}

// Delete removes a port that no route references
func (r *PortRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ports WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrInUse
		}
		return fmt.Errorf("failed to delete port: %w", err)
	}
	return expectOne(result, models.ErrPortNotFound)
}

// expectOne returns notFound when the statement touched no rows
func expectOne(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
