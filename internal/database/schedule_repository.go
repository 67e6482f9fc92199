package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lautnusa/speedboat-backend/internal/models"
)

const scheduleColumns = `
	s.id, s.route_id, s.ship_id, s.departure_time, s.arrival_time, s.price,
	s.capacity, s.available_seats, s.status, s.created_at, s.updated_at`

const scheduleDetailSelect = `
	SELECT ` + scheduleColumns + `,
	       r.slug AS route_slug,
	       op.code AS origin_port_code, op.name AS origin_port_name,
	       dp.code AS destination_port_code, dp.name AS destination_port_name,
	       sh.name AS ship_name
	FROM schedules s
	JOIN routes r ON r.id = s.route_id
	JOIN ports op ON op.id = r.origin_port_id
	JOIN ports dp ON dp.id = r.destination_port_id
	JOIN ships sh ON sh.id = s.ship_id`

// ScheduleRepository handles schedule database operations
type ScheduleRepository struct {
	db DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a schedule with all seats available
func (r *ScheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
	s.ID = uuid.New()
	s.AvailableSeats = s.Capacity
	s.Status = models.ScheduleStatusScheduled
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, route_id, ship_id, departure_time, arrival_time, price,
			capacity, available_seats, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.RouteID, s.ShipID, s.DepartureTime, s.ArrivalTime, s.Price,
		s.Capacity, s.AvailableSeats, s.Status, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown route or ship", models.ErrValidation)
		}
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// GetDetail retrieves a schedule joined with route, ports and ship. Returns nil if not found.
func (r *ScheduleRepository) GetDetail(ctx context.Context, id uuid.UUID) (*models.ScheduleDetail, error) {
	var detail models.ScheduleDetail
	err := r.db.GetContext(ctx, &detail, scheduleDetailSelect+` WHERE s.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &detail, nil
}

// Search returns bookable sailings between two ports (code or slug) within [from, to)
func (r *ScheduleRepository) Search(ctx context.Context, origin, destination string, from, to time.Time, passengers int) ([]*models.ScheduleDetail, error) {
	results := []*models.ScheduleDetail{}

	query := scheduleDetailSelect + `
		WHERE (op.code = UPPER($1) OR op.slug = LOWER($1))
		  AND (dp.code = UPPER($2) OR dp.slug = LOWER($2))
		  AND s.status = 'SCHEDULED'
		  AND r.is_active = TRUE
		  AND s.departure_time >= $3
		  AND s.departure_time < $4
		  AND s.departure_time > NOW()
		  AND s.available_seats >= $5
		ORDER BY s.departure_time`

	if err := r.db.SelectContext(ctx, &results, query, origin, destination, from, to, passengers); err != nil {
		return nil, fmt.Errorf("failed to search schedules: %w", err)
	}
	return results, nil
}

// List returns schedules matching the admin filter, soonest first
func (r *ScheduleRepository) List(ctx context.Context, f models.ScheduleFilter) ([]*models.ScheduleDetail, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.RouteID != nil {
		add("s.route_id = $%d", *f.RouteID)
	}
	if f.ShipID != nil {
		add("s.ship_id = $%d", *f.ShipID)
	}
	if f.Status != nil {
		add("s.status = $%d", *f.Status)
	}
	if f.From != nil {
		add("s.departure_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("s.departure_time < $%d", *f.To)
	}

	query := scheduleDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY s.departure_time LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	results := []*models.ScheduleDetail{}
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return results, nil
}

// Update writes times, price and capacity. A capacity change shifts
// available_seats by the same amount and fails with models.ErrInsufficientSeats
// when it would go negative.
func (r *ScheduleRepository) Update(ctx context.Context, s *models.Schedule) error {
	var updated models.Schedule
	err := r.db.GetContext(ctx, &updated, `
		UPDATE schedules
		SET departure_time = $2,
		    arrival_time = $3,
		    price = $4,
		    available_seats = available_seats + ($5 - capacity),
		    capacity = $5,
		    updated_at = NOW()
		WHERE id = $1
		  AND available_seats + ($5 - capacity) >= 0
		RETURNING id, route_id, ship_id, departure_time, arrival_time, price,
		          capacity, available_seats, status, created_at, updated_at
	`, s.ID, s.DepartureTime, s.ArrivalTime, s.Price, s.Capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrInsufficientSeats
		}
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	*s = updated
	return nil
}

// Cancel closes a scheduled sailing to new bookings
func (r *ScheduleRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel schedule: %w", err)
	}
	return expectOne(result, models.ErrStateChanged)
}

// Delete removes a schedule that has never been booked
func (r *ScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM schedules
		WHERE id = $1
		  AND NOT EXISTS (SELECT 1 FROM bookings WHERE schedule_id = $1)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return expectOne(result, models.ErrInUse)
}

// CompleteArrived marks sailings whose arrival time has passed as completed
func (r *ScheduleRepository) CompleteArrived(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'COMPLETED', updated_at = NOW()
		WHERE status IN ('SCHEDULED', 'DEPARTED') AND arrival_time < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete schedules: %w", err)
	}
	return result.RowsAffected()
}
