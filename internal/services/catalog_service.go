package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jinzhu/copier"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/models"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var partialUpdate = copier.Option{IgnoreEmpty: true}

// CatalogService manages ports, ships, routes and schedules, and the public search
type CatalogService struct {
	ports      *database.PortRepository
	ships      *database.ShipRepository
	routes     *database.RouteRepository
	schedules  *database.ScheduleRepository
	bookings   *database.BookingRepository
	users      *database.UserRepository
	bookingSvc *BookingService
	audit      *AuditService
	loc        *time.Location
	logger     *logrus.Logger
	now        Clock
}

// NewCatalogService creates a new catalog service. loc is the zone search dates are read in.
func NewCatalogService(
	ports *database.PortRepository,
	ships *database.ShipRepository,
	routes *database.RouteRepository,
	schedules *database.ScheduleRepository,
	bookings *database.BookingRepository,
	users *database.UserRepository,
	bookingSvc *BookingService,
	audit *AuditService,
	loc *time.Location,
	logger *logrus.Logger,
) *CatalogService {
	if loc == nil {
		loc = time.Local
	}
	return &CatalogService{
		ports:      ports,
		ships:      ships,
		routes:     routes,
		schedules:  schedules,
		bookings:   bookings,
		users:      users,
		bookingSvc: bookingSvc,
		audit:      audit,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (s *CatalogService) SetClock(c Clock) {
	s.now = c
}

// ============================================================================
// PORTS
// ============================================================================

func (s *CatalogService) CreatePort(ctx context.Context, req *models.CreatePortRequest) (*models.Port, error) {
	port := &models.Port{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:     strings.TrimSpace(req.Name),
		City:     strings.TrimSpace(req.City),
		IsActive: true,
	}
	port.Slug = slug.Make(port.Name)

	if err := s.ports.Create(ctx, port); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"port_code": port.Code, "slug": port.Slug}).Info("Port created")
	return port, nil
}

func (s *CatalogService) ListPorts(ctx context.Context, activeOnly bool) ([]*models.Port, error) {
	return s.ports.List(ctx, activeOnly)
}

func (s *CatalogService) GetPort(ctx context.Context, id uuid.UUID) (*models.Port, error) {
	port, err := s.ports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if port == nil {
		return nil, models.ErrPortNotFound
	}
	return port, nil
}

func (s *CatalogService) UpdatePort(ctx context.Context, id uuid.UUID, req *models.UpdatePortRequest) (*models.Port, error) {
	port, err := s.GetPort(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := copier.CopyWithOption(port, req, partialUpdate); err != nil {
		return nil, fmt.Errorf("failed to apply port update: %w", err)
	}
	port.Slug = slug.Make(port.Name)

	if err := s.ports.Update(ctx, port); err != nil {
		return nil, err
	}
	return port, nil
}

func (s *CatalogService) DeletePort(ctx context.Context, id uuid.UUID) error {
	return s.ports.Delete(ctx, id)
}

// ============================================================================
// SHIPS
// ============================================================================

func (s *CatalogService) CreateShip(ctx context.Context, req *models.CreateShipRequest) (*models.Ship, error) {
	ship := &models.Ship{IsActive: true}
	if err := copier.Copy(ship, req); err != nil {
		return nil, fmt.Errorf("failed to build ship: %w", err)
	}
	ship.Facilities = pq.StringArray(req.Facilities)
	if ship.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", models.ErrValidation)
	}

	if err := s.ships.Create(ctx, ship); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"ship": ship.Name, "capacity": ship.Capacity}).Info("Ship created")
	return ship, nil
}

func (s *CatalogService) ListShips(ctx context.Context) ([]*models.Ship, error) {
	return s.ships.List(ctx)
}

func (s *CatalogService) GetShip(ctx context.Context, id uuid.UUID) (*models.Ship, error) {
	ship, err := s.ships.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ship == nil {
		return nil, models.ErrShipNotFound
	}
	return ship, nil
}

func (s *CatalogService) UpdateShip(ctx context.Context, id uuid.UUID, req *models.UpdateShipRequest) (*models.Ship, error) {
	ship, err := s.GetShip(ctx, id)
	if err != nil {
		return nil, err
	}

	facilities := req.Facilities
	req.Facilities = nil
	if err := copier.CopyWithOption(ship, req, partialUpdate); err != nil {
		return nil, fmt.Errorf("failed to apply ship update: %w", err)
	}
	if facilities != nil {
		ship.Facilities = pq.StringArray(*facilities)
	}
	if ship.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", models.ErrValidation)
	}

	if err := s.ships.Update(ctx, ship); err != nil {
		return nil, err
	}
	return ship, nil
}

func (s *CatalogService) DeleteShip(ctx context.Context, id uuid.UUID) error {
	return s.ships.Delete(ctx, id)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *CatalogService) CreateRoute(ctx context.Context, req *models.CreateRouteRequest) (*models.Route, error) {
	if req.OriginPortID == req.DestinationPortID {
		return nil, fmt.Errorf("%w: origin and destination must differ", models.ErrValidation)
	}

	origin, err := s.GetPort(ctx, req.OriginPortID)
	if err != nil {
		return nil, err
	}
	destination, err := s.GetPort(ctx, req.DestinationPortID)
	if err != nil {
		return nil, err
	}

	route := &models.Route{
		OriginPortID:        origin.ID,
		DestinationPortID:   destination.ID,
		Slug:                RouteSlug(origin, destination),
		DurationMinutes:     req.DurationMinutes,
		IsActive:            true,
		OriginPortName:      origin.Name,
		OriginPortCode:      origin.Code,
		DestinationPortName: destination.Name,
		DestinationPortCode: destination.Code,
	}
	if err := s.routes.Create(ctx, route); err != nil {
		return nil, err
	}
	s.logger.WithField("route", route.Slug).Info("Route created")
	return route, nil
}

// RouteSlug is <origin>-to-<destination>
func RouteSlug(origin, destination *models.Port) string {
	return slug.Make(origin.Name + " to " + destination.Name)
}

func (s *CatalogService) ListRoutes(ctx context.Context) ([]*models.Route, error) {
	return s.routes.List(ctx)
}

func (s *CatalogService) GetRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, models.ErrRouteNotFound
	}
	return route, nil
}

func (s *CatalogService) UpdateRoute(ctx context.Context, id uuid.UUID, req *models.UpdateRouteRequest) (*models.Route, error) {
	route, err := s.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := copier.CopyWithOption(route, req, partialUpdate); err != nil {
		return nil, fmt.Errorf("failed to apply route update: %w", err)
	}
	if err := s.routes.Update(ctx, route); err != nil {
		return nil, err
	}
	return route, nil
}

func (s *CatalogService) DeleteRoute(ctx context.Context, id uuid.UUID) error {
	return s.routes.Delete(ctx, id)
}

// ============================================================================
// SCHEDULES
// ============================================================================

// CreateSchedule opens a sailing. Capacity defaults to the ship's and arrival to
// departure plus the route duration.
func (s *CatalogService) CreateSchedule(ctx context.Context, req *models.CreateScheduleRequest) (*models.ScheduleDetail, error) {
	route, err := s.GetRoute(ctx, req.RouteID)
	if err != nil {
		return nil, err
	}
	if !route.IsActive {
		return nil, fmt.Errorf("%w: route is inactive", models.ErrValidation)
	}
	ship, err := s.GetShip(ctx, req.ShipID)
	if err != nil {
		return nil, err
	}
	if !ship.IsActive {
		return nil, fmt.Errorf("%w: ship is inactive", models.ErrValidation)
	}

	schedule := &models.Schedule{
		RouteID:       route.ID,
		ShipID:        ship.ID,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.DepartureTime.Add(time.Duration(route.DurationMinutes) * time.Minute),
		Price:         req.Price,
		Capacity:      ship.Capacity,
	}
	if req.ArrivalTime != nil {
		schedule.ArrivalTime = *req.ArrivalTime
	}
	if req.Capacity != nil {
		schedule.Capacity = *req.Capacity
	}

	if err := s.checkSchedule(schedule, ship); err != nil {
		return nil, err
	}
	if !schedule.DepartureTime.After(s.now()) {
		return nil, fmt.Errorf("%w: departure must be in the future", models.ErrValidation)
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"route":       route.Slug,
		"departure":   schedule.DepartureTime,
	}).Info("Schedule created")

	return s.GetSchedule(ctx, schedule.ID)
}

func (s *CatalogService) checkSchedule(schedule *models.Schedule, ship *models.Ship) error {
	if !schedule.ArrivalTime.After(schedule.DepartureTime) {
		return fmt.Errorf("%w: arrival must be after departure", models.ErrValidation)
	}
	if schedule.Capacity <= 0 || schedule.Capacity > ship.Capacity {
		return fmt.Errorf("%w: capacity must be between 1 and %d", models.ErrValidation, ship.Capacity)
	}
	if schedule.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", models.ErrValidation)
	}
	return nil
}

func (s *CatalogService) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]*models.ScheduleDetail, error) {
	return s.schedules.List(ctx, f)
}

func (s *CatalogService) GetSchedule(ctx context.Context, id uuid.UUID) (*models.ScheduleDetail, error) {
	detail, err := s.schedules.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, models.ErrScheduleNotFound
	}
	return detail, nil
}

// UpdateSchedule changes a sailing that has not left. A capacity change moves
// available seats by the same delta.
func (s *CatalogService) UpdateSchedule(ctx context.Context, id uuid.UUID, req *models.UpdateScheduleRequest) (*models.ScheduleDetail, error) {
	detail, err := s.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != models.ScheduleStatusScheduled {
		return nil, fmt.Errorf("%w: only scheduled sailings can be changed", models.ErrStateChanged)
	}
	ship, err := s.GetShip(ctx, detail.ShipID)
	if err != nil {
		return nil, err
	}

	schedule := detail.Schedule
	if err := copier.CopyWithOption(&schedule, req, partialUpdate); err != nil {
		return nil, fmt.Errorf("failed to apply schedule update: %w", err)
	}
	if err := s.checkSchedule(&schedule, ship); err != nil {
		return nil, err
	}
	if req.DepartureTime != nil && !schedule.DepartureTime.After(s.now()) {
		return nil, fmt.Errorf("%w: departure must be in the future", models.ErrValidation)
	}

	if err := s.schedules.Update(ctx, &schedule); err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, id)
}

// CancelSchedule closes a sailing to new bookings and releases its unpaid ones
func (s *CatalogService) CancelSchedule(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSchedule(ctx, id); err != nil {
		return err
	}
	if err := s.schedules.Cancel(ctx, id); err != nil {
		return err
	}

	pending, err := s.bookings.ListPendingBySchedule(ctx, id)
	if err != nil {
		return err
	}
	for _, b := range pending {
		s.bookingSvc.cancelGatewayTransaction(ctx, b)
		released, err := s.bookings.ReleaseAndClose(ctx, b.ID, models.BookingStatusCancelled, models.PaymentStatusCancelled)
		if err != nil {
			s.logger.WithError(err).WithField("booking_code", b.Code).Error("Failed to cancel booking of cancelled schedule")
			continue
		}
		if released {
			b.Status = models.BookingStatusCancelled
			s.bookingSvc.publish(ctx, events.TopicBookingCancelled, b)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id":      id,
		"pending_released": len(pending),
	}).Warn("Schedule cancelled")
	return nil
}

func (s *CatalogService) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSchedule(ctx, id); err != nil {
		return err
	}
	return s.schedules.Delete(ctx, id)
}

// ============================================================================
// SEARCH
// ============================================================================

// SearchSchedules returns bookable sailings departing on the given calendar day
func (s *CatalogService) SearchSchedules(ctx context.Context, p models.ScheduleSearchParams) ([]*models.ScheduleDetail, error) {
	p.Origin = strings.TrimSpace(p.Origin)
	p.Destination = strings.TrimSpace(p.Destination)
	if p.Origin == "" || p.Destination == "" {
		return nil, fmt.Errorf("%w: origin and destination are required", models.ErrValidation)
	}
	if strings.EqualFold(p.Origin, p.Destination) {
		return nil, fmt.Errorf("%w: origin and destination must differ", models.ErrValidation)
	}
	if p.Passengers <= 0 {
		p.Passengers = 1
	}

	loc := p.Location
	if loc == nil {
		loc = s.loc
	}
	y, m, d := p.Date.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	return s.schedules.Search(ctx, p.Origin, p.Destination, from, to, p.Passengers)
}

// ============================================================================
// USERS
// ============================================================================

// ListUsers returns a page of users and the total count
func (s *CatalogService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, limit, offset)
}

// ChangeUserRole sets a user's role. Admins cannot demote themselves.
func (s *CatalogService) ChangeUserRole(ctx context.Context, admin Actor, userID uuid.UUID, role models.Role, client ClientInfo) (*models.User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrValidation, role)
	}
	if admin.UserID == userID && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", models.ErrForbidden)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	if user.Role == role {
		return user, nil
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.LogRoleChange(ctx, admin.UserID, userID, user.Role, role, client)
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"from":    user.Role,
		"to":      role,
	}).Info("User role changed")

	user.Role = role
	return user, nil
}
