package services

import (
	"context"
	"fmt"
	"time"

	"github.com/smarttransit/student-booking-engine/internal/models"
)

// BookingEngine is the entry point used by the HTTP layer. It wires the
// classifier, the policy, the transaction and the reconciler over one set of
// data sources.
type BookingEngine struct {
	schedules    ScheduleSource
	allocations  AllocationSource
	policy       *BookingPolicy
	transactions *BookingTransaction
	reconciler   *ReconciliationService
	now          func() time.Time
}

// EngineOption customises a BookingEngine
type EngineOption func(*BookingEngine)

// WithClock overrides the engine clock, mainly for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *BookingEngine) {
		e.now = now
		e.transactions.now = now
	}
}

// WithIDGenerator overrides how booking ids are generated
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *BookingEngine) {
		e.transactions.newID = newID
	}
}

// NewBookingEngine creates a new BookingEngine
func NewBookingEngine(
	schedules ScheduleSource,
	allocations AllocationSource,
	ledger Ledger,
	loc *time.Location,
	opts ...EngineOption,
) *BookingEngine {
	policy := NewBookingPolicy(loc)
	e := &BookingEngine{
		schedules:    schedules,
		allocations:  allocations,
		policy:       policy,
		transactions: NewBookingTransaction(ledger, allocations, policy),
		reconciler:   NewReconciliationService(schedules, allocations),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendar classifies every date of the range for the student's allocated route.
// cache is the optimistic status cache consulted by the classifier; it may be nil.
func (e *BookingEngine) Calendar(
	ctx context.Context,
	studentID string,
	dateRange models.DateRange,
	cache models.StatusCache,
) ([]models.CalendarDay, error) {
	allocation, err := e.allocations.GetStudentAllocation(ctx, studentID)
	if err != nil {
		return nil, err
	}

	byDate := map[string]*models.ScheduleInstance{}
	if allocation != nil {
		schedules, err := e.schedules.GetRouteSchedules(ctx, allocation.RouteID, studentID, dateRange.From, dateRange.To)
		if err != nil {
			return nil, err
		}
		// Rows come ordered by departure. A date is represented by the schedule
		// the student holds a booking on, otherwise by its earliest schedule.
		for i := range schedules {
			date := schedules[i].DateKey()
			current, ok := byDate[date]
			if !ok || (!models.HasConfirmedBooking(current.MyBooking) && models.HasConfirmedBooking(schedules[i].MyBooking)) {
				byDate[date] = &schedules[i]
			}
		}
	}

	now := e.now()
	dates := dateRange.Dates()
	days := make([]models.CalendarDay, 0, len(dates))
	for _, date := range dates {
		schedule := byDate[date]

		var booking *models.Booking
		if schedule != nil {
			booking = schedule.MyBooking
		}

		classification := Classify(schedule, booking, cache[date], now)
		day := models.CalendarDay{
			Date:   date,
			Status: classification.Status,
			Reason: classification.Reason,
		}
		if allocation == nil {
			day.Reason = "You are not allocated to a transport route"
		}
		if schedule != nil {
			day.ScheduleID = schedule.ID
			day.Seats = &models.CalendarSeatCount{Total: schedule.TotalSeats, Available: schedule.AvailableSeats}
		}
		if models.HasConfirmedBooking(booking) {
			day.Booking = booking
		}
		days = append(days, day)
	}

	return days, nil
}

// Evaluate runs the booking policy for one schedule without side effects
func (e *BookingEngine) Evaluate(ctx context.Context, studentID, scheduleID string) (*models.ScheduleInstance, models.PolicyDecision, error) {
	schedule, err := e.schedules.GetScheduleForStudent(ctx, scheduleID, studentID)
	if err != nil {
		return nil, models.PolicyDecision{}, err
	}
	if schedule == nil {
		return nil, models.PolicyDecision{}, ErrScheduleNotFound
	}

	allocation, err := e.allocations.GetStudentAllocation(ctx, studentID)
	if err != nil {
		return nil, models.PolicyDecision{}, err
	}

	return schedule, e.policy.Evaluate(schedule, allocation, studentID, e.now()), nil
}

// PrepareCommit builds a commit request from the schedule and the student's
// allocation. An empty boardingStop falls back to the allocated stop.
func (e *BookingEngine) PrepareCommit(ctx context.Context, studentID, scheduleID, boardingStop string) (models.CommitRequest, error) {
	schedule, err := e.schedules.GetScheduleForStudent(ctx, scheduleID, studentID)
	if err != nil {
		return models.CommitRequest{}, err
	}
	if schedule == nil {
		return models.CommitRequest{}, ErrScheduleNotFound
	}

	if boardingStop == "" {
		allocation, err := e.allocations.GetStudentAllocation(ctx, studentID)
		if err != nil {
			return models.CommitRequest{}, err
		}
		if allocation != nil {
			boardingStop = allocation.BoardingStop
		}
	}

	return models.CommitRequest{
		StudentID:    studentID,
		ScheduleID:   schedule.ID,
		RouteID:      schedule.RouteID,
		TripDate:     schedule.TripDate,
		BoardingStop: boardingStop,
		Amount:       schedule.Fare,
	}, nil
}

// Commit reserves a seat; see BookingTransaction.Commit
func (e *BookingEngine) Commit(ctx context.Context, req models.CommitRequest) (*models.BookingResult, error) {
	result, err := e.transactions.Commit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return result, nil
}

// Release cancels a booking; see BookingTransaction.Release
func (e *BookingEngine) Release(ctx context.Context, studentID, bookingID string) (*models.ReleaseResult, error) {
	result, err := e.transactions.Release(ctx, studentID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to release booking: %w", err)
	}
	return result, nil
}

// Reconcile heals a client status cache; see ReconciliationService.Reconcile
func (e *BookingEngine) Reconcile(
	ctx context.Context,
	studentID string,
	dateRange models.DateRange,
	clientCache models.StatusCache,
) (*models.ReconcileResult, error) {
	return e.reconciler.Reconcile(ctx, studentID, dateRange, clientCache)
}
