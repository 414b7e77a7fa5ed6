package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/student-booking-engine/internal/database"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

var (
	ErrInvalidRequest   = errors.New("invalid booking request")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrNotBookingOwner  = errors.New("booking belongs to another student")
)

// errSeatConflict aborts a commit transaction whose seat debit matched no row
var errSeatConflict = errors.New("seat debit matched no row")

// maxCommitAttempts bounds the automatic retry after a seat conflict
const maxCommitAttempts = 2

// Ledger opens units of work against the booking ledger
type Ledger interface {
	InTx(ctx context.Context, fn func(tx database.LedgerTx) error) error
}

// AllocationSource resolves a student's route allocation
type AllocationSource interface {
	GetStudentAllocation(ctx context.Context, studentID string) (*models.StudentRouteAllocation, error)
}

// BookingTransaction commits and releases bookings. Every commit re-reads the
// schedule under a row lock, re-runs the policy and debits the seat in the same
// transaction, so either both the booking row and the debit persist or neither does.
type BookingTransaction struct {
	ledger      Ledger
	allocations AllocationSource
	policy      *BookingPolicy
	now         func() time.Time
	newID       func() string
}

// NewBookingTransaction creates a new BookingTransaction
func NewBookingTransaction(ledger Ledger, allocations AllocationSource, policy *BookingPolicy) *BookingTransaction {
	return &BookingTransaction{
		ledger:      ledger,
		allocations: allocations,
		policy:      policy,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Commit reserves one seat for the student. Denied, AlreadyBooked and Conflict are
// reported through the result; a non-nil error means the ledger failed and nothing
// was written.
func (t *BookingTransaction) Commit(ctx context.Context, req models.CommitRequest) (*models.BookingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	allocation, err := t.allocations.GetStudentAllocation(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	var result *models.BookingResult
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		result, err = t.attempt(ctx, req, allocation)
		if err != nil {
			return nil, err
		}
		result.Attempts = attempt
		if result.Outcome != models.OutcomeConflict {
			break
		}
	}

	return result, nil
}

func (t *BookingTransaction) attempt(
	ctx context.Context,
	req models.CommitRequest,
	allocation *models.StudentRouteAllocation,
) (*models.BookingResult, error) {
	var result *models.BookingResult

	err := t.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		schedule, err := tx.LockSchedule(ctx, req.ScheduleID)
		if err != nil {
			return err
		}
		if schedule == nil {
			return ErrScheduleNotFound
		}

		existing, err := tx.FindConfirmedBooking(ctx, req.StudentID, schedule.ID)
		if err != nil {
			return err
		}

		decision := t.policy.Evaluate(schedule, allocation, req.StudentID, t.now())
		if req.RouteID != "" && req.RouteID != schedule.RouteID && !decision.Has(models.DenyRouteMismatch) {
			decision.Allowed = false
			decision.Denials = append(decision.Denials, models.Denial{
				Reason:  models.DenyRouteMismatch,
				Message: "Requested route does not match the trip",
			})
		}

		// The holder of the last seat sees their booking, not "no seats"
		if models.HasConfirmedBooking(existing) && onlySeatExhaustion(decision) {
			result = &models.BookingResult{Outcome: models.OutcomeAlreadyBooked, Booking: existing}
			return nil
		}
		if !decision.Allowed {
			result = &models.BookingResult{Outcome: models.OutcomeDenied, Decision: &decision}
			return nil
		}

		taken, err := tx.ConfirmedSeatLabels(ctx, schedule.ID)
		if err != nil {
			return err
		}

		booking := &models.Booking{
			ID:            t.newID(),
			StudentID:     req.StudentID,
			ScheduleID:    schedule.ID,
			RouteID:       schedule.RouteID,
			TripDate:      schedule.TripDate,
			BoardingStop:  req.BoardingStop,
			SeatLabel:     models.NextSeatLabel(taken),
			Amount:        req.Amount,
			Status:        models.BookingStatusConfirmed,
			PaymentStatus: models.PaymentStatusPaid,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}

		debited, err := tx.DebitSeat(ctx, schedule.ID)
		if err != nil {
			return err
		}
		if !debited {
			return errSeatConflict
		}

		result = &models.BookingResult{Outcome: models.OutcomeConfirmed, Booking: booking}
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errSeatConflict):
		return &models.BookingResult{Outcome: models.OutcomeConflict}, nil
	case errors.Is(err, database.ErrDuplicateBooking):
		return t.existingBooking(ctx, req)
	default:
		return nil, err
	}
}

// existingBooking resolves a duplicate insert by reading back the booking that won
func (t *BookingTransaction) existingBooking(ctx context.Context, req models.CommitRequest) (*models.BookingResult, error) {
	var existing *models.Booking
	err := t.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		var err error
		existing, err = tx.FindConfirmedBooking(ctx, req.StudentID, req.ScheduleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !models.HasConfirmedBooking(existing) {
		// The competing booking was released before we could read it back
		return &models.BookingResult{Outcome: models.OutcomeConflict}, nil
	}
	return &models.BookingResult{Outcome: models.OutcomeAlreadyBooked, Booking: existing}, nil
}

// Release cancels a confirmed booking and returns its seat in one transaction.
// Releasing an already cancelled booking is a no-op reported as already_released.
func (t *BookingTransaction) Release(ctx context.Context, studentID, bookingID string) (*models.ReleaseResult, error) {
	if studentID == "" || bookingID == "" {
		return nil, fmt.Errorf("%w: student_id and booking_id are required", ErrInvalidRequest)
	}

	var result *models.ReleaseResult
	err := t.ledger.InTx(ctx, func(tx database.LedgerTx) error {
		booking, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if booking.StudentID != studentID {
			return ErrNotBookingOwner
		}
		if booking.Status == models.BookingStatusCancelled {
			result = &models.ReleaseResult{Outcome: models.OutcomeAlreadyReleased, Booking: booking}
			return nil
		}

		cancelled, err := tx.MarkBookingCancelled(ctx, booking.ID)
		if err != nil {
			return err
		}
		if !cancelled {
			result = &models.ReleaseResult{Outcome: models.OutcomeAlreadyReleased, Booking: booking}
			return nil
		}

		// A false credit means the counter was already at zero; the booking is
		// still cancelled and the ledger audit repairs the counters.
		if _, err := tx.CreditSeat(ctx, booking.ScheduleID); err != nil {
			return err
		}

		cancelledAt := t.now()
		booking.Status = models.BookingStatusCancelled
		booking.CancelledAt = &cancelledAt
		result = &models.ReleaseResult{Outcome: models.OutcomeReleased, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// onlySeatExhaustion reports whether the decision failed on seats alone, or passed
func onlySeatExhaustion(decision models.PolicyDecision) bool {
	for _, denial := range decision.Denials {
		if denial.Reason != models.DenyNoSeats {
			return false
		}
	}
	return true
}
