package models

import (
	"errors"
	"time"
)

// ============================================================================
// DATE AVAILABILITY
// ============================================================================

// DateStatus is the bookability of one calendar date for a student
type DateStatus string

const (
	DateStatusUnavailable DateStatus = "unavailable" // no schedule for the date
	DateStatusDisabled    DateStatus = "disabled"    // cancelled or booking switched off
	DateStatusCompleted   DateStatus = "completed"
	DateStatusBooked      DateStatus = "booked"
	DateStatusClosed      DateStatus = "closed" // window or availability flag says no
	DateStatusFull        DateStatus = "full"
	DateStatusAvailable   DateStatus = "available"
)

// DateClassification is the result of classifying one date
type DateClassification struct {
	Status DateStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// CalendarDay is one rendered calendar cell
type CalendarDay struct {
	Date       string             `json:"date"`
	ScheduleID string             `json:"schedule_id,omitempty"`
	Status     DateStatus         `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Booking    *Booking           `json:"booking,omitempty"`
	Seats      *CalendarSeatCount `json:"seats,omitempty"`
}

// CalendarSeatCount carries the seat counters shown next to a date
type CalendarSeatCount struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// ============================================================================
// POLICY
// ============================================================================

// DenyReason identifies why a booking is not allowed
type DenyReason string

const (
	DenyNotApproved        DenyReason = "not_approved"
	DenyBookingDisabled    DenyReason = "booking_disabled"
	DenyTripCancelled      DenyReason = "trip_cancelled"
	DenyTripCompleted      DenyReason = "trip_completed"
	DenyTripNotActive      DenyReason = "trip_not_active"
	DenyWindowClosed       DenyReason = "booking_window_closed"
	DenyBookingUnavailable DenyReason = "booking_unavailable"
	DenyNoSeats            DenyReason = "no_seats"
	DenyNoAllocation       DenyReason = "no_allocation"
	DenyRouteMismatch      DenyReason = "route_mismatch"
	DenyPastDate           DenyReason = "past_date"
)

// Denial is one failed policy check with a human-readable message
type Denial struct {
	Reason  DenyReason `json:"reason"`
	Message string     `json:"message"`
}

// PolicyDecision is the outcome of evaluating the booking policy.
// Allowed is true only when Denials is empty.
type PolicyDecision struct {
	Allowed bool     `json:"allowed"`
	Denials []Denial `json:"denials,omitempty"`
}

// First returns the first denial, which is what most callers surface to the user
func (d PolicyDecision) First() *Denial {
	if len(d.Denials) == 0 {
		return nil
	}
	return &d.Denials[0]
}

// Has reports whether the decision contains the given reason
func (d PolicyDecision) Has(reason DenyReason) bool {
	for _, denial := range d.Denials {
		if denial.Reason == reason {
			return true
		}
	}
	return false
}

// ============================================================================
// COMMIT / RELEASE
// ============================================================================

// CommitRequest carries the parameters of a booking commit.
// Payment is expected to be captured before a commit is attempted.
type CommitRequest struct {
	StudentID    string
	ScheduleID   string
	RouteID      string
	TripDate     time.Time
	BoardingStop string
	Amount       float64
}

// Validate checks that the identifying fields are present
func (r CommitRequest) Validate() error {
	if r.StudentID == "" {
		return errors.New("student_id is required")
	}
	if r.ScheduleID == "" {
		return errors.New("schedule_id is required")
	}
	if r.Amount < 0 {
		return errors.New("amount cannot be negative")
	}
	return nil
}

// BookingOutcome discriminates the result of a commit attempt.
// Storage failures are returned as errors rather than as an outcome.
type BookingOutcome string

const (
	OutcomeConfirmed     BookingOutcome = "confirmed"
	OutcomeDenied        BookingOutcome = "denied"
	OutcomeAlreadyBooked BookingOutcome = "already_booked"
	OutcomeConflict      BookingOutcome = "conflict"
)

// BookingResult is the outcome of BookingTransaction.Commit
type BookingResult struct {
	Outcome BookingOutcome `json:"outcome"`

	// Booking is the committed booking for confirmed, or the existing one for already_booked
	Booking *Booking `json:"booking,omitempty"`

	// Decision is set for denied
	Decision *PolicyDecision `json:"decision,omitempty"`

	// Attempts is the number of transaction attempts made (1 or 2)
	Attempts int `json:"attempts"`
}

// ReleaseOutcome discriminates the result of releasing a booking
type ReleaseOutcome string

const (
	OutcomeReleased        ReleaseOutcome = "released"
	OutcomeAlreadyReleased ReleaseOutcome = "already_released"
)

// ReleaseResult is the outcome of BookingTransaction.Release
type ReleaseResult struct {
	Outcome ReleaseOutcome `json:"outcome"`
	Booking *Booking       `json:"booking"`
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	From time.Time
	To   time.Time
}

// Validate checks the range ordering and width
func (r DateRange) Validate(maxDays int) error {
	if r.From.IsZero() || r.To.IsZero() {
		return errors.New("from and to are required")
	}
	if r.To.Before(r.From) {
		return errors.New("to must not be before from")
	}
	if maxDays > 0 && len(r.Dates()) > maxDays {
		return errors.New("date range is too wide")
	}
	return nil
}

// Contains reports whether the date key falls inside the range
func (r DateRange) Contains(dateKey string) bool {
	return dateKey >= r.From.Format(DateLayout) && dateKey <= r.To.Format(DateLayout)
}

// Dates lists every date key in the range, in order
func (r DateRange) Dates() []string {
	from := time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(r.To.Year(), r.To.Month(), r.To.Day(), 0, 0, 0, 0, time.UTC)

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}

// DateChange is one date whose cached value disagreed with the server
type DateChange struct {
	Date string `json:"date"`
	Was  bool   `json:"was"`
	Now  bool   `json:"now"`
}

// ReconcileResult holds the healed cache and the dates that changed
type ReconcileResult struct {
	Corrected StatusCache  `json:"corrected"`
	Diff      []DateChange `json:"diff"`
}
