package models

import (
	"time"
)

// DateLayout is the calendar date format used on the wire and as status cache keys
const DateLayout = "2006-01-02"

// ScheduleStatus represents the lifecycle status of a schedule instance
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// IsActive reports whether the status still accepts bookings
func (s ScheduleStatus) IsActive() bool {
	return s == ScheduleStatusScheduled || s == ScheduleStatusInProgress
}

// ScheduleInstance represents one trip occurrence of a route on one calendar date.
// Rows are created and advanced through their lifecycle by an external scheduling
// process; this service only reads them and moves the seat counters.
type ScheduleInstance struct {
	ID                string         `json:"id" db:"id"`
	RouteID           string         `json:"route_id" db:"route_id"`
	TripDate          time.Time      `json:"trip_date" db:"trip_date"`
	DepartureTime     string         `json:"departure_time" db:"departure_time"`
	ArrivalTime       *string        `json:"arrival_time,omitempty" db:"arrival_time"`
	TotalSeats        int            `json:"total_seats" db:"total_seats"`
	BookedSeats       int            `json:"booked_seats" db:"booked_seats"`
	AvailableSeats    int            `json:"available_seats" db:"available_seats"`
	Status            ScheduleStatus `json:"status" db:"status"`
	AdminApproved     bool           `json:"admin_approved" db:"admin_approved"`
	BookingEnabled    bool           `json:"booking_enabled" db:"booking_enabled"`
	BookingDeadline   *time.Time     `json:"booking_deadline,omitempty" db:"booking_deadline"`
	DisabledReason    *string        `json:"disabled_reason,omitempty" db:"disabled_reason"`
	BookingWindowOpen *bool          `json:"booking_window_open,omitempty" db:"booking_window_open"`
	BookingAvailable  *bool          `json:"booking_available,omitempty" db:"booking_available"`
	UnavailableReason *string        `json:"unavailable_reason,omitempty" db:"unavailable_reason"`
	Fare              float64        `json:"fare" db:"fare"`

	// MyBooking is the caller's own booking joined server-side, if any
	MyBooking *Booking `json:"my_booking,omitempty" db:"-"`
}

// DateKey returns the calendar date of the trip in YYYY-MM-DD form
func (s *ScheduleInstance) DateKey() string {
	return s.TripDate.Format(DateLayout)
}

// IsPastDeadline reports whether the booking deadline has passed at now
func (s *ScheduleInstance) IsPastDeadline(now time.Time) bool {
	return s.BookingDeadline != nil && now.After(*s.BookingDeadline)
}

// WindowClosed reports whether the booking window is closed, either because the
// deadline passed or because upstream explicitly reported the window as shut
func (s *ScheduleInstance) WindowClosed(now time.Time) bool {
	if s.IsPastDeadline(now) {
		return true
	}
	return s.BookingWindowOpen != nil && !*s.BookingWindowOpen
}

// AvailabilityFlagOff reports whether the upstream composite "booking available"
// signal is explicitly false. A missing signal does not block.
func (s *ScheduleInstance) AvailabilityFlagOff() bool {
	return s.BookingAvailable != nil && !*s.BookingAvailable
}

// SeatsConsistent checks the seat ledger invariant
func (s *ScheduleInstance) SeatsConsistent() bool {
	return s.BookedSeats >= 0 &&
		s.BookedSeats <= s.TotalSeats &&
		s.AvailableSeats == s.TotalSeats-s.BookedSeats
}
