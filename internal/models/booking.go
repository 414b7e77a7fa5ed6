package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
)

// Booking represents one student's reservation against one schedule instance
type Booking struct {
	ID            string        `json:"id" db:"id"`
	StudentID     string        `json:"student_id" db:"student_id"`
	ScheduleID    string        `json:"schedule_id" db:"schedule_id"`
	RouteID       string        `json:"route_id" db:"route_id"`
	TripDate      time.Time     `json:"trip_date" db:"trip_date"`
	BoardingStop  string        `json:"boarding_stop" db:"boarding_stop"`
	SeatLabel     string        `json:"seat_label" db:"seat_label"`
	Amount        float64       `json:"amount" db:"amount"`
	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// HasConfirmedBooking reports whether b is a real, live booking.
// Upstream payloads may carry partial booking objects (for example only a status);
// anything without a non-blank id, or already cancelled, counts as no booking.
func HasConfirmedBooking(b *Booking) bool {
	if b == nil {
		return false
	}
	if strings.TrimSpace(b.ID) == "" {
		return false
	}
	return b.Status != BookingStatusCancelled
}

// NextSeatLabel returns the lowest sequential label (S01, S02, ...) not held by
// a confirmed booking, so a seat freed by a release is handed out again.
func NextSeatLabel(taken []string) string {
	held := make(map[string]struct{}, len(taken))
	for _, label := range taken {
		held[label] = struct{}{}
	}
	for n := 1; ; n++ {
		label := fmt.Sprintf("S%02d", n)
		if _, ok := held[label]; !ok {
			return label
		}
	}
}

// StudentRouteAllocation is a student's standing assignment to a route and
// boarding stop. Managed by an external module; read-only here.
type StudentRouteAllocation struct {
	StudentID    string `json:"student_id" db:"student_id"`
	RouteID      string `json:"route_id" db:"route_id"`
	BoardingStop string `json:"boarding_stop" db:"boarding_stop"`
	Active       bool   `json:"active" db:"active"`
}

// StatusCache maps a calendar date (YYYY-MM-DD) to whether the student holds a
// confirmed booking on it. Caller-owned and never authoritative.
type StatusCache map[string]bool

// Clone returns a shallow copy of the cache
func (c StatusCache) Clone() StatusCache {
	out := make(StatusCache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
