package services

import (
	"fmt"
	"time"

	"github.com/smarttransit/student-booking-engine/internal/models"
)

// BookingPolicy decides whether a student may reserve a seat on a schedule.
// It is side-effect free and must be re-run at commit time on freshly locked state.
type BookingPolicy struct {
	location *time.Location
}

// NewBookingPolicy creates a policy whose notion of "today" is taken in loc
func NewBookingPolicy(loc *time.Location) *BookingPolicy {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingPolicy{location: loc}
}

// Evaluate runs every check and reports all failures in a fixed order
func (p *BookingPolicy) Evaluate(
	schedule *models.ScheduleInstance,
	allocation *models.StudentRouteAllocation,
	studentID string,
	now time.Time,
) models.PolicyDecision {
	if schedule == nil {
		return deny(models.Denial{Reason: models.DenyTripNotActive, Message: "Trip not found"})
	}

	var denials []models.Denial
	add := func(reason models.DenyReason, message string) {
		denials = append(denials, models.Denial{Reason: reason, Message: message})
	}

	if !schedule.AdminApproved {
		add(models.DenyNotApproved, "This trip has not been approved for booking yet")
	}

	if !schedule.BookingEnabled {
		msg := "Booking is disabled for this trip"
		if schedule.DisabledReason != nil && *schedule.DisabledReason != "" {
			msg = *schedule.DisabledReason
		}
		add(models.DenyBookingDisabled, msg)
	}

	switch {
	case schedule.Status == models.ScheduleStatusCancelled:
		add(models.DenyTripCancelled, "This trip has been cancelled")
	case schedule.Status == models.ScheduleStatusCompleted:
		add(models.DenyTripCompleted, "This trip has already been completed")
	case !schedule.Status.IsActive():
		add(models.DenyTripNotActive, fmt.Sprintf("Trip is not open for booking (status: %s)", schedule.Status))
	}

	if schedule.IsPastDeadline(now) {
		add(models.DenyWindowClosed, "The booking deadline for this trip has passed")
	} else if schedule.WindowClosed(now) {
		add(models.DenyWindowClosed, "The booking window for this trip is closed")
	}

	if schedule.AvailabilityFlagOff() {
		msg := "Booking is not available for this trip"
		if schedule.UnavailableReason != nil && *schedule.UnavailableReason != "" {
			msg = *schedule.UnavailableReason
		}
		add(models.DenyBookingUnavailable, msg)
	}

	if schedule.AvailableSeats <= 0 {
		add(models.DenyNoSeats, "No seats are left on this trip")
	}

	switch {
	case allocation == nil || !allocation.Active ||
		(allocation.StudentID != "" && allocation.StudentID != studentID):
		add(models.DenyNoAllocation, "You are not allocated to a transport route")
	case allocation.RouteID != schedule.RouteID:
		add(models.DenyRouteMismatch, "This trip is not on your allocated route")
	}

	if p.isPastDate(schedule.TripDate, now) {
		add(models.DenyPastDate, "Trips in the past cannot be booked")
	}

	if len(denials) > 0 {
		return models.PolicyDecision{Allowed: false, Denials: denials}
	}
	return models.PolicyDecision{Allowed: true}
}

// isPastDate compares calendar dates; the trip date is a plain date while today
// is taken from the server clock in the configured zone
func (p *BookingPolicy) isPastDate(tripDate, now time.Time) bool {
	today := now.In(p.location).Format(models.DateLayout)
	return tripDate.Format(models.DateLayout) < today
}

func deny(denials ...models.Denial) models.PolicyDecision {
	return models.PolicyDecision{Allowed: false, Denials: denials}
}
