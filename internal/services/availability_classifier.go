package services

import (
	"time"

	"github.com/smarttransit/student-booking-engine/internal/models"
)

// Classify maps a date's schedule state, the student's booking on it and the
// optimistic cache entry to a calendar status.
//
// Rules are applied in strict priority order; an earlier match masks every
// later one:
//
//  1. no schedule                               -> unavailable
//  2. cancelled, or booking switched off        -> disabled
//  3. completed                                 -> completed
//  4. student holds a confirmed booking         -> booked
//  5. optimistic cache says booked              -> booked
//  6. upstream "booking available" flag false   -> closed
//  7. deadline passed or window flag false      -> closed
//  8. no seats left                             -> full
//  9. status neither scheduled nor in_progress  -> unavailable
//  10. otherwise                                -> available
//
// A cancellation outranks the student's own booking, and the student's own
// booking outranks seat exhaustion.
func Classify(schedule *models.ScheduleInstance, booking *models.Booking, cachedBooked bool, now time.Time) models.DateClassification {
	if schedule == nil {
		return models.DateClassification{Status: models.DateStatusUnavailable, Reason: "No trip scheduled"}
	}

	if schedule.Status == models.ScheduleStatusCancelled || !schedule.BookingEnabled {
		return models.DateClassification{Status: models.DateStatusDisabled, Reason: disabledReason(schedule)}
	}

	if schedule.Status == models.ScheduleStatusCompleted {
		return models.DateClassification{Status: models.DateStatusCompleted}
	}

	if models.HasConfirmedBooking(booking) || cachedBooked {
		return models.DateClassification{Status: models.DateStatusBooked}
	}

	if schedule.AvailabilityFlagOff() {
		reason := "Booking is not available for this trip"
		if schedule.UnavailableReason != nil && *schedule.UnavailableReason != "" {
			reason = *schedule.UnavailableReason
		}
		return models.DateClassification{Status: models.DateStatusClosed, Reason: reason}
	}

	if schedule.WindowClosed(now) {
		reason := "Booking window is closed"
		if schedule.IsPastDeadline(now) {
			reason = "Booking deadline has passed"
		}
		return models.DateClassification{Status: models.DateStatusClosed, Reason: reason}
	}

	if schedule.AvailableSeats <= 0 {
		return models.DateClassification{Status: models.DateStatusFull, Reason: "No seats left"}
	}

	if !schedule.Status.IsActive() {
		return models.DateClassification{Status: models.DateStatusUnavailable}
	}

	return models.DateClassification{Status: models.DateStatusAvailable}
}

func disabledReason(schedule *models.ScheduleInstance) string {
	if schedule.DisabledReason != nil && *schedule.DisabledReason != "" {
		return *schedule.DisabledReason
	}
	if schedule.Status == models.ScheduleStatusCancelled {
		return "Trip cancelled"
	}
	return "Booking disabled for this trip"
}
