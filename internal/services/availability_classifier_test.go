package services

import (
	"testing"
	"time"

	"github.com/smarttransit/student-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	confirmed := &models.Booking{ID: "b-1", Status: models.BookingStatusConfirmed}
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name     string
		schedule func() *models.ScheduleInstance
		booking  *models.Booking
		cached   bool
		want     models.DateStatus
		reason   string
	}{
		{
			name:     "no schedule",
			schedule: func() *models.ScheduleInstance { return nil },
			want:     models.DateStatusUnavailable,
			reason:   "No trip scheduled",
		},
		{
			name: "cancelled trip outranks own booking",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.Status = models.ScheduleStatusCancelled
				return s
			},
			booking: confirmed,
			want:    models.DateStatusDisabled,
			reason:  "Trip cancelled",
		},
		{
			name: "booking switched off uses disabled reason",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookingEnabled = false
				s.DisabledReason = strPtr("Road closure")
				return s
			},
			want:   models.DateStatusDisabled,
			reason: "Road closure",
		},
		{
			name: "completed",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.Status = models.ScheduleStatusCompleted
				return s
			},
			booking: confirmed,
			want:    models.DateStatusCompleted,
		},
		{
			name: "own booking outranks full",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookedSeats, s.AvailableSeats = 40, 0
				return s
			},
			booking: confirmed,
			want:    models.DateStatusBooked,
		},
		{
			name:     "optimistic cache marks booked",
			schedule: func() *models.ScheduleInstance { return newSchedule("s-1", "2026-03-03", 40) },
			cached:   true,
			want:     models.DateStatusBooked,
		},
		{
			name:     "malformed booking without id is ignored",
			schedule: func() *models.ScheduleInstance { return newSchedule("s-1", "2026-03-03", 40) },
			booking:  &models.Booking{ID: "  ", Status: models.BookingStatusConfirmed},
			want:     models.DateStatusAvailable,
		},
		{
			name:     "cancelled booking is ignored",
			schedule: func() *models.ScheduleInstance { return newSchedule("s-1", "2026-03-03", 40) },
			booking:  &models.Booking{ID: "b-1", Status: models.BookingStatusCancelled},
			want:     models.DateStatusAvailable,
		},
		{
			name: "availability flag off",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookingAvailable = boolPtr(false)
				s.UnavailableReason = strPtr("Bus under maintenance")
				return s
			},
			want:   models.DateStatusClosed,
			reason: "Bus under maintenance",
		},
		{
			name: "deadline passed",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookingDeadline = &past
				return s
			},
			want:   models.DateStatusClosed,
			reason: "Booking deadline has passed",
		},
		{
			name: "window flag closed",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookingWindowOpen = boolPtr(false)
				return s
			},
			want:   models.DateStatusClosed,
			reason: "Booking window is closed",
		},
		{
			name: "closed window outranks full",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookedSeats, s.AvailableSeats = 40, 0
				s.BookingWindowOpen = boolPtr(false)
				return s
			},
			want:   models.DateStatusClosed,
			reason: "Booking window is closed",
		},
		{
			name: "no seats left",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookedSeats, s.AvailableSeats = 40, 0
				return s
			},
			want:   models.DateStatusFull,
			reason: "No seats left",
		},
		{
			name: "unknown lifecycle status",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.Status = models.ScheduleStatus("draft")
				return s
			},
			want: models.DateStatusUnavailable,
		},
		{
			name: "in progress is still bookable",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.Status = models.ScheduleStatusInProgress
				return s
			},
			want: models.DateStatusAvailable,
		},
		{
			name:     "available",
			schedule: func() *models.ScheduleInstance { return newSchedule("s-1", "2026-03-03", 40) },
			want:     models.DateStatusAvailable,
		},
		{
			name: "missing availability flag does not block",
			schedule: func() *models.ScheduleInstance {
				s := newSchedule("s-1", "2026-03-03", 40)
				s.BookingAvailable = nil
				s.BookingWindowOpen = boolPtr(true)
				return s
			},
			want: models.DateStatusAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.schedule(), tt.booking, tt.cached, testNow)
			assert.Equal(t, tt.want, got.Status)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, got.Reason)
			}
		})
	}
}
