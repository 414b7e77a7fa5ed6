package services

import (
	"context"
	"testing"

	"github.com/smarttransit/student-booking-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendarByDate(days []models.CalendarDay) map[string]models.CalendarDay {
	out := make(map[string]models.CalendarDay, len(days))
	for _, d := range days {
		out[d.Date] = d
	}
	return out
}

func TestBookingEngine_Calendar(t *testing.T) {
	ctx := context.Background()

	full := newSchedule("s-full", "2026-03-04", 40)
	full.BookedSeats, full.AvailableSeats = 40, 0
	cancelled := newSchedule("s-cancelled", "2026-03-05", 40)
	cancelled.Status = models.ScheduleStatusCancelled

	ledger := newFakeLedger(newSchedule("s-open", "2026-03-03", 40), full, cancelled)
	ledger.allocate(allocation("stu-1"))
	engine := newTestEngine(ledger)

	days, err := engine.Calendar(ctx, "stu-1", marchRange(), nil)
	require.NoError(t, err)
	require.Len(t, days, 4)

	byDate := calendarByDate(days)
	assert.Equal(t, models.DateStatusAvailable, byDate["2026-03-03"].Status)
	assert.Equal(t, "s-open", byDate["2026-03-03"].ScheduleID)
	assert.Equal(t, 40, byDate["2026-03-03"].Seats.Available)
	assert.Equal(t, models.DateStatusFull, byDate["2026-03-04"].Status)
	assert.Equal(t, models.DateStatusDisabled, byDate["2026-03-05"].Status)
	assert.Equal(t, models.DateStatusUnavailable, byDate["2026-03-06"].Status)
	assert.Nil(t, byDate["2026-03-06"].Seats)

	t.Run("Optimistic cache marks booked", func(t *testing.T) {
		days, err := engine.Calendar(ctx, "stu-1", marchRange(), models.StatusCache{"2026-03-03": true})
		require.NoError(t, err)
		assert.Equal(t, models.DateStatusBooked, calendarByDate(days)["2026-03-03"].Status)
	})

	t.Run("No allocation", func(t *testing.T) {
		days, err := engine.Calendar(ctx, "stu-9", marchRange(), nil)
		require.NoError(t, err)
		for _, d := range days {
			assert.Equal(t, models.DateStatusUnavailable, d.Status)
			assert.NotEmpty(t, d.Reason)
		}
	})
}

func TestBookingEngine_CommitFlow(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger(newSchedule("s-1", "2026-03-03", 40))
	ledger.allocate(allocation("stu-1"))
	engine := newTestEngine(ledger)

	schedule, decision, err := engine.Evaluate(ctx, "stu-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", schedule.ID)
	assert.True(t, decision.Allowed)

	req, err := engine.PrepareCommit(ctx, "stu-1", "s-1", "")
	require.NoError(t, err)
	assert.Equal(t, "route-1", req.RouteID)
	assert.Equal(t, "Main Gate", req.BoardingStop)
	assert.Equal(t, 150.0, req.Amount)

	first, err := engine.Commit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeConfirmed, first.Outcome)

	days, err := engine.Calendar(ctx, "stu-1", marchRange(), nil)
	require.NoError(t, err)
	day := calendarByDate(days)["2026-03-03"]
	assert.Equal(t, models.DateStatusBooked, day.Status)
	require.NotNil(t, day.Booking)
	assert.Equal(t, first.Booking.ID, day.Booking.ID)

	second, err := engine.Commit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyBooked, second.Outcome)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	released, err := engine.Release(ctx, "stu-1", first.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeReleased, released.Outcome)

	result, err := engine.Reconcile(ctx, "stu-1", marchRange(), models.StatusCache{"2026-03-03": true})
	require.NoError(t, err)
	assert.Equal(t, []models.DateChange{{Date: "2026-03-03", Was: true, Now: false}}, result.Diff)
}

func TestBookingEngine_Errors(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	engine := newTestEngine(ledger)

	_, _, err := engine.Evaluate(ctx, "stu-1", "missing")
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	_, err = engine.PrepareCommit(ctx, "stu-1", "missing", "")
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	_, err = engine.Release(ctx, "stu-1", "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestBookingEngine_CalendarSeveralSchedulesPerDate(t *testing.T) {
	ctx := context.Background()
	evening := newSchedule("s-pm", "2026-03-03", 40)
	evening.DepartureTime = "16:30:00"
	ledger := newFakeLedger(newSchedule("s-am", "2026-03-03", 40), evening)
	ledger.allocate(allocation("stu-1"))
	engine := newTestEngine(ledger)

	req, err := engine.PrepareCommit(ctx, "stu-1", "s-pm", "")
	require.NoError(t, err)
	committed, err := engine.Commit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeConfirmed, committed.Outcome)

	days, err := engine.Calendar(ctx, "stu-1", marchRange(), nil)
	require.NoError(t, err)
	day := calendarByDate(days)["2026-03-03"]
	assert.Equal(t, models.DateStatusBooked, day.Status)
	assert.Equal(t, "s-pm", day.ScheduleID)

	result, err := engine.Reconcile(ctx, "stu-1", marchRange(), models.StatusCache{"2026-03-03": true})
	require.NoError(t, err)
	assert.Empty(t, result.Diff)

	_, err = engine.Release(ctx, "stu-1", committed.Booking.ID)
	require.NoError(t, err)

	days, err = engine.Calendar(ctx, "stu-1", marchRange(), nil)
	require.NoError(t, err)
	day = calendarByDate(days)["2026-03-03"]
	assert.Equal(t, models.DateStatusAvailable, day.Status)
	assert.Equal(t, "s-am", day.ScheduleID)
}
