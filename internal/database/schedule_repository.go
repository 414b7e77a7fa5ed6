package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

// scheduleColumns is the column list scanned by scanSchedule, in order
const scheduleColumns = `
	s.id, s.route_id, s.trip_date, s.departure_time, s.arrival_time,
	s.total_seats, s.booked_seats, s.available_seats, s.status,
	s.admin_approved, s.booking_enabled, s.booking_deadline, s.disabled_reason,
	s.booking_window_open, s.booking_available, s.unavailable_reason, s.fare`

// ownBookingColumns is the joined booking column list scanned by scanScheduleWithBooking
const ownBookingColumns = `
	b.id, b.student_id, b.schedule_id, b.route_id, b.trip_date, b.boarding_stop,
	b.seat_label, b.amount, b.status, b.payment_status, b.created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

// ScheduleRepository provides read access to schedule instances
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetRouteSchedules returns the schedule instances of a route between two dates
// (inclusive), each joined with the student's own confirmed booking when present
func (r *ScheduleRepository) GetRouteSchedules(
	ctx context.Context,
	routeID, studentID string,
	from, to time.Time,
) ([]models.ScheduleInstance, error) {
	query := `
		SELECT ` + scheduleColumns + `,` + ownBookingColumns + `
		FROM schedules s
		LEFT JOIN bookings b
		       ON b.schedule_id = s.id
		      AND b.student_id = $2
		      AND b.status = 'confirmed'
		WHERE s.route_id = $1
		  AND s.trip_date BETWEEN $3 AND $4
		ORDER BY s.trip_date ASC, s.departure_time ASC`

	rows, err := r.db.QueryContext(ctx, query, routeID, studentID,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query route schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.ScheduleInstance{}
	for rows.Next() {
		schedule, err := scanScheduleWithBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}

	return schedules, nil
}

// GetScheduleForStudent returns one schedule instance joined with the student's
// own confirmed booking. Returns nil, nil when the schedule does not exist.
func (r *ScheduleRepository) GetScheduleForStudent(ctx context.Context, scheduleID, studentID string) (*models.ScheduleInstance, error) {
	query := `
		SELECT ` + scheduleColumns + `,` + ownBookingColumns + `
		FROM schedules s
		LEFT JOIN bookings b
		       ON b.schedule_id = s.id
		      AND b.student_id = $2
		      AND b.status = 'confirmed'
		WHERE s.id = $1`

	schedule, err := scanScheduleWithBooking(r.db.QueryRowContext(ctx, query, scheduleID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return schedule, nil
}

// scanSchedule scans the scheduleColumns of a single row
func scanSchedule(row scanner) (*models.ScheduleInstance, error) {
	schedule := &models.ScheduleInstance{}
	dest, finish := scheduleScanTargets(schedule)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()

	return schedule, nil
}

// scanScheduleWithBooking scans scheduleColumns followed by ownBookingColumns
func scanScheduleWithBooking(row scanner) (*models.ScheduleInstance, error) {
	schedule := &models.ScheduleInstance{}
	dest, finish := scheduleScanTargets(schedule)

	var (
		bookingID     sql.NullString
		studentID     sql.NullString
		scheduleID    sql.NullString
		routeID       sql.NullString
		tripDate      sql.NullTime
		boardingStop  sql.NullString
		seatLabel     sql.NullString
		amount        sql.NullFloat64
		status        sql.NullString
		paymentStatus sql.NullString
		createdAt     sql.NullTime
	)
	dest = append(dest,
		&bookingID, &studentID, &scheduleID, &routeID, &tripDate, &boardingStop,
		&seatLabel, &amount, &status, &paymentStatus, &createdAt,
	)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()

	// A LEFT JOIN miss yields all-NULL booking columns; a row with no id is
	// not a booking and is dropped here.
	if bookingID.Valid && bookingID.String != "" {
		schedule.MyBooking = &models.Booking{
			ID:            bookingID.String,
			StudentID:     studentID.String,
			ScheduleID:    scheduleID.String,
			RouteID:       routeID.String,
			TripDate:      tripDate.Time,
			BoardingStop:  boardingStop.String,
			SeatLabel:     seatLabel.String,
			Amount:        amount.Float64,
			Status:        models.BookingStatus(status.String),
			PaymentStatus: models.PaymentStatus(paymentStatus.String),
			CreatedAt:     createdAt.Time,
		}
	}

	return schedule, nil
}

// scheduleScanTargets returns scan destinations for scheduleColumns and a
// function that copies nullable values into the schedule after Scan
func scheduleScanTargets(schedule *models.ScheduleInstance) ([]interface{}, func()) {
	var (
		arrivalTime       sql.NullString
		bookingDeadline   sql.NullTime
		disabledReason    sql.NullString
		bookingWindowOpen sql.NullBool
		bookingAvailable  sql.NullBool
		unavailableReason sql.NullString
	)

	dest := []interface{}{
		&schedule.ID, &schedule.RouteID, &schedule.TripDate, &schedule.DepartureTime, &arrivalTime,
		&schedule.TotalSeats, &schedule.BookedSeats, &schedule.AvailableSeats, &schedule.Status,
		&schedule.AdminApproved, &schedule.BookingEnabled, &bookingDeadline, &disabledReason,
		&bookingWindowOpen, &bookingAvailable, &unavailableReason, &schedule.Fare,
	}

	finish := func() {
		if arrivalTime.Valid {
			schedule.ArrivalTime = &arrivalTime.String
		}
		if bookingDeadline.Valid {
			schedule.BookingDeadline = &bookingDeadline.Time
		}
		if disabledReason.Valid {
			schedule.DisabledReason = &disabledReason.String
		}
		if bookingWindowOpen.Valid {
			schedule.BookingWindowOpen = &bookingWindowOpen.Bool
		}
		if bookingAvailable.Valid {
			schedule.BookingAvailable = &bookingAvailable.Bool
		}
		if unavailableReason.Valid {
			schedule.UnavailableReason = &unavailableReason.String
		}
	}

	return dest, finish
}
