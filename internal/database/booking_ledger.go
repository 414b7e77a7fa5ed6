package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

// ErrDuplicateBooking is returned by InsertBooking when the student already holds
// a confirmed booking on the schedule (bookings_one_confirmed_per_student)
var ErrDuplicateBooking = errors.New("confirmed booking already exists for student and schedule")

const uniqueViolation = "23505"

const bookingColumns = `
	id, student_id, schedule_id, route_id, trip_date, boarding_stop,
	seat_label, amount, status, payment_status, created_at, cancelled_at`

// LedgerTx is the set of ledger operations available inside one transaction
type LedgerTx interface {
	// LockSchedule re-reads the schedule row under a row lock. Returns nil, nil if missing.
	LockSchedule(ctx context.Context, scheduleID string) (*models.ScheduleInstance, error)
	// FindConfirmedBooking returns the student's confirmed booking on the schedule, or nil
	FindConfirmedBooking(ctx context.Context, studentID, scheduleID string) (*models.Booking, error)
	// InsertBooking writes a new booking row and fills CreatedAt
	InsertBooking(ctx context.Context, booking *models.Booking) error
	// ConfirmedSeatLabels lists the seat labels held by confirmed bookings on the schedule
	ConfirmedSeatLabels(ctx context.Context, scheduleID string) ([]string, error)
	// DebitSeat books one seat; false when no seat was left to debit
	DebitSeat(ctx context.Context, scheduleID string) (bool, error)
	// LockBooking reads a booking under a row lock. Returns nil, nil if missing.
	LockBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	// MarkBookingCancelled cancels a confirmed booking; false if it was not confirmed
	MarkBookingCancelled(ctx context.Context, bookingID string) (bool, error)
	// CreditSeat returns one seat; false when the booked counter was already zero
	CreditSeat(ctx context.Context, scheduleID string) (bool, error)
}

// LedgerDrift is a schedule whose seat counters disagree with its confirmed bookings
type LedgerDrift struct {
	ScheduleID     string `json:"schedule_id" db:"id"`
	TotalSeats     int    `json:"total_seats" db:"total_seats"`
	BookedSeats    int    `json:"booked_seats" db:"booked_seats"`
	AvailableSeats int    `json:"available_seats" db:"available_seats"`
	Confirmed      int    `json:"confirmed" db:"confirmed"`
}

// BookingLedger is the authoritative store of bookings and seat counters
type BookingLedger struct {
	db *sqlx.DB
}

// NewBookingLedger creates a new BookingLedger
func NewBookingLedger(db *sqlx.DB) *BookingLedger {
	return &BookingLedger{db: db}
}

// InTx runs fn inside a database transaction. The transaction commits when fn
// returns nil and rolls back otherwise; fn's error is returned unchanged.
func (l *BookingLedger) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return l.inTx(ctx, func(tx *sqlLedgerTx) error { return fn(tx) })
}

func (l *BookingLedger) inTx(ctx context.Context, fn func(tx *sqlLedgerTx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindDriftedSchedules lists schedules on or after since whose counters do not
// match their confirmed bookings
func (l *BookingLedger) FindDriftedSchedules(ctx context.Context, since time.Time, limit int) ([]LedgerDrift, error) {
	query := `
		SELECT s.id, s.total_seats, s.booked_seats, s.available_seats,
		       COALESCE(c.confirmed, 0) AS confirmed
		FROM schedules s
		LEFT JOIN (
			SELECT schedule_id, COUNT(*) AS confirmed
			FROM bookings
			WHERE status = 'confirmed'
			GROUP BY schedule_id
		) c ON c.schedule_id = s.id
		WHERE s.trip_date >= $1
		  AND (s.booked_seats <> COALESCE(c.confirmed, 0)
		       OR s.booked_seats + s.available_seats <> s.total_seats)
		ORDER BY s.trip_date ASC
		LIMIT $2`

	drifts := []LedgerDrift{}
	if err := l.db.SelectContext(ctx, &drifts, query, since.Format(models.DateLayout), limit); err != nil {
		return nil, fmt.Errorf("failed to find drifted schedules: %w", err)
	}
	return drifts, nil
}

// RepairCounters recomputes a schedule's counters from its confirmed bookings.
// The schedule row is locked before counting so an in-flight commit on the same
// schedule finishes first and its booking is included in the count.
func (l *BookingLedger) RepairCounters(ctx context.Context, scheduleID string) (bool, error) {
	var repaired bool
	err := l.inTx(ctx, func(tx *sqlLedgerTx) error {
		schedule, err := tx.LockSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if schedule == nil {
			return nil
		}

		confirmed, err := tx.countConfirmed(ctx, scheduleID)
		if err != nil {
			return err
		}

		repaired, err = tx.setCounters(ctx, scheduleID, confirmed)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to repair schedule counters: %w", err)
	}
	return repaired, nil
}

// sqlLedgerTx implements LedgerTx on a sqlx transaction
type sqlLedgerTx struct {
	tx *sqlx.Tx
}

func (t *sqlLedgerTx) LockSchedule(ctx context.Context, scheduleID string) (*models.ScheduleInstance, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules s
		WHERE s.id = $1
		FOR UPDATE`

	schedule, err := scanSchedule(t.tx.QueryRowContext(ctx, query, scheduleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule: %w", err)
	}
	return schedule, nil
}

func (t *sqlLedgerTx) FindConfirmedBooking(ctx context.Context, studentID, scheduleID string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE student_id = $1 AND schedule_id = $2 AND status = 'confirmed'
		ORDER BY created_at ASC
		LIMIT 1`

	booking := &models.Booking{}
	err := t.tx.GetContext(ctx, booking, query, studentID, scheduleID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find confirmed booking: %w", err)
	}
	return booking, nil
}

func (t *sqlLedgerTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, student_id, schedule_id, route_id, trip_date, boarding_stop,
			seat_label, amount, status, payment_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING created_at`

	err := t.tx.QueryRowxContext(ctx, query,
		booking.ID, booking.StudentID, booking.ScheduleID, booking.RouteID,
		booking.TripDate.Format(models.DateLayout), booking.BoardingStop,
		booking.SeatLabel, booking.Amount, booking.Status, booking.PaymentStatus,
	).Scan(&booking.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create booking: %w", ErrDuplicateBooking)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (t *sqlLedgerTx) ConfirmedSeatLabels(ctx context.Context, scheduleID string) ([]string, error) {
	query := `
		SELECT seat_label
		FROM bookings
		WHERE schedule_id = $1 AND status = 'confirmed'`

	labels := []string{}
	if err := t.tx.SelectContext(ctx, &labels, query, scheduleID); err != nil {
		return nil, fmt.Errorf("failed to list seat labels: %w", err)
	}
	return labels, nil
}

func (t *sqlLedgerTx) DebitSeat(ctx context.Context, scheduleID string) (bool, error) {
	query := `
		UPDATE schedules
		SET booked_seats = booked_seats + 1,
		    available_seats = GREATEST(available_seats - 1, 0),
		    updated_at = NOW()
		WHERE id = $1
		  AND available_seats > 0
		  AND booked_seats < total_seats`

	result, err := t.tx.ExecContext(ctx, query, scheduleID)
	if err != nil {
		return false, fmt.Errorf("failed to debit seat: %w", err)
	}
	return affectedOne(result)
}

func (t *sqlLedgerTx) LockBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1
		FOR UPDATE`

	booking := &models.Booking{}
	err := t.tx.GetContext(ctx, booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return booking, nil
}

func (t *sqlLedgerTx) MarkBookingCancelled(ctx context.Context, bookingID string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled',
		    cancelled_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'`

	result, err := t.tx.ExecContext(ctx, query, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return affectedOne(result)
}

func (t *sqlLedgerTx) CreditSeat(ctx context.Context, scheduleID string) (bool, error) {
	query := `
		UPDATE schedules
		SET booked_seats = booked_seats - 1,
		    available_seats = LEAST(available_seats + 1, total_seats),
		    updated_at = NOW()
		WHERE id = $1
		  AND booked_seats > 0`

	result, err := t.tx.ExecContext(ctx, query, scheduleID)
	if err != nil {
		return false, fmt.Errorf("failed to credit seat: %w", err)
	}
	return affectedOne(result)
}

func (t *sqlLedgerTx) countConfirmed(ctx context.Context, scheduleID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE schedule_id = $1 AND status = 'confirmed'`

	var confirmed int
	if err := t.tx.GetContext(ctx, &confirmed, query, scheduleID); err != nil {
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	return confirmed, nil
}

func (t *sqlLedgerTx) setCounters(ctx context.Context, scheduleID string, confirmed int) (bool, error) {
	query := `
		UPDATE schedules
		SET booked_seats = LEAST($2, total_seats),
		    available_seats = GREATEST(total_seats - $2, 0),
		    updated_at = NOW()
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query, scheduleID, confirmed)
	if err != nil {
		return false, fmt.Errorf("failed to update schedule counters: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows > 0, nil
}

// isUniqueViolation recognises unique-constraint errors from both supported drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
