package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smarttransit/student-booking-engine/internal/database"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func mustDate(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

// newSchedule returns a bookable schedule on route-1
func newSchedule(id, date string, seats int) *models.ScheduleInstance {
	return &models.ScheduleInstance{
		ID:             id,
		RouteID:        "route-1",
		TripDate:       mustDate(date),
		DepartureTime:  "07:00:00",
		TotalSeats:     seats,
		BookedSeats:    0,
		AvailableSeats: seats,
		Status:         models.ScheduleStatusScheduled,
		AdminApproved:  true,
		BookingEnabled: true,
		Fare:           150,
	}
}

func allocation(studentID string) *models.StudentRouteAllocation {
	return &models.StudentRouteAllocation{
		StudentID:    studentID,
		RouteID:      "route-1",
		BoardingStop: "Main Gate",
		Active:       true,
	}
}

// fakeLedger is an in-memory ledger. Transactions are serialised by a mutex,
// which stands in for the schedule row lock; writes are staged and only
// published when the transaction function returns nil.
type fakeLedger struct {
	mu          sync.Mutex
	schedules   map[string]models.ScheduleInstance
	bookings    map[string]models.Booking
	allocations map[string]*models.StudentRouteAllocation

	// debitConflicts makes the next n debits match no row
	debitConflicts int
	// competingInsert simulates another tab committing the same booking first
	competingInsert bool
	// failWith is returned by LockSchedule when set
	failWith error

	transactions int
	seq          int
}

func newFakeLedger(schedules ...*models.ScheduleInstance) *fakeLedger {
	l := &fakeLedger{
		schedules:   map[string]models.ScheduleInstance{},
		bookings:    map[string]models.Booking{},
		allocations: map[string]*models.StudentRouteAllocation{},
	}
	for _, s := range schedules {
		l.schedules[s.ID] = *s
	}
	return l
}

func (l *fakeLedger) allocate(a *models.StudentRouteAllocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allocations[a.StudentID] = a
}

func (l *fakeLedger) schedule(id string) models.ScheduleInstance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.schedules[id]
}

func (l *fakeLedger) confirmedFor(scheduleID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, b := range l.bookings {
		if b.ScheduleID == scheduleID && b.Status == models.BookingStatusConfirmed {
			n++
		}
	}
	return n
}

func (l *fakeLedger) InTx(ctx context.Context, fn func(tx database.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions++

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &fakeTx{ledger: l, schedules: map[string]models.ScheduleInstance{}, bookings: map[string]models.Booking{}}
	for k, v := range l.schedules {
		tx.schedules[k] = v
	}
	for k, v := range l.bookings {
		tx.bookings[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}

	l.schedules = tx.schedules
	l.bookings = tx.bookings
	return nil
}

func (l *fakeLedger) GetStudentAllocation(ctx context.Context, studentID string) (*models.StudentRouteAllocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.allocations[studentID]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (l *fakeLedger) GetRouteSchedules(ctx context.Context, routeID, studentID string, from, to time.Time) ([]models.ScheduleInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey, toKey := from.Format(models.DateLayout), to.Format(models.DateLayout)
	out := []models.ScheduleInstance{}
	for _, s := range l.schedules {
		key := s.DateKey()
		if s.RouteID != routeID || key < fromKey || key > toKey {
			continue
		}
		s.MyBooking = l.ownBooking(s.ID, studentID)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateKey() != out[j].DateKey() {
			return out[i].DateKey() < out[j].DateKey()
		}
		return out[i].DepartureTime < out[j].DepartureTime
	})
	return out, nil
}

func (l *fakeLedger) GetScheduleForStudent(ctx context.Context, scheduleID, studentID string) (*models.ScheduleInstance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.schedules[scheduleID]
	if !ok {
		return nil, nil
	}
	s.MyBooking = l.ownBooking(scheduleID, studentID)
	return &s, nil
}

func (l *fakeLedger) ownBooking(scheduleID, studentID string) *models.Booking {
	for _, b := range l.bookings {
		if b.ScheduleID == scheduleID && b.StudentID == studentID && b.Status == models.BookingStatusConfirmed {
			copied := b
			return &copied
		}
	}
	return nil
}

type fakeTx struct {
	ledger    *fakeLedger
	schedules map[string]models.ScheduleInstance
	bookings  map[string]models.Booking
}

func (t *fakeTx) LockSchedule(ctx context.Context, scheduleID string) (*models.ScheduleInstance, error) {
	if t.ledger.failWith != nil {
		return nil, t.ledger.failWith
	}
	s, ok := t.schedules[scheduleID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *fakeTx) FindConfirmedBooking(ctx context.Context, studentID, scheduleID string) (*models.Booking, error) {
	for _, b := range t.bookings {
		if b.StudentID == studentID && b.ScheduleID == scheduleID && b.Status == models.BookingStatusConfirmed {
			copied := b
			return &copied, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if t.ledger.competingInsert {
		t.ledger.competingInsert = false
		t.ledger.seq++
		winner := *booking
		winner.ID = fmt.Sprintf("winner-%d", t.ledger.seq)
		winner.CreatedAt = testNow
		t.ledger.bookings[winner.ID] = winner
		return fmt.Errorf("failed to create booking: %w", database.ErrDuplicateBooking)
	}

	if existing, _ := t.FindConfirmedBooking(ctx, booking.StudentID, booking.ScheduleID); existing != nil {
		return fmt.Errorf("failed to create booking: %w", database.ErrDuplicateBooking)
	}
	booking.CreatedAt = testNow
	t.bookings[booking.ID] = *booking
	return nil
}

func (t *fakeTx) ConfirmedSeatLabels(ctx context.Context, scheduleID string) ([]string, error) {
	labels := []string{}
	for _, b := range t.bookings {
		if b.ScheduleID == scheduleID && b.Status == models.BookingStatusConfirmed {
			labels = append(labels, b.SeatLabel)
		}
	}
	return labels, nil
}

func (t *fakeTx) DebitSeat(ctx context.Context, scheduleID string) (bool, error) {
	if t.ledger.debitConflicts > 0 {
		t.ledger.debitConflicts--
		return false, nil
	}
	s, ok := t.schedules[scheduleID]
	if !ok || s.AvailableSeats <= 0 || s.BookedSeats >= s.TotalSeats {
		return false, nil
	}
	s.BookedSeats++
	s.AvailableSeats--
	t.schedules[scheduleID] = s
	return true, nil
}

func (t *fakeTx) LockBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, ok := t.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *fakeTx) MarkBookingCancelled(ctx context.Context, bookingID string) (bool, error) {
	b, ok := t.bookings[bookingID]
	if !ok || b.Status != models.BookingStatusConfirmed {
		return false, nil
	}
	now := testNow
	b.Status = models.BookingStatusCancelled
	b.CancelledAt = &now
	t.bookings[bookingID] = b
	return true, nil
}

func (t *fakeTx) CreditSeat(ctx context.Context, scheduleID string) (bool, error) {
	s, ok := t.schedules[scheduleID]
	if !ok || s.BookedSeats <= 0 {
		return false, nil
	}
	s.BookedSeats--
	if s.AvailableSeats < s.TotalSeats {
		s.AvailableSeats++
	}
	t.schedules[scheduleID] = s
	return true, nil
}

// sequentialIDs returns an id generator yielding booking-1, booking-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("booking-%d", n)
	}
}

var errLedgerDown = errors.New("connection refused")

func newTestEngine(ledger *fakeLedger) *BookingEngine {
	return NewBookingEngine(ledger, ledger, ledger, time.UTC,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(sequentialIDs()),
	)
}
