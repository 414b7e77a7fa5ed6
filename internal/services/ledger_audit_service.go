package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/student-booking-engine/internal/database"
)

// LedgerAuditor finds and repairs schedules whose seat counters drifted from
// their confirmed bookings
type LedgerAuditor interface {
	FindDriftedSchedules(ctx context.Context, since time.Time, limit int) ([]database.LedgerDrift, error)
	RepairCounters(ctx context.Context, scheduleID string) (bool, error)
}

// LedgerAuditReport summarises one audit run
type LedgerAuditReport struct {
	Checked  int      `json:"checked"`
	Repaired []string `json:"repaired"`
	Failed   []string `json:"failed"`
}

// LedgerAuditService recomputes seat counters from confirmed bookings
type LedgerAuditService struct {
	ledger    LedgerAuditor
	logger    *logrus.Logger
	lookback  time.Duration
	batchSize int
	now       func() time.Time
}

// NewLedgerAuditService creates a new LedgerAuditService. Only schedules whose
// trip date is within lookback of today or later are audited.
func NewLedgerAuditService(ledger LedgerAuditor, logger *logrus.Logger) *LedgerAuditService {
	return &LedgerAuditService{
		ledger:    ledger,
		logger:    logger,
		lookback:  7 * 24 * time.Hour,
		batchSize: 500,
		now:       time.Now,
	}
}

// Run audits one batch of drifted schedules and repairs each independently.
// A failed repair is reported and does not stop the run.
func (s *LedgerAuditService) Run(ctx context.Context) (*LedgerAuditReport, error) {
	since := s.now().Add(-s.lookback)

	drifts, err := s.ledger.FindDriftedSchedules(ctx, since, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to audit seat ledger: %w", err)
	}

	report := &LedgerAuditReport{Checked: len(drifts), Repaired: []string{}, Failed: []string{}}
	for _, drift := range drifts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entry := s.logger.WithFields(logrus.Fields{
			"schedule_id":     drift.ScheduleID,
			"total_seats":     drift.TotalSeats,
			"booked_seats":    drift.BookedSeats,
			"available_seats": drift.AvailableSeats,
			"confirmed":       drift.Confirmed,
		})

		repaired, err := s.ledger.RepairCounters(ctx, drift.ScheduleID)
		if err != nil {
			entry.WithError(err).Error("Failed to repair seat counters")
			report.Failed = append(report.Failed, drift.ScheduleID)
			continue
		}
		if !repaired {
			entry.Warn("Schedule disappeared before repair")
			continue
		}

		entry.Warn("Repaired drifted seat counters")
		report.Repaired = append(report.Repaired, drift.ScheduleID)
	}

	return report, nil
}
