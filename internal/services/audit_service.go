package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/student-booking-engine/internal/models"
	"github.com/smarttransit/student-booking-engine/internal/utils"
)

// AuditService records booking events in the audit_logs table
type AuditService struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(db *sqlx.DB) *AuditService {
	return &AuditService{
		db:  db,
		now: time.Now,
	}
}

// AuditMeta identifies who triggered an event and from where
type AuditMeta struct {
	StudentID string
	IPAddress string
	UserAgent string
	RequestID string
}

// AuditEvent represents a booking event to be logged
type AuditEvent struct {
	StudentID  string
	Action     string // e.g. "booking_commit", "booking_release"
	EntityType string // "schedule" or "booking"
	EntityID   string
	IPAddress  string
	UserAgent  string
	Details    map[string]interface{}
}

// LogBookingCommit logs the outcome of a commit attempt
func (s *AuditService) LogBookingCommit(ctx context.Context, meta AuditMeta, scheduleID string, result *models.BookingResult) error {
	details := map[string]interface{}{
		"outcome":     result.Outcome,
		"attempts":    result.Attempts,
		"device_info": utils.ParseClientDevice(meta.UserAgent),
		"request_id":  meta.RequestID,
	}
	if result.Booking != nil {
		details["booking_id"] = result.Booking.ID
		details["seat_label"] = result.Booking.SeatLabel
		details["trip_date"] = result.Booking.TripDate.Format(models.DateLayout)
	}
	if result.Decision != nil {
		reasons := make([]models.DenyReason, 0, len(result.Decision.Denials))
		for _, denial := range result.Decision.Denials {
			reasons = append(reasons, denial.Reason)
		}
		details["denials"] = reasons
	}

	return s.logEvent(ctx, AuditEvent{
		StudentID:  meta.StudentID,
		Action:     "booking_commit_" + string(result.Outcome),
		EntityType: "schedule",
		EntityID:   scheduleID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// LogBookingRelease logs a cancellation
func (s *AuditService) LogBookingRelease(ctx context.Context, meta AuditMeta, result *models.ReleaseResult) error {
	details := map[string]interface{}{
		"outcome":     result.Outcome,
		"schedule_id": result.Booking.ScheduleID,
		"trip_date":   result.Booking.TripDate.Format(models.DateLayout),
		"device_info": utils.ParseClientDevice(meta.UserAgent),
		"request_id":  meta.RequestID,
	}

	return s.logEvent(ctx, AuditEvent{
		StudentID:  meta.StudentID,
		Action:     "booking_release_" + string(result.Outcome),
		EntityType: "booking",
		EntityID:   result.Booking.ID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details:    details,
	})
}

// logEvent writes one row to the audit_logs table
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (student_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.StudentID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.IPAddress,
		event.UserAgent,
		string(details),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := s.now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
