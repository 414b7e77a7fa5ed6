package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron         *cron.Cron
	auditSvc     *LedgerAuditService
	rateLimitSvc *RateLimitService
	auditLogSvc  *AuditService
	logger       *logrus.Logger
	auditSpec    string
	retention    time.Duration
	jobTimeout   time.Duration
}

// NewCronService creates a new CronService. A nil auditSvc leaves the ledger
// audit unscheduled.
func NewCronService(auditSvc *LedgerAuditService, rateLimitSvc *RateLimitService, auditSpec string, logger *logrus.Logger) *CronService {
	// Seconds precision: "second minute hour day month weekday"
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:         c,
		auditSvc:     auditSvc,
		rateLimitSvc: rateLimitSvc,
		logger:       logger,
		auditSpec:    auditSpec,
		jobTimeout:   10 * time.Minute,
	}
}

// EnableAuditLogCleanup purges booking audit rows older than retention once a
// day. Must be called before Start.
func (s *CronService) EnableAuditLogCleanup(auditLogSvc *AuditService, retention time.Duration) {
	s.auditLogSvc = auditLogSvc
	s.retention = retention
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Ledger audit, default "0 30 2 * * *" = at 2:30 AM every day
	if s.auditSvc != nil {
		if _, err := s.cron.AddFunc(s.auditSpec, s.ledgerAuditJob); err != nil {
			return fmt.Errorf("failed to schedule ledger audit job: %w", err)
		}
		s.logger.WithField("schedule", s.auditSpec).Info("Scheduled: Seat ledger audit")
	}

	// "0 */10 * * * *" = every 10 minutes
	if s.rateLimitSvc != nil {
		if _, err := s.cron.AddFunc("0 */10 * * * *", s.cleanupRateLimitersJob); err != nil {
			return fmt.Errorf("failed to schedule rate limiter cleanup job: %w", err)
		}
		s.logger.Info("Scheduled: Rate limiter cleanup (every 10 minutes)")
	}

	// "0 0 3 * * *" = at 3:00 AM every day
	if s.auditLogSvc != nil && s.retention > 0 {
		if _, err := s.cron.AddFunc("0 0 3 * * *", s.cleanupAuditLogsJob); err != nil {
			return fmt.Errorf("failed to schedule audit log cleanup job: %w", err)
		}
		s.logger.WithField("retention", s.retention.String()).Info("Scheduled: Audit log cleanup (daily at 3:00 AM)")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) ledgerAuditJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	if _, err := s.RunLedgerAuditNow(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Ledger audit failed")
	}
}

func (s *CronService) cleanupRateLimitersJob() {
	removed := s.rateLimitSvc.CleanupIdleLimiters()
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("[CRON] Evicted idle rate limiters")
	}
}

func (s *CronService) cleanupAuditLogsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	removed, err := s.auditLogSvc.CleanupOldAuditLogs(ctx, s.retention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit log cleanup failed")
		return
	}
	s.logger.WithField("removed", removed).Info("[CRON] Audit log cleanup finished")
}

// RunLedgerAuditNow runs the ledger audit immediately
func (s *CronService) RunLedgerAuditNow(ctx context.Context) (*LedgerAuditReport, error) {
	if s.auditSvc == nil {
		return nil, fmt.Errorf("ledger audit is disabled")
	}
	s.logger.Info("[CRON] Starting seat ledger audit...")
	startTime := time.Now()

	report, err := s.auditSvc.Run(ctx)
	if err != nil {
		return report, err
	}

	s.logger.WithFields(logrus.Fields{
		"checked":  report.Checked,
		"repaired": len(report.Repaired),
		"failed":   len(report.Failed),
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Seat ledger audit finished")

	return report, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
