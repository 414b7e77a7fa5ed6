package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/student-booking-engine/internal/middleware"
	"github.com/smarttransit/student-booking-engine/internal/models"
	"github.com/smarttransit/student-booking-engine/internal/services"
	"github.com/smarttransit/student-booking-engine/internal/utils"
)

// BookingAuditor records booking events. *services.AuditService implements it.
type BookingAuditor interface {
	LogBookingCommit(ctx context.Context, meta services.AuditMeta, scheduleID string, result *models.BookingResult) error
	LogBookingRelease(ctx context.Context, meta services.AuditMeta, result *models.ReleaseResult) error
}

// SetAuditor enables the booking audit trail
func (h *BookingHandler) SetAuditor(auditor BookingAuditor) {
	h.auditor = auditor
}

func auditMeta(c *gin.Context, studentID string) services.AuditMeta {
	return services.AuditMeta{
		StudentID: studentID,
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
		RequestID: middleware.GetRequestID(c),
	}
}

// Audit failures are logged and never fail the request

func (h *BookingHandler) safeLogCommit(c *gin.Context, studentID, scheduleID string, result *models.BookingResult) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.LogBookingCommit(c.Request.Context(), auditMeta(c, studentID), scheduleID, result); err != nil {
		h.logger.WithError(err).WithField("operation", "LogBookingCommit").Warn("Audit log failed")
	}
}

func (h *BookingHandler) safeLogRelease(c *gin.Context, studentID string, result *models.ReleaseResult) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.LogBookingRelease(c.Request.Context(), auditMeta(c, studentID), result); err != nil {
		h.logger.WithError(err).WithField("operation", "LogBookingRelease").Warn("Audit log failed")
	}
}
