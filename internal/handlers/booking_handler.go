package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/student-booking-engine/internal/config"
	"github.com/smarttransit/student-booking-engine/internal/middleware"
	"github.com/smarttransit/student-booking-engine/internal/models"
	"github.com/smarttransit/student-booking-engine/internal/services"
)

// BookingEngine is the booking surface used by BookingHandler.
// *services.BookingEngine implements it.
type BookingEngine interface {
	Calendar(ctx context.Context, studentID string, dateRange models.DateRange, cache models.StatusCache) ([]models.CalendarDay, error)
	Evaluate(ctx context.Context, studentID, scheduleID string) (*models.ScheduleInstance, models.PolicyDecision, error)
	PrepareCommit(ctx context.Context, studentID, scheduleID, boardingStop string) (models.CommitRequest, error)
	Commit(ctx context.Context, req models.CommitRequest) (*models.BookingResult, error)
	Release(ctx context.Context, studentID, bookingID string) (*models.ReleaseResult, error)
	Reconcile(ctx context.Context, studentID string, dateRange models.DateRange, clientCache models.StatusCache) (*models.ReconcileResult, error)
}

// StatusStore persists each student's optimistic booking-status cache.
// *cache.StatusCacheStore implements it.
type StatusStore interface {
	Get(ctx context.Context, studentID string) (models.StatusCache, error)
	Set(ctx context.Context, studentID, date string, booked bool) error
	Merge(ctx context.Context, studentID string, cache models.StatusCache) error
}

// BookingHandler handles student booking endpoints
type BookingHandler struct {
	engine           BookingEngine
	statusStore      StatusStore
	auditor          BookingAuditor
	maxCalendarDays  int
	reconcileTimeout time.Duration
	logger           *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. statusStore may be nil, in
// which case only client-supplied caches are used.
func NewBookingHandler(
	engine BookingEngine,
	statusStore StatusStore,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		engine:           engine,
		statusStore:      statusStore,
		maxCalendarDays:  cfg.MaxCalendarDays,
		reconcileTimeout: cfg.ReconcileTimeout,
		logger:           logger,
	}
}

// DateRangeQuery is the query string of GET /bookings/calendar
type DateRangeQuery struct {
	From string `form:"from" binding:"required,isodate"`
	To   string `form:"to" binding:"required,isodate"`
}

// EvaluateRequest is the body of POST /bookings/evaluate
type EvaluateRequest struct {
	ScheduleID string `json:"schedule_id" binding:"required"`
}

// CommitBookingRequest is the body of POST /bookings
type CommitBookingRequest struct {
	ScheduleID   string `json:"schedule_id" binding:"required"`
	BoardingStop string `json:"boarding_stop"`
}

// ReconcileRequest is the body of POST /bookings/reconcile
type ReconcileRequest struct {
	From  string             `json:"from" binding:"required,isodate"`
	To    string             `json:"to" binding:"required,isodate"`
	Cache models.StatusCache `json:"cache"`
}

// CalendarResponse is returned by GET /bookings/calendar
type CalendarResponse struct {
	From string               `json:"from"`
	To   string               `json:"to"`
	Days []models.CalendarDay `json:"days"`
}

// EvaluateResponse is returned by POST /bookings/evaluate
type EvaluateResponse struct {
	ScheduleID string                `json:"schedule_id"`
	TripDate   string                `json:"trip_date"`
	Decision   models.PolicyDecision `json:"decision"`
}

// CommitResponse is returned by POST /bookings
type CommitResponse struct {
	Outcome  models.BookingOutcome  `json:"outcome"`
	Message  string                 `json:"message"`
	Booking  *models.Booking        `json:"booking,omitempty"`
	Decision *models.PolicyDecision `json:"decision,omitempty"`
}

// RegisterRoutes mounts the booking endpoints on an authenticated group.
// commitLimiter may be nil.
func (h *BookingHandler) RegisterRoutes(group *gin.RouterGroup, commitLimiter gin.HandlerFunc) {
	bookings := group.Group("/bookings")
	bookings.GET("/calendar", h.GetCalendar)
	bookings.POST("/evaluate", h.EvaluateBooking)
	bookings.POST("/reconcile", h.ReconcileStatus)
	bookings.DELETE("/:id", h.ReleaseBooking)

	if commitLimiter != nil {
		bookings.POST("", commitLimiter, h.CommitBooking)
	} else {
		bookings.POST("", h.CommitBooking)
	}
}

// ============================================================================
// CALENDAR - GET /api/v1/bookings/calendar
// ============================================================================

// GetCalendar classifies every date of the requested range for the caller
func (h *BookingHandler) GetCalendar(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", "MISSING_USER_CONTEXT")
		return
	}

	var query DateRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", validationMessage(err), "INVALID_REQUEST")
		return
	}

	dateRange, ok := h.parseRange(c, query.From, query.To)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	cache := h.storedCache(ctx, userCtx.StudentID)

	days, err := h.engine.Calendar(ctx, userCtx.StudentID, dateRange, cache)
	if err != nil {
		h.internalError(c, "Failed to load booking calendar", err)
		return
	}

	c.JSON(http.StatusOK, CalendarResponse{From: query.From, To: query.To, Days: days})
}

// ============================================================================
// EVALUATE - POST /api/v1/bookings/evaluate
// ============================================================================

// EvaluateBooking runs the booking policy for one schedule without booking
func (h *BookingHandler) EvaluateBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", "MISSING_USER_CONTEXT")
		return
	}

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", validationMessage(err), "INVALID_REQUEST")
		return
	}

	schedule, decision, err := h.engine.Evaluate(c.Request.Context(), userCtx.StudentID, req.ScheduleID)
	if err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "Trip not found", "SCHEDULE_NOT_FOUND")
			return
		}
		h.internalError(c, "Failed to evaluate booking", err)
		return
	}

	c.JSON(http.StatusOK, EvaluateResponse{
		ScheduleID: schedule.ID,
		TripDate:   schedule.DateKey(),
		Decision:   decision,
	})
}

// ============================================================================
// COMMIT - POST /api/v1/bookings
// ============================================================================

// CommitBooking reserves a seat on a schedule for the caller
func (h *BookingHandler) CommitBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", "MISSING_USER_CONTEXT")
		return
	}

	var req CommitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", validationMessage(err), "INVALID_REQUEST")
		return
	}

	ctx := c.Request.Context()
	commitReq, err := h.engine.PrepareCommit(ctx, userCtx.StudentID, req.ScheduleID, strings.TrimSpace(req.BoardingStop))
	if err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "Trip not found", "SCHEDULE_NOT_FOUND")
			return
		}
		h.internalError(c, "Failed to prepare booking", err)
		return
	}

	result, err := h.engine.Commit(ctx, commitReq)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRequest):
			respondError(c, http.StatusBadRequest, "validation_error", err.Error(), "INVALID_REQUEST")
		case errors.Is(err, services.ErrScheduleNotFound):
			respondError(c, http.StatusNotFound, "not_found", "Trip not found", "SCHEDULE_NOT_FOUND")
		default:
			h.internalError(c, "Failed to create booking", err)
		}
		return
	}

	logEntry := h.logger.WithFields(logrus.Fields{
		"student_id":  userCtx.StudentID,
		"schedule_id": commitReq.ScheduleID,
		"outcome":     result.Outcome,
		"attempts":    result.Attempts,
		"request_id":  middleware.GetRequestID(c),
	})

	h.safeLogCommit(c, userCtx.StudentID, commitReq.ScheduleID, result)

	resp := CommitResponse{
		Outcome:  result.Outcome,
		Booking:  result.Booking,
		Decision: result.Decision,
	}

	switch result.Outcome {
	case models.OutcomeConfirmed:
		h.rememberStatus(ctx, userCtx.StudentID, result.Booking.TripDate.Format(models.DateLayout), true)
		logEntry.WithField("booking_id", result.Booking.ID).Info("Booking confirmed")
		resp.Message = "Booking confirmed"
		c.JSON(http.StatusCreated, resp)

	case models.OutcomeAlreadyBooked:
		h.rememberStatus(ctx, userCtx.StudentID, result.Booking.TripDate.Format(models.DateLayout), true)
		logEntry.WithField("booking_id", result.Booking.ID).Info("Booking already exists")
		resp.Message = "You already have a booking for this trip"
		c.JSON(http.StatusOK, resp)

	case models.OutcomeDenied:
		resp.Message = "Booking not allowed"
		if first := result.Decision.First(); first != nil {
			resp.Message = first.Message
			logEntry = logEntry.WithField("reason", first.Reason)
		}
		logEntry.Info("Booking denied by policy")
		c.JSON(http.StatusUnprocessableEntity, resp)

	case models.OutcomeConflict:
		logEntry.Warn("Booking conflicted after retry")
		resp.Message = "The trip changed while booking, please try again"
		c.JSON(http.StatusConflict, resp)

	default:
		h.internalError(c, "Failed to create booking", errors.New("unknown booking outcome "+string(result.Outcome)))
	}
}

// ============================================================================
// RELEASE - DELETE /api/v1/bookings/:id
// ============================================================================

// ReleaseBooking cancels one of the caller's bookings
func (h *BookingHandler) ReleaseBooking(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", "MISSING_USER_CONTEXT")
		return
	}

	bookingID := strings.TrimSpace(c.Param("id"))
	if bookingID == "" {
		respondError(c, http.StatusBadRequest, "validation_error", "booking id is required", "INVALID_REQUEST")
		return
	}

	ctx := c.Request.Context()
	result, err := h.engine.Release(ctx, userCtx.StudentID, bookingID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookingNotFound):
			respondError(c, http.StatusNotFound, "not_found", "Booking not found", "BOOKING_NOT_FOUND")
		case errors.Is(err, services.ErrNotBookingOwner):
			respondError(c, http.StatusForbidden, "forbidden", "Booking belongs to another student", "NOT_BOOKING_OWNER")
		case errors.Is(err, services.ErrInvalidRequest):
			respondError(c, http.StatusBadRequest, "validation_error", err.Error(), "INVALID_REQUEST")
		default:
			h.internalError(c, "Failed to cancel booking", err)
		}
		return
	}

	h.refreshDateStatus(ctx, userCtx.StudentID, result.Booking.TripDate)
	h.safeLogRelease(c, userCtx.StudentID, result)

	h.logger.WithFields(logrus.Fields{
		"student_id": userCtx.StudentID,
		"booking_id": bookingID,
		"outcome":    result.Outcome,
		"request_id": middleware.GetRequestID(c),
	}).Info("Booking released")

	c.JSON(http.StatusOK, result)
}

// ============================================================================
// RECONCILE - POST /api/v1/bookings/reconcile
// ============================================================================

// ReconcileStatus heals the caller's optimistic status cache against the ledger
func (h *BookingHandler) ReconcileStatus(c *gin.Context) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", "MISSING_USER_CONTEXT")
		return
	}

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", validationMessage(err), "INVALID_REQUEST")
		return
	}

	dateRange, ok := h.parseRange(c, req.From, req.To)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if h.reconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.reconcileTimeout)
		defer cancel()
	}

	clientCache := req.Cache
	if clientCache == nil {
		clientCache = h.storedCache(ctx, userCtx.StudentID)
	}

	result, err := h.engine.Reconcile(ctx, userCtx.StudentID, dateRange, clientCache)
	if err != nil {
		// Drivers report a cancelled query in their own words; the context is authoritative
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			h.logger.WithFields(logrus.Fields{
				"student_id": userCtx.StudentID,
				"request_id": middleware.GetRequestID(c),
			}).Warn("Reconcile timed out")
			respondError(c, http.StatusGatewayTimeout, "timeout", "Reconciliation timed out", "RECONCILE_TIMEOUT")
			return
		}
		h.internalError(c, "Failed to reconcile booking status", err)
		return
	}

	if h.statusStore != nil {
		if err := h.statusStore.Merge(c.Request.Context(), userCtx.StudentID, result.Corrected); err != nil {
			h.logger.WithError(err).WithField("student_id", userCtx.StudentID).Warn("Failed to store reconciled status cache")
		}
	}

	if len(result.Diff) > 0 {
		h.logger.WithFields(logrus.Fields{
			"student_id": userCtx.StudentID,
			"changed":    len(result.Diff),
		}).Info("Status cache corrected")
	}

	c.JSON(http.StatusOK, result)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *BookingHandler) parseRange(c *gin.Context, from, to string) (models.DateRange, bool) {
	fromDate, err := time.Parse(models.DateLayout, from)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "from must be a date in YYYY-MM-DD format", "INVALID_REQUEST")
		return models.DateRange{}, false
	}
	toDate, err := time.Parse(models.DateLayout, to)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "to must be a date in YYYY-MM-DD format", "INVALID_REQUEST")
		return models.DateRange{}, false
	}

	dateRange := models.DateRange{From: fromDate, To: toDate}
	if err := dateRange.Validate(h.maxCalendarDays); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), "INVALID_DATE_RANGE")
		return models.DateRange{}, false
	}
	return dateRange, true
}

// storedCache returns the server-side cache, or nil when unavailable
func (h *BookingHandler) storedCache(ctx context.Context, studentID string) models.StatusCache {
	if h.statusStore == nil {
		return nil
	}
	cache, err := h.statusStore.Get(ctx, studentID)
	if err != nil {
		h.logger.WithError(err).WithField("student_id", studentID).Warn("Failed to read status cache")
		return nil
	}
	return cache
}

func (h *BookingHandler) rememberStatus(ctx context.Context, studentID, date string, booked bool) {
	if h.statusStore == nil {
		return
	}
	if err := h.statusStore.Set(ctx, studentID, date, booked); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"student_id": studentID,
			"date":       date,
		}).Warn("Failed to update status cache")
	}
}

// refreshDateStatus re-derives a date's cached status from the ledger, since the
// student may still hold another schedule on the same date
func (h *BookingHandler) refreshDateStatus(ctx context.Context, studentID string, tripDate time.Time) {
	if h.statusStore == nil {
		return
	}

	date := tripDate.Format(models.DateLayout)
	day, _ := time.Parse(models.DateLayout, date)

	booked := false
	result, err := h.engine.Reconcile(ctx, studentID, models.DateRange{From: day, To: day}, nil)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"student_id": studentID,
			"date":       date,
		}).Warn("Failed to re-read booking status after release")
	} else {
		booked = result.Corrected[date]
	}

	h.rememberStatus(ctx, studentID, date, booked)
}

func (h *BookingHandler) internalError(c *gin.Context, message string, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"student_id": c.GetString("student_id"),
		"request_id": middleware.GetRequestID(c),
	}).Error(message)
	respondError(c, http.StatusInternalServerError, "internal_error", message, "INTERNAL_ERROR")
}
