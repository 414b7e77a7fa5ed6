package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smarttransit/student-booking-engine/internal/models"
)

// ScheduleSource reads schedule instances joined with the student's own booking
type ScheduleSource interface {
	GetRouteSchedules(ctx context.Context, routeID, studentID string, from, to time.Time) ([]models.ScheduleInstance, error)
	GetScheduleForStudent(ctx context.Context, scheduleID, studentID string) (*models.ScheduleInstance, error)
}

// ReconciliationService heals a caller-held status cache against the ledger
type ReconciliationService struct {
	schedules   ScheduleSource
	allocations AllocationSource
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(schedules ScheduleSource, allocations AllocationSource) *ReconciliationService {
	return &ReconciliationService{schedules: schedules, allocations: allocations}
}

// Reconcile compares the client cache with the server's booking truth for every
// date in the range. The input cache is never modified.
func (s *ReconciliationService) Reconcile(
	ctx context.Context,
	studentID string,
	dateRange models.DateRange,
	clientCache models.StatusCache,
) (*models.ReconcileResult, error) {
	truth, err := s.ServerTruth(ctx, studentID, dateRange)
	if err != nil {
		return nil, err
	}
	return DiffStatusCache(dateRange, clientCache, truth), nil
}

// ServerTruth returns, for every date in the range, whether the student holds a
// confirmed booking on any schedule of that date
func (s *ReconciliationService) ServerTruth(
	ctx context.Context,
	studentID string,
	dateRange models.DateRange,
) (models.StatusCache, error) {
	truth := make(models.StatusCache)
	for _, date := range dateRange.Dates() {
		truth[date] = false
	}

	allocation, err := s.allocations.GetStudentAllocation(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if allocation == nil {
		return truth, nil
	}

	schedules, err := s.schedules.GetRouteSchedules(ctx, allocation.RouteID, studentID, dateRange.From, dateRange.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load server booking state: %w", err)
	}

	for i := range schedules {
		date := schedules[i].DateKey()
		if _, ok := truth[date]; !ok {
			continue
		}
		if models.HasConfirmedBooking(schedules[i].MyBooking) {
			truth[date] = true
		}
	}

	return truth, nil
}

// DiffStatusCache builds the corrected cache and the list of changed dates.
// In-range dates take the server value (a missing key counts as false);
// out-of-range keys are carried over untouched.
func DiffStatusCache(dateRange models.DateRange, clientCache, truth models.StatusCache) *models.ReconcileResult {
	corrected := clientCache.Clone()
	diff := []models.DateChange{}

	for _, date := range dateRange.Dates() {
		now := truth[date]
		was := clientCache[date]
		corrected[date] = now
		if was != now {
			diff = append(diff, models.DateChange{Date: date, Was: was, Now: now})
		}
	}

	sort.Slice(diff, func(i, j int) bool { return diff[i].Date < diff[j].Date })

	return &models.ReconcileResult{Corrected: corrected, Diff: diff}
}
