package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/student-booking-engine/internal/models"
)

// AllocationRepository reads student route allocations
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository creates a new AllocationRepository
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// GetStudentAllocation returns the student's active allocation, or nil when the
// student is not allocated to any route
func (r *AllocationRepository) GetStudentAllocation(ctx context.Context, studentID string) (*models.StudentRouteAllocation, error) {
	query := `
		SELECT student_id, route_id, boarding_stop, active
		FROM student_route_allocations
		WHERE student_id = $1 AND active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1`

	allocation := &models.StudentRouteAllocation{}
	err := r.db.GetContext(ctx, allocation, query, studentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student allocation: %w", err)
	}

	return allocation, nil
}
