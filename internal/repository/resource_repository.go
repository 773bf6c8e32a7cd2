package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// ResourceRepository answers room and virtual resource availability queries.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// GetByID fetches a resource.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, branch_id, name, type, capacity, status, created_at, updated_at
	FROM resources WHERE id = $1`
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}

// FindAvailable returns ACTIVE resources in a branch with no non-cancelled
// session occupying the (date, time slot) pair. excludingSessionID lets a
// reschedule ignore the session being moved.
func (r *ResourceRepository) FindAvailable(ctx context.Context, branchID string, date time.Time, timeSlotID, excludingSessionID string) ([]models.Resource, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT r.id, r.branch_id, r.name, r.type, r.capacity, r.status, r.created_at, r.updated_at
	FROM resources r
	WHERE r.branch_id = $1 AND r.status = $2
	AND NOT EXISTS (
		SELECT 1 FROM sessions s
		WHERE s.resource_id = r.id AND s.date = $3 AND s.time_slot_id = $4 AND s.status <> $5`)
	args := []interface{}{branchID, models.ResourceStatusActive, date, timeSlotID, models.SessionStatusCancelled}
	if excludingSessionID != "" {
		args = append(args, excludingSessionID)
		builder.WriteString(fmt.Sprintf(" AND s.id <> $%d", len(args)))
	}
	builder.WriteString(`)
	ORDER BY r.name ASC`)

	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("find available resources: %w", err)
	}
	return resources, nil
}

// HasConflict reports whether any non-cancelled session already occupies the
// resource at the (date, time slot) pair.
func (r *ResourceRepository) HasConflict(ctx context.Context, resourceID string, date time.Time, timeSlotID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM sessions
	WHERE resource_id = $1 AND date = $2 AND time_slot_id = $3 AND status <> $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, resourceID, date, timeSlotID, models.SessionStatusCancelled); err != nil {
		return false, fmt.Errorf("check resource conflict: %w", err)
	}
	return exists, nil
}

// UpdateStatus flips a resource's scheduling status. Returns sql.ErrNoRows
// when the resource does not exist.
func (r *ResourceRepository) UpdateStatus(ctx context.Context, id string, status models.ResourceStatus) error {
	const query = `UPDATE resources SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update resource status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resource status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetTimeSlot fetches a time slot template.
func (r *ResourceRepository) GetTimeSlot(ctx context.Context, id string) (*models.TimeSlotTemplate, error) {
	const query = `SELECT id, branch_id, name, start_time, end_time, active, created_at
	FROM time_slot_templates WHERE id = $1`
	var slot models.TimeSlotTemplate
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// NextSlotUsage returns the earliest non-cancelled session scheduled on the
// time slot strictly after the given date and start time, or nil when the
// slot is no longer in use.
func (r *ResourceRepository) NextSlotUsage(ctx context.Context, timeSlotID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM sessions s
	JOIN time_slot_templates t ON t.id = s.time_slot_id
	WHERE s.time_slot_id = $1 AND s.status <> $2
	AND (s.date > $3 OR (s.date = $3 AND t.start_time > $4))
	ORDER BY s.date ASC, t.start_time ASC
	LIMIT 1`, sessionDetailColumns)
	var session models.SessionDetail
	err := r.db.GetContext(ctx, &session, query, timeSlotID, models.SessionStatusCancelled, fromDate, fromTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next slot usage: %w", err)
	}
	return &session, nil
}

// DeactivateTimeSlot flips a template's active flag off. Returns
// sql.ErrNoRows when the template does not exist.
func (r *ResourceRepository) DeactivateTimeSlot(ctx context.Context, id string) error {
	const query = `UPDATE time_slot_templates SET active = FALSE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate time slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate time slot: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// NextUsage returns the earliest non-cancelled session using the resource
// strictly after the given date and start time, or nil when the resource is
// free for the rest of the horizon.
func (r *ResourceRepository) NextUsage(ctx context.Context, resourceID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM sessions s
	JOIN time_slot_templates t ON t.id = s.time_slot_id
	WHERE s.resource_id = $1 AND s.status <> $2
	AND (s.date > $3 OR (s.date = $3 AND t.start_time > $4))
	ORDER BY s.date ASC, t.start_time ASC
	LIMIT 1`, sessionDetailColumns)
	var session models.SessionDetail
	err := r.db.GetContext(ctx, &session, query, resourceID, models.SessionStatusCancelled, fromDate, fromTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next resource usage: %w", err)
	}
	return &session, nil
}
