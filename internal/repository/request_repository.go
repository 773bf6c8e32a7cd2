package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// RequestRepository persists student request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, type, status, student_id, class_id, target_class_id, session_id, makeup_session_id,
       effective_session_id, effective_date, reason, note, capacity_override, override_reason,
       submitted_by, decided_by, submitted_at, decided_at`

// Create inserts a new request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.StudentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_requests
	(id, type, status, student_id, class_id, target_class_id, session_id, makeup_session_id,
	 effective_session_id, effective_date, reason, note, capacity_override, override_reason,
	 submitted_by, decided_by, submitted_at, decided_at)
	VALUES (:id, :type, :status, :student_id, :class_id, :target_class_id, :session_id, :makeup_session_id,
	 :effective_session_id, :effective_date, :reason, :note, :capacity_override, :override_reason,
	 :submitted_by, :decided_by, :submitted_at, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.StudentRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_requests WHERE id = $1`, requestColumns)
	var request models.StudentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter (latest first).
func (r *RequestRepository) List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM student_requests", requestColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.StudentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requests, nil
}

// ExistsActive reports whether a PENDING or APPROVED request of the same type
// already targets the (student, session) pair. Used for duplicate detection.
func (r *RequestRepository) ExistsActive(ctx context.Context, studentID, sessionID string, requestType models.RequestType) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM student_requests
	WHERE student_id = $1 AND session_id = $2 AND type = $3 AND status IN ($4, $5))`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, studentID, sessionID, requestType,
		models.RequestStatusPending, models.RequestStatusApproved)
	if err != nil {
		return false, fmt.Errorf("check duplicate request: %w", err)
	}
	return exists, nil
}

// UpdateDecisionParams groups mutable columns for terminal transitions.
type UpdateDecisionParams struct {
	ID        string
	Status    models.RequestStatus
	DecidedBy *string
	DecidedAt time.Time
	Note      *string
}

// UpdateDecision persists a terminal transition. The WHERE clause guards on
// PENDING so concurrent deciders lose with sql.ErrNoRows.
func (r *RequestRepository) UpdateDecision(ctx context.Context, params UpdateDecisionParams) error {
	setParts := []string{
		"status = :status",
		"decided_by = :decided_by",
		"decided_at = :decided_at",
	}
	if params.Note != nil {
		setParts = append(setParts, "note = :note")
	}
	query := fmt.Sprintf("UPDATE student_requests SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.RequestStatusPending,
	)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         params.ID,
		"status":     params.Status,
		"decided_by": params.DecidedBy,
		"decided_at": params.DecidedAt,
		"note":       params.Note,
	})
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPendingBefore returns PENDING requests submitted before the cutoff.
// The PENDING-only selection makes the expiry sweep idempotent.
func (r *RequestRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StudentRequest, error) {
	if limit <= 0 {
		limit = 200
	}
	query := fmt.Sprintf(`SELECT %s FROM student_requests
	WHERE status = $1 AND submitted_at < $2
	ORDER BY submitted_at ASC
	LIMIT %d`, requestColumns, limit)
	var requests []models.StudentRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusPending, cutoff); err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}
