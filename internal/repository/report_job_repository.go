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

// ReportJobRepository persists async export job state.
type ReportJobRepository struct {
	db *sqlx.DB
}

// NewReportJobRepository constructs the repository.
func NewReportJobRepository(db *sqlx.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

const reportJobColumns = `id, student_id, class_id, format, status, progress, file_path, error_message,
       created_by, created_at, started_at, finished_at`

// Create inserts a queued job row.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs
	(id, student_id, class_id, format, status, progress, file_path, error_message, created_by, created_at, started_at, finished_at)
	VALUES (:id, :student_id, :class_id, :format, :status, :progress, :file_path, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier.
func (r *ReportJobRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportJobColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobParams groups the mutable job columns.
type UpdateJobParams struct {
	ID           string
	Status       models.ReportStatus
	Progress     *int
	FilePath     *string
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Update persists a job state transition.
func (r *ReportJobRepository) Update(ctx context.Context, params UpdateJobParams) error {
	setParts := []string{"status = :status"}
	if params.Progress != nil {
		setParts = append(setParts, "progress = :progress")
	}
	if params.FilePath != nil {
		setParts = append(setParts, "file_path = :file_path")
	}
	if params.ErrorMessage != nil {
		setParts = append(setParts, "error_message = :error_message")
	}
	if params.StartedAt != nil {
		setParts = append(setParts, "started_at = :started_at")
	}
	if params.FinishedAt != nil {
		setParts = append(setParts, "finished_at = :finished_at")
	}
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            params.ID,
		"status":        params.Status,
		"progress":      params.Progress,
		"file_path":     params.FilePath,
		"error_message": params.ErrorMessage,
		"started_at":    params.StartedAt,
		"finished_at":   params.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check report job update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListQueued returns jobs still waiting for a worker, oldest first. Used to
// replay the queue after a restart.
func (r *ReportJobRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM report_jobs
	WHERE status = $1
	ORDER BY created_at ASC
	LIMIT %d`, reportJobColumns, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusQueued); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns DONE and FAILED jobs finished before the cutoff,
// used by the file cleanup sweep.
func (r *ReportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs
	WHERE status IN ($1, $2) AND finished_at IS NOT NULL AND finished_at < $3
	ORDER BY finished_at ASC`, reportJobColumns)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusDone, models.ReportStatusFailed, cutoff); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
