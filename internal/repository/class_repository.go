package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// ClassRepository provides read access to class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// GetByID fetches a class by identifier.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, branch_id, subject_id, capacity, status, created_at, updated_at
	FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}
