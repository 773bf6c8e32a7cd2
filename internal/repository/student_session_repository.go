package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// StudentSessionRepository persists the student/session attendance join.
type StudentSessionRepository struct {
	db *sqlx.DB
}

// NewStudentSessionRepository constructs the repository.
func NewStudentSessionRepository(db *sqlx.DB) *StudentSessionRepository {
	return &StudentSessionRepository{db: db}
}

// GetByStudentAndSession fetches the row binding a student to a session.
func (r *StudentSessionRepository) GetByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.StudentSession, error) {
	const query = `SELECT id, student_id, session_id, status, is_transferred_out, is_makeup, makeup_session_id, created_at, updated_at
	FROM student_sessions WHERE student_id = $1 AND session_id = $2`
	var row models.StudentSession
	if err := r.db.GetContext(ctx, &row, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &row, nil
}

// ListRows returns attendance rows for a student joined with session fields.
// classID is optional; when empty all classes are returned.
func (r *StudentSessionRepository) ListRows(ctx context.Context, studentID, classID string) ([]models.AttendanceRow, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ss.id AS student_session_id, ss.student_id, ss.session_id, s.class_id,
       s.seq AS session_seq, s.date AS session_date, s.status AS session_status,
       ss.status, ss.is_transferred_out, ss.is_makeup
	FROM student_sessions ss
	JOIN sessions s ON s.id = ss.session_id
	WHERE ss.student_id = $1`)
	args := []interface{}{studentID}
	if classID != "" {
		args = append(args, classID)
		builder.WriteString(fmt.Sprintf(" AND s.class_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY s.class_id, s.seq ASC")

	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list attendance rows: %w", err)
	}
	return rows, nil
}
