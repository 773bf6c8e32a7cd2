package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// SessionRepository provides read access to scheduled sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionDetailColumns = `s.id, s.class_id, s.seq, s.date, s.status, s.time_slot_id, s.resource_id, s.capacity,
       s.created_at, s.updated_at, t.start_time, t.end_time`

// GetByID fetches a session with its time-slot timing.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM sessions s
	JOIN time_slot_templates t ON t.id = s.time_slot_id
	WHERE s.id = $1`, sessionDetailColumns)
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FirstOnOrAfter resolves the earliest non-cancelled session of a class on or
// after the given date. Used to pin a transfer's effective session.
func (r *SessionRepository) FirstOnOrAfter(ctx context.Context, classID string, date time.Time) (*models.SessionDetail, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM sessions s
	JOIN time_slot_templates t ON t.id = s.time_slot_id
	WHERE s.class_id = $1 AND s.date >= $2 AND s.status <> $3
	ORDER BY s.date ASC, s.seq ASC
	LIMIT 1`, sessionDetailColumns)
	var session models.SessionDetail
	if err := r.db.GetContext(ctx, &session, query, classID, date, models.SessionStatusCancelled); err != nil {
		return nil, err
	}
	return &session, nil
}

// CountAttendees returns the number of students bound to the session,
// excluding rows transferred out of the class.
func (r *SessionRepository) CountAttendees(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_sessions
	WHERE session_id = $1 AND is_transferred_out = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count session attendees: %w", err)
	}
	return count, nil
}
