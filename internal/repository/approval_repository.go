package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edubase/center-ops-api/internal/models"
)

// Sentinel errors surfaced by approval transactions. Services map them onto
// the API error taxonomy.
var (
	ErrCapacityFull   = errors.New("capacity full")
	ErrAlreadyDecided = errors.New("request already decided")
)

// ApprovalRepository runs the transactional side effects of approving a
// request. Each method locks the capacity aggregate with SELECT ... FOR
// UPDATE, re-checks the guard, applies the mutation and flips the request to
// APPROVED inside a single transaction.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback approval tx: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approval tx: %w", err)
	}
	return nil
}

// markApproved flips the request to APPROVED with the PENDING guard. A zero
// row count means another decider or the expiry sweep got there first.
func (r *ApprovalRepository) markApproved(ctx context.Context, tx *sqlx.Tx, requestID, deciderID string, note *string, decidedAt time.Time) error {
	const query = `UPDATE student_requests
	SET status = $1, decided_by = $2, decided_at = $3, note = COALESCE($4, note)
	WHERE id = $5 AND status = $6`
	result, err := tx.ExecContext(ctx, query,
		models.RequestStatusApproved, deciderID, decidedAt, note, requestID, models.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("mark request approved: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request approval rows: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// ApproveAbsence approves an absence request and marks the linked attendance
// row EXCUSED.
func (r *ApprovalRepository) ApproveAbsence(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.markApproved(ctx, tx, request.ID, deciderID, note, decidedAt); err != nil {
			return err
		}
		const query = `UPDATE student_sessions SET status = $1, updated_at = NOW()
		WHERE student_id = $2 AND session_id = $3 AND is_transferred_out = FALSE`
		if _, err := tx.ExecContext(ctx, query, models.AttendanceExcused, request.StudentID, *request.SessionID); err != nil {
			return fmt.Errorf("excuse attendance row: %w", err)
		}
		return nil
	})
}

// ApproveMakeup approves a makeup request: locks the makeup session, re-checks
// its seat count against capacity, binds the student to the makeup session
// (reusing an existing attendance row when one is already there) and links the
// original attendance row to it. Override skips the capacity guard but never
// the lock.
func (r *ApprovalRepository) ApproveMakeup(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var makeup struct {
			ID       string `db:"id"`
			Capacity int    `db:"capacity"`
		}
		const lockQuery = `SELECT id, capacity FROM sessions WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &makeup, lockQuery, *request.MakeupSessionID); err != nil {
			return fmt.Errorf("lock makeup session: %w", err)
		}

		if !request.CapacityOverride {
			const countQuery = `SELECT COUNT(*) FROM student_sessions
			WHERE session_id = $1 AND is_transferred_out = FALSE`
			var attendees int
			if err := tx.GetContext(ctx, &attendees, countQuery, makeup.ID); err != nil {
				return fmt.Errorf("count makeup attendees: %w", err)
			}
			if attendees >= makeup.Capacity {
				return ErrCapacityFull
			}
		}

		if err := r.markApproved(ctx, tx, request.ID, deciderID, note, decidedAt); err != nil {
			return err
		}

		// A same-class makeup targets a session the student is already bound
		// to; flag that row instead of inserting a duplicate.
		const activateQuery = `UPDATE student_sessions
		SET is_makeup = TRUE, is_transferred_out = FALSE, updated_at = NOW()
		WHERE student_id = $1 AND session_id = $2`
		activated, err := tx.ExecContext(ctx, activateQuery, request.StudentID, makeup.ID)
		if err != nil {
			return fmt.Errorf("activate makeup session row: %w", err)
		}
		rows, err := activated.RowsAffected()
		if err != nil {
			return fmt.Errorf("check makeup activation rows: %w", err)
		}
		if rows == 0 {
			const insertQuery = `INSERT INTO student_sessions
			(id, student_id, session_id, status, is_transferred_out, is_makeup, makeup_session_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, TRUE, NULL, NOW(), NOW())`
			if _, err := tx.ExecContext(ctx, insertQuery,
				uuid.NewString(), request.StudentID, makeup.ID, models.AttendancePlanned); err != nil {
				return fmt.Errorf("bind student to makeup session: %w", err)
			}
		}

		const linkQuery = `UPDATE student_sessions SET makeup_session_id = $1, updated_at = NOW()
		WHERE student_id = $2 AND session_id = $3 AND is_transferred_out = FALSE`
		if _, err := tx.ExecContext(ctx, linkQuery, makeup.ID, request.StudentID, *request.SessionID); err != nil {
			return fmt.Errorf("link original session to makeup: %w", err)
		}
		return nil
	})
}

// ApproveTransfer approves a transfer: locks the target class, re-checks the
// enrolled head count against class capacity, closes the source enrollment at
// the effective session, flags the remaining source attendance rows as
// transferred out and seeds planned rows in the target class from the
// effective session onward.
func (r *ApprovalRepository) ApproveTransfer(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var target struct {
			ID       string `db:"id"`
			Capacity int    `db:"capacity"`
		}
		const lockQuery = `SELECT id, capacity FROM classes WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &target, lockQuery, *request.TargetClassID); err != nil {
			return fmt.Errorf("lock target class: %w", err)
		}

		if !request.CapacityOverride {
			const countQuery = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`
			var enrolled int
			if err := tx.GetContext(ctx, &enrolled, countQuery, target.ID, models.EnrollmentStatusEnrolled); err != nil {
				return fmt.Errorf("count target enrollments: %w", err)
			}
			if enrolled >= target.Capacity {
				return ErrCapacityFull
			}
		}

		if err := r.markApproved(ctx, tx, request.ID, deciderID, note, decidedAt); err != nil {
			return err
		}

		var effective struct {
			ID  string `db:"id"`
			Seq int    `db:"seq"`
		}
		const effectiveQuery = `SELECT id, seq FROM sessions WHERE id = $1`
		if err := tx.GetContext(ctx, &effective, effectiveQuery, *request.EffectiveSessionID); err != nil {
			return fmt.Errorf("load effective session: %w", err)
		}

		// The cut point in the source class is its first session on or after
		// the effective date. Everything before it stays on the timeline.
		var cut struct {
			ID  *string `db:"id"`
			Seq *int    `db:"seq"`
		}
		const cutQuery = `SELECT id, seq FROM sessions
		WHERE class_id = $1 AND date >= $2 AND status <> $3
		ORDER BY date ASC, seq ASC LIMIT 1`
		err := tx.GetContext(ctx, &cut, cutQuery, request.ClassID, *request.EffectiveDate, models.SessionStatusCancelled)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("resolve source cut session: %w", err)
		}

		const closeQuery = `UPDATE enrollments
		SET status = $1, left_session_id = $2, updated_at = NOW()
		WHERE student_id = $3 AND class_id = $4 AND status = $5`
		if _, err := tx.ExecContext(ctx, closeQuery,
			models.EnrollmentStatusTransferred, cut.ID, request.StudentID, request.ClassID,
			models.EnrollmentStatusEnrolled); err != nil {
			return fmt.Errorf("close source enrollment: %w", err)
		}

		if cut.Seq != nil {
			const flagQuery = `UPDATE student_sessions ss SET is_transferred_out = TRUE, updated_at = NOW()
			FROM sessions s
			WHERE s.id = ss.session_id AND ss.student_id = $1 AND s.class_id = $2 AND s.seq >= $3`
			if _, err := tx.ExecContext(ctx, flagQuery, request.StudentID, request.ClassID, *cut.Seq); err != nil {
				return fmt.Errorf("flag transferred attendance rows: %w", err)
			}
		}

		const enrollQuery = `INSERT INTO enrollments
		(id, student_id, class_id, status, join_session_id, left_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, NOW(), NOW())`
		if _, err := tx.ExecContext(ctx, enrollQuery,
			uuid.NewString(), request.StudentID, target.ID, models.EnrollmentStatusEnrolled, effective.ID); err != nil {
			return fmt.Errorf("create target enrollment: %w", err)
		}

		const seedQuery = `INSERT INTO student_sessions
		(id, student_id, session_id, status, is_transferred_out, is_makeup, makeup_session_id, created_at, updated_at)
		SELECT gen_random_uuid(), $1, s.id, $2, FALSE, FALSE, NULL, NOW(), NOW()
		FROM sessions s
		WHERE s.class_id = $3 AND s.seq >= $4 AND s.status <> $5
		AND NOT EXISTS (SELECT 1 FROM student_sessions e WHERE e.student_id = $1 AND e.session_id = s.id)`
		if _, err := tx.ExecContext(ctx, seedQuery,
			request.StudentID, models.AttendancePlanned, target.ID, effective.Seq,
			models.SessionStatusCancelled); err != nil {
			return fmt.Errorf("seed target attendance rows: %w", err)
		}
		return nil
	})
}
