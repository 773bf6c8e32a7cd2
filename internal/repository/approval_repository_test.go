package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/models"
)

func newApprovalRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApprovalRepositoryApproveAbsence(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	sessionID := "session-1"
	request := &models.StudentRequest{
		ID:        "req-1",
		Type:      models.RequestTypeAbsence,
		StudentID: "student-1",
		ClassID:   "class-1",
		SessionID: &sessionID,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_sessions SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApproveAbsence(context.Background(), request, "admin-1", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryApproveAbsenceAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	sessionID := "session-1"
	request := &models.StudentRequest{
		ID:        "req-1",
		Type:      models.RequestTypeAbsence,
		StudentID: "student-1",
		SessionID: &sessionID,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApproveAbsence(context.Background(), request, "admin-1", nil, time.Now())
	require.True(t, errors.Is(err, ErrAlreadyDecided))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryApproveMakeupCapacityFull(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	sessionID := "session-1"
	makeupID := "session-2"
	request := &models.StudentRequest{
		ID:              "req-2",
		Type:            models.RequestTypeMakeup,
		StudentID:       "student-1",
		SessionID:       &sessionID,
		MakeupSessionID: &makeupID,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, capacity FROM sessions")).
		WithArgs(makeupID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity"}).AddRow(makeupID, 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_sessions")).
		WithArgs(makeupID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	err := repo.ApproveMakeup(context.Background(), request, "admin-1", nil, time.Now())
	require.True(t, errors.Is(err, ErrCapacityFull))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryApproveMakeupOverrideSkipsGuard(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	sessionID := "session-1"
	makeupID := "session-2"
	request := &models.StudentRequest{
		ID:               "req-3",
		Type:             models.RequestTypeMakeup,
		StudentID:        "student-1",
		SessionID:        &sessionID,
		MakeupSessionID:  &makeupID,
		CapacityOverride: true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, capacity FROM sessions")).
		WithArgs(makeupID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity"}).AddRow(makeupID, 10))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_makeup = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_sessions SET makeup_session_id")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApproveMakeup(context.Background(), request, "admin-1", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryApproveMakeupSameClassReusesRow(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	sessionID := "session-1"
	makeupID := "session-2"
	request := &models.StudentRequest{
		ID:              "req-5",
		Type:            models.RequestTypeMakeup,
		StudentID:       "student-1",
		SessionID:       &sessionID,
		MakeupSessionID: &makeupID,
	}

	// The student already holds an attendance row for the makeup session,
	// so approval flags it instead of inserting a second (student, session)
	// row that the timeline would double-count.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, capacity FROM sessions")).
		WithArgs(makeupID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity"}).AddRow(makeupID, 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_sessions")).
		WithArgs(makeupID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_makeup = TRUE")).
		WithArgs("student-1", makeupID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_sessions SET makeup_session_id")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApproveMakeup(context.Background(), request, "admin-1", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryApproveTransfer(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	targetClassID := "class-2"
	effectiveSessionID := "session-20"
	effectiveDate := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	request := &models.StudentRequest{
		ID:                 "req-4",
		Type:               models.RequestTypeTransfer,
		StudentID:          "student-1",
		ClassID:            "class-1",
		TargetClassID:      &targetClassID,
		EffectiveSessionID: &effectiveSessionID,
		EffectiveDate:      &effectiveDate,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, capacity FROM classes")).
		WithArgs(targetClassID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity"}).AddRow(targetClassID, 25))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments")).
		WithArgs(targetClassID, "ENROLLED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(20))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM sessions WHERE id")).
		WithArgs(effectiveSessionID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow(effectiveSessionID, 8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq FROM sessions")).
		WithArgs("class-1", effectiveDate, "CANCELLED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq"}).AddRow("session-10", 9))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_sessions ss SET is_transferred_out")).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 5))
	mock.ExpectCommit()

	err := repo.ApproveTransfer(context.Background(), request, "admin-1", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
