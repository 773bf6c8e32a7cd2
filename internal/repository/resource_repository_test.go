package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newResourceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResourceRepositoryFindAvailable(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	repo := NewResourceRepository(db)
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "branch_id", "name", "type", "capacity", "status", "created_at", "updated_at"}).
		AddRow("room-1", "branch-1", "Room A", "ROOM", 20, "ACTIVE", time.Now(), time.Now()).
		AddRow("room-2", "branch-1", "Room B", "ROOM", 12, "ACTIVE", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.id, r.branch_id, r.name")).
		WithArgs("branch-1", "ACTIVE", date, "slot-1", "CANCELLED").
		WillReturnRows(rows)

	resources, err := repo.FindAvailable(context.Background(), "branch-1", date, "slot-1", "")
	require.NoError(t, err)
	require.Len(t, resources, 2)
	require.Equal(t, "Room A", resources[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryFindAvailableExcludesSession(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	repo := NewResourceRepository(db)
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND s.id <> $6")).
		WithArgs("branch-1", "ACTIVE", date, "slot-1", "CANCELLED", "session-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "branch_id", "name", "type", "capacity", "status", "created_at", "updated_at"}))

	resources, err := repo.FindAvailable(context.Background(), "branch-1", date, "slot-1", "session-9")
	require.NoError(t, err)
	require.Empty(t, resources)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryHasConflict(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	repo := NewResourceRepository(db)
	date := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("room-1", date, "slot-1", "CANCELLED").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	conflict, err := repo.HasConflict(context.Background(), "room-1", date, "slot-1")
	require.NoError(t, err)
	require.True(t, conflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryNextUsage(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	repo := NewResourceRepository(db)
	fromDate := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "class_id", "seq", "date", "status", "time_slot_id", "resource_id", "capacity", "created_at", "updated_at", "start_time", "end_time"}).
		AddRow("session-3", "class-2", 5, fromDate.AddDate(0, 0, 2), "PLANNED", "slot-2", "room-1", 20, time.Now(), time.Now(), "14:00", "15:30")
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.date ASC, t.start_time ASC")).
		WithArgs("room-1", "CANCELLED", fromDate, "10:00").
		WillReturnRows(rows)

	next, err := repo.NextUsage(context.Background(), "room-1", fromDate, "10:00")
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, "session-3", next.ID)
	require.Equal(t, "14:00", next.StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceRepositoryNextUsageNone(t *testing.T) {
	db, mock, cleanup := newResourceRepoMock(t)
	defer cleanup()

	repo := NewResourceRepository(db)
	fromDate := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.date ASC, t.start_time ASC")).
		WithArgs("room-9", "CANCELLED", fromDate, "10:00").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "seq", "date", "status", "time_slot_id", "resource_id", "capacity", "created_at", "updated_at", "start_time", "end_time"}))

	next, err := repo.NextUsage(context.Background(), "room-9", fromDate, "10:00")
	require.NoError(t, err)
	require.Nil(t, next)
	require.NoError(t, mock.ExpectationsWereMet())
}
