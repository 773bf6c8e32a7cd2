package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type enrollmentCountStub struct {
	counts map[string]int
}

func (s *enrollmentCountStub) CountActiveByClass(_ context.Context, classID string) (int, error) {
	return s.counts[classID], nil
}

type sessionCountStub struct {
	sessionsStub
	counts map[string]int
}

func (s *sessionCountStub) CountAttendees(_ context.Context, sessionID string) (int, error) {
	return s.counts[sessionID], nil
}

func newCapacityFixture() *CapacityService {
	classes := &classesStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Capacity: 10},
	}}
	enrollments := &enrollmentCountStub{counts: map[string]int{"class-1": 9}}
	sessions := &sessionCountStub{
		sessionsStub: sessionsStub{sessions: map[string]*models.SessionDetail{
			"session-1": {Session: models.Session{ID: "session-1", Capacity: 10}},
		}},
		counts: map[string]int{"session-1": 10},
	}
	return NewCapacityService(classes, enrollments, sessions, nil)
}

func TestCheckClassWithinCapacity(t *testing.T) {
	svc := newCapacityFixture()
	check, err := svc.CheckClass(context.Background(), "class-1", 1, false, "")
	require.NoError(t, err)
	require.Equal(t, 9, check.Current)
	require.Equal(t, 10, check.Capacity)
	require.False(t, check.OverrideApplied)
}

func TestCheckClassFull(t *testing.T) {
	svc := newCapacityFixture()
	_, err := svc.CheckClass(context.Background(), "class-1", 2, false, "")
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
}

func TestCheckSessionFull(t *testing.T) {
	svc := newCapacityFixture()
	_, err := svc.CheckSession(context.Background(), "session-1", 1, false, "")
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
}

func TestOverrideRequiresReason(t *testing.T) {
	svc := newCapacityFixture()
	// An override flag never succeeds on its own, even with seats free.
	_, err := svc.CheckClass(context.Background(), "class-1", 1, true, "")
	require.ErrorIs(t, err, appErrors.ErrOverrideReasonRequired)

	_, err = svc.CheckSession(context.Background(), "session-1", 1, true, "   ")
	require.ErrorIs(t, err, appErrors.ErrOverrideReasonRequired)
}

func TestOverrideWithReasonBypassesFullTarget(t *testing.T) {
	svc := newCapacityFixture()
	check, err := svc.CheckSession(context.Background(), "session-1", 1, true, "director approval")
	require.NoError(t, err)
	require.True(t, check.OverrideApplied)
	require.Equal(t, 10, check.Current)
}

func TestCheckClassNotFound(t *testing.T) {
	svc := newCapacityFixture()
	_, err := svc.CheckClass(context.Background(), "class-404", 1, false, "")
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}
