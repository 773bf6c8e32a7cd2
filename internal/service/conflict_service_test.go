package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type resourceConflictStub struct {
	available []models.Resource
	conflicts map[string]bool
	next      map[string]*models.SessionDetail
	statuses  map[string]models.ResourceStatus
	slots     map[string]*models.TimeSlotTemplate
	slotNext  map[string]*models.SessionDetail
}

func (s *resourceConflictStub) FindAvailable(_ context.Context, _ string, _ time.Time, _, _ string) ([]models.Resource, error) {
	return s.available, nil
}

func (s *resourceConflictStub) HasConflict(_ context.Context, resourceID string, _ time.Time, _ string) (bool, error) {
	return s.conflicts[resourceID], nil
}

func (s *resourceConflictStub) NextUsage(_ context.Context, resourceID string, _ time.Time, _ string) (*models.SessionDetail, error) {
	return s.next[resourceID], nil
}

func (s *resourceConflictStub) UpdateStatus(_ context.Context, id string, status models.ResourceStatus) error {
	if _, ok := s.statuses[id]; !ok {
		return sql.ErrNoRows
	}
	s.statuses[id] = status
	return nil
}

func (s *resourceConflictStub) GetTimeSlot(_ context.Context, id string) (*models.TimeSlotTemplate, error) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return slot, nil
}

func (s *resourceConflictStub) NextSlotUsage(_ context.Context, timeSlotID string, _ time.Time, _ string) (*models.SessionDetail, error) {
	return s.slotNext[timeSlotID], nil
}

func (s *resourceConflictStub) DeactivateTimeSlot(_ context.Context, id string) error {
	slot, ok := s.slots[id]
	if !ok {
		return sql.ErrNoRows
	}
	slot.Active = false
	return nil
}

func newConflictFixture(stub *resourceConflictStub) *ConflictService {
	svc := NewConflictService(stub, nil)
	svc.now = func() time.Time {
		return time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestDeactivateFreeResource(t *testing.T) {
	stub := &resourceConflictStub{
		next:     map[string]*models.SessionDetail{},
		statuses: map[string]models.ResourceStatus{"res-1": models.ResourceStatusActive},
	}
	svc := newConflictFixture(stub)

	require.NoError(t, svc.DeactivateResource(context.Background(), "res-1"))
	require.Equal(t, models.ResourceStatusInactive, stub.statuses["res-1"])
}

func TestDeactivateResourceStillScheduled(t *testing.T) {
	stub := &resourceConflictStub{
		next: map[string]*models.SessionDetail{
			"res-1": {
				Session: models.Session{
					ID:   "sess-9",
					Date: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
				},
				StartTime: "09:00",
			},
		},
		statuses: map[string]models.ResourceStatus{"res-1": models.ResourceStatusActive},
	}
	svc := newConflictFixture(stub)

	err := svc.DeactivateResource(context.Background(), "res-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSchedulingConflict.Code, appErrors.FromError(err).Code)
	require.Equal(t, models.ResourceStatusActive, stub.statuses["res-1"])
}

func TestDeactivateUnknownResource(t *testing.T) {
	stub := &resourceConflictStub{
		next:     map[string]*models.SessionDetail{},
		statuses: map[string]models.ResourceStatus{},
	}
	svc := newConflictFixture(stub)

	err := svc.DeactivateResource(context.Background(), "res-missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeactivateFreeTimeSlot(t *testing.T) {
	stub := &resourceConflictStub{
		slots: map[string]*models.TimeSlotTemplate{
			"slot-1": {ID: "slot-1", Name: "Morning A", StartTime: "08:00", EndTime: "09:30", Active: true},
		},
		slotNext: map[string]*models.SessionDetail{},
	}
	svc := newConflictFixture(stub)

	require.NoError(t, svc.DeactivateTimeSlot(context.Background(), "slot-1"))
	require.False(t, stub.slots["slot-1"].Active)
}

func TestDeactivateTimeSlotStillScheduled(t *testing.T) {
	stub := &resourceConflictStub{
		slots: map[string]*models.TimeSlotTemplate{
			"slot-1": {ID: "slot-1", Name: "Morning A", StartTime: "08:00", EndTime: "09:30", Active: true},
		},
		slotNext: map[string]*models.SessionDetail{
			"slot-1": {
				Session: models.Session{
					ID:   "sess-3",
					Date: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
				},
				StartTime: "08:00",
			},
		},
	}
	svc := newConflictFixture(stub)

	err := svc.DeactivateTimeSlot(context.Background(), "slot-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrSchedulingConflict.Code, appErrors.FromError(err).Code)
	require.True(t, stub.slots["slot-1"].Active)
}

func TestDeactivateTimeSlotAlreadyInactive(t *testing.T) {
	stub := &resourceConflictStub{
		slots: map[string]*models.TimeSlotTemplate{
			"slot-1": {ID: "slot-1", Name: "Morning A", Active: false},
		},
		slotNext: map[string]*models.SessionDetail{},
	}
	svc := newConflictFixture(stub)

	require.NoError(t, svc.DeactivateTimeSlot(context.Background(), "slot-1"))
}

func TestDeactivateUnknownTimeSlot(t *testing.T) {
	stub := &resourceConflictStub{slots: map[string]*models.TimeSlotTemplate{}}
	svc := newConflictFixture(stub)

	err := svc.DeactivateTimeSlot(context.Background(), "slot-missing")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHasSchedulingConflict(t *testing.T) {
	stub := &resourceConflictStub{conflicts: map[string]bool{"res-1": true}}
	svc := newConflictFixture(stub)

	conflict, err := svc.HasSchedulingConflict(context.Background(), "res-1", time.Now(), "slot-1")
	require.NoError(t, err)
	require.True(t, conflict)

	conflict, err = svc.HasSchedulingConflict(context.Background(), "res-2", time.Now(), "slot-1")
	require.NoError(t, err)
	require.False(t, conflict)
}
