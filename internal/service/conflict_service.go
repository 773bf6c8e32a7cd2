package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type resourceConflictStore interface {
	FindAvailable(ctx context.Context, branchID string, date time.Time, timeSlotID, excludingSessionID string) ([]models.Resource, error)
	HasConflict(ctx context.Context, resourceID string, date time.Time, timeSlotID string) (bool, error)
	NextUsage(ctx context.Context, resourceID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.ResourceStatus) error
	GetTimeSlot(ctx context.Context, id string) (*models.TimeSlotTemplate, error)
	NextSlotUsage(ctx context.Context, timeSlotID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error)
	DeactivateTimeSlot(ctx context.Context, id string) error
}

// ConflictService answers scheduling conflict questions over session and
// resource bindings. A conflict is always a hard failure; there is no
// override path for a physical double-booking.
type ConflictService struct {
	resources resourceConflictStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewConflictService constructs the service.
func NewConflictService(resources resourceConflictStore, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{resources: resources, logger: logger, now: time.Now}
}

// FindAvailableResources returns ACTIVE resources in the branch with no
// other non-cancelled session on the same (date, time slot), ordered by name
// for deterministic display. excludingSessionID lets a session being edited
// see itself as available.
func (s *ConflictService) FindAvailableResources(ctx context.Context, branchID string, date time.Time, timeSlotID, excludingSessionID string) ([]models.Resource, error) {
	resources, err := s.resources.FindAvailable(ctx, branchID, date, timeSlotID, excludingSessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query available resources")
	}
	return resources, nil
}

// HasSchedulingConflict reports whether any non-cancelled session already
// binds the resource to that (date, time slot).
func (s *ConflictService) HasSchedulingConflict(ctx context.Context, resourceID string, date time.Time, timeSlotID string) (bool, error) {
	conflict, err := s.resources.HasConflict(ctx, resourceID, date, timeSlotID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check scheduling conflict")
	}
	return conflict, nil
}

// NextUsage returns the earliest non-cancelled session using the resource
// strictly after the given instant, or nil if none is scheduled. Callers use
// this to refuse deactivating a resource that is still in use.
func (s *ConflictService) NextUsage(ctx context.Context, resourceID string, fromDate time.Time, fromTime string) (*models.SessionDetail, error) {
	session, err := s.resources.NextUsage(ctx, resourceID, fromDate, fromTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve next resource usage")
	}
	return session, nil
}

// DeactivateResource marks a resource INACTIVE. A future non-cancelled
// session still bound to the resource blocks the change.
func (s *ConflictService) DeactivateResource(ctx context.Context, resourceID string) error {
	now := s.now().UTC()
	next, err := s.NextUsage(ctx, resourceID, now.Truncate(24*time.Hour), now.Format("15:04"))
	if err != nil {
		return err
	}
	if next != nil {
		s.logger.Info("resource deactivation refused",
			zap.String("resource_id", resourceID),
			zap.String("next_session_id", next.ID))
		return appErrors.Clone(appErrors.ErrSchedulingConflict,
			fmt.Sprintf("resource is scheduled for session %s on %s", next.ID, next.Date.Format("2006-01-02")))
	}
	if err := s.resources.UpdateStatus(ctx, resourceID, models.ResourceStatusInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate resource")
	}
	return nil
}

// DeactivateTimeSlot retires a time slot template. A future non-cancelled
// session still scheduled on the slot blocks the change.
func (s *ConflictService) DeactivateTimeSlot(ctx context.Context, timeSlotID string) error {
	slot, err := s.resources.GetTimeSlot(ctx, timeSlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot template")
	}
	if !slot.Active {
		return nil
	}
	now := s.now().UTC()
	next, err := s.resources.NextSlotUsage(ctx, timeSlotID, now.Truncate(24*time.Hour), now.Format("15:04"))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve next slot usage")
	}
	if next != nil {
		s.logger.Info("time slot deactivation refused",
			zap.String("time_slot_id", timeSlotID),
			zap.String("next_session_id", next.ID))
		return appErrors.Clone(appErrors.ErrSchedulingConflict,
			fmt.Sprintf("time slot %s is scheduled for session %s on %s", slot.Name, next.ID, next.Date.Format("2006-01-02")))
	}
	if err := s.resources.DeactivateTimeSlot(ctx, timeSlotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate time slot")
	}
	return nil
}
