package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type capacityClassStore interface {
	GetByID(ctx context.Context, id string) (*models.Class, error)
}

type capacityEnrollmentStore interface {
	CountActiveByClass(ctx context.Context, classID string) (int, error)
}

type capacitySessionStore interface {
	GetByID(ctx context.Context, id string) (*models.SessionDetail, error)
	CountAttendees(ctx context.Context, sessionID string) (int, error)
}

// CapacityCheck is the outcome of a capacity guard evaluation.
type CapacityCheck struct {
	Current         int  `json:"current"`
	Capacity        int  `json:"capacity"`
	OverrideApplied bool `json:"override_applied"`
}

// CapacityService guards class enrollment and session attendee head counts.
// Capacity is a soft policy limit: an explicit, reason-justified override may
// exceed it, unlike scheduling conflicts which never have an override path.
type CapacityService struct {
	classes     capacityClassStore
	enrollments capacityEnrollmentStore
	sessions    capacitySessionStore
	logger      *zap.Logger
}

// NewCapacityService constructs the service.
func NewCapacityService(classes capacityClassStore, enrollments capacityEnrollmentStore, sessions capacitySessionStore, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{classes: classes, enrollments: enrollments, sessions: sessions, logger: logger}
}

// CheckClass verifies that adding additional students to a class stays within
// its declared capacity, or that a justified override was requested.
func (s *CapacityService) CheckClass(ctx context.Context, classID string, additional int, override bool, overrideReason string) (*CapacityCheck, error) {
	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	current, err := s.enrollments.CountActiveByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return s.evaluate(current, class.Capacity, additional, override, overrideReason)
}

// CheckSession verifies that adding additional attendees to a session stays
// within its declared capacity, or that a justified override was requested.
func (s *CapacityService) CheckSession(ctx context.Context, sessionID string, additional int, override bool, overrideReason string) (*CapacityCheck, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	current, err := s.sessions.CountAttendees(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendees")
	}
	return s.evaluate(current, session.Capacity, additional, override, overrideReason)
}

func (s *CapacityService) evaluate(current, capacity, additional int, override bool, overrideReason string) (*CapacityCheck, error) {
	result := &CapacityCheck{Current: current, Capacity: capacity}
	if override {
		if strings.TrimSpace(overrideReason) == "" {
			return nil, appErrors.ErrOverrideReasonRequired
		}
		result.OverrideApplied = true
		return result, nil
	}
	if current+additional > capacity {
		return nil, appErrors.ErrCapacityExceeded
	}
	return result, nil
}
