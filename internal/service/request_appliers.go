package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/dto"
	"github.com/edubase/center-ops-api/internal/models"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

// typeValidator runs the per-type additions on top of the shared pipeline
// and fills the draft's type-specific fields.
type typeValidator func(ctx context.Context, sc *submitContext) error

// approvalApplier commits the side effects of approving one request type.
type approvalApplier func(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error

// submitContext carries the validated state through the pipeline.
type submitContext struct {
	payload  dto.SubmitRequestPayload
	session  *models.SessionDetail
	draft    *models.StudentRequest
	warnings []string
}

// runPipeline evaluates the shared checks strictly in order; the first
// failure wins. On success it returns the draft plus any advisory warnings.
func (s *RequestService) runPipeline(ctx context.Context, payload dto.SubmitRequestPayload, studentID string) (*submitContext, error) {
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	session, err := s.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.ClassID != payload.ClassID {
		return nil, appErrors.ErrSessionClassMismatch
	}

	today := truncateToDay(s.now())
	if truncateToDay(session.Date).Before(today) {
		return nil, appErrors.ErrPastSession
	}
	if session.Status != models.SessionStatusPlanned {
		return nil, appErrors.ErrInvalidSessionStatus
	}

	if _, err := s.enrollments.GetActive(ctx, studentID, payload.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if _, err := s.studentSessions.GetByStudentAndSession(ctx, studentID, payload.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotAssigned
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session assignment")
	}

	duplicate, err := s.requests.ExistsActive(ctx, studentID, payload.SessionID, payload.Type)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicates")
	}
	if duplicate {
		return nil, appErrors.ErrDuplicateRequest
	}

	sessionID := payload.SessionID
	sc := &submitContext{
		payload: payload,
		session: session,
		draft: &models.StudentRequest{
			Type:             payload.Type,
			Status:           models.RequestStatusPending,
			StudentID:        studentID,
			ClassID:          payload.ClassID,
			SessionID:        &sessionID,
			Reason:           payload.Reason,
			CapacityOverride: payload.CapacityOverride,
			OverrideReason:   optionalNote(payload.OverrideReason),
		},
	}

	validate := s.validators[payload.Type]
	if validate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
	if err := validate(ctx, sc); err != nil {
		return nil, err
	}

	s.attachWarnings(ctx, sc, studentID)
	return sc, nil
}

// validateAbsence has no checks beyond the shared pipeline.
func (s *RequestService) validateAbsence(_ context.Context, _ *submitContext) error {
	return nil
}

// validateMakeup checks the alternate session: distinct from the original,
// in a compatible class, still PLANNED and in the future, with a seat
// available (or an override).
func (s *RequestService) validateMakeup(ctx context.Context, sc *submitContext) error {
	if sc.payload.MakeupSessionID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "makeup_session_id is required")
	}
	if sc.payload.MakeupSessionID == sc.payload.SessionID {
		return appErrors.Clone(appErrors.ErrValidation, "makeup session must differ from the original session")
	}
	makeup, err := s.sessions.GetByID(ctx, sc.payload.MakeupSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "makeup session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load makeup session")
	}
	if makeup.ClassID != sc.session.ClassID {
		compatible, err := s.compatibleClasses(ctx, sc.session.ClassID, makeup.ClassID)
		if err != nil {
			return err
		}
		if !compatible {
			return appErrors.Clone(appErrors.ErrValidation, "makeup session belongs to an incompatible class")
		}
	}
	if makeup.Status != models.SessionStatusPlanned {
		return appErrors.ErrInvalidSessionStatus
	}
	if truncateToDay(makeup.Date).Before(truncateToDay(s.now())) {
		return appErrors.ErrPastSession
	}
	if _, err := s.capacity.CheckSession(ctx, makeup.ID, 1, sc.payload.CapacityOverride, sc.payload.OverrideReason); err != nil {
		return err
	}
	sc.draft.MakeupSessionID = &makeup.ID
	return nil
}

// validateTransfer checks the target class and pins the effective session:
// the first session in the target class on or after the effective date.
func (s *RequestService) validateTransfer(ctx context.Context, sc *submitContext) error {
	if sc.payload.TargetClassID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "target_class_id is required")
	}
	if sc.payload.TargetClassID == sc.payload.ClassID {
		return appErrors.Clone(appErrors.ErrValidation, "target class must differ from the current class")
	}
	if _, err := s.classes.GetByID(ctx, sc.payload.TargetClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "target class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target class")
	}

	effectiveDate, err := parseEffectiveDate(sc.payload.EffectiveDate)
	if err != nil {
		return err
	}

	if _, err := s.capacity.CheckClass(ctx, sc.payload.TargetClassID, 1, sc.payload.CapacityOverride, sc.payload.OverrideReason); err != nil {
		return err
	}

	effective, err := s.sessions.FirstOnOrAfter(ctx, sc.payload.TargetClassID, effectiveDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "no session in the target class on or after the effective date")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve effective session")
	}

	sc.draft.TargetClassID = &sc.payload.TargetClassID
	sc.draft.EffectiveSessionID = &effective.ID
	sc.draft.EffectiveDate = &effectiveDate
	return nil
}

// compatibleClasses reports whether a makeup may span the two classes: same
// subject within the same branch.
func (s *RequestService) compatibleClasses(ctx context.Context, classID, otherID string) (bool, error) {
	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	other, err := s.classes.GetByID(ctx, otherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "makeup class not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load makeup class")
	}
	return class.SubjectID == other.SubjectID && class.BranchID == other.BranchID, nil
}

// attachWarnings adds the advisory findings. Neither a short lead time nor a
// high absence rate blocks the submission.
func (s *RequestService) attachWarnings(ctx context.Context, sc *submitContext, studentID string) {
	if s.minLeadTime > 0 {
		start, err := sessionStart(sc.session)
		if err != nil {
			s.logger.Warn("session slot start unparseable, lead time measured from midnight",
				zap.String("sessionId", sc.session.ID), zap.Error(err))
		}
		if lead := start.Sub(s.now()); lead < s.minLeadTime {
			sc.warnings = append(sc.warnings,
				fmt.Sprintf("session starts in %s, below the recommended lead time of %s", lead.Round(time.Minute), s.minLeadTime))
		}
	}
	if s.absenceThreshold > 0 && s.timeline != nil {
		rate, err := s.timeline.AbsenceRate(ctx, studentID, sc.payload.ClassID)
		if err != nil {
			s.logger.Warn("absence rate lookup failed",
				zap.String("studentId", studentID), zap.String("classId", sc.payload.ClassID), zap.Error(err))
		} else if rate > s.absenceThreshold {
			sc.warnings = append(sc.warnings,
				fmt.Sprintf("student absence rate for this class is %.1f%%, above the %.1f%% threshold", rate, s.absenceThreshold))
		}
	}
}

// sessionStart combines the session date with its slot start time. On a
// malformed slot time it falls back to midnight of the session date and
// returns the parse error so callers can surface the bad row.
func sessionStart(session *models.SessionDetail) (time.Time, error) {
	t, err := time.Parse("15:04", session.StartTime)
	if err != nil {
		return session.Date, fmt.Errorf("parse slot start %q: %w", session.StartTime, err)
	}
	return time.Date(session.Date.Year(), session.Date.Month(), session.Date.Day(),
		t.Hour(), t.Minute(), 0, 0, session.Date.Location()), nil
}

func parseEffectiveDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "effective_date is required")
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "effective_date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}
