package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/dto"
	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/internal/repository"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.StudentRequest) error
	GetByID(ctx context.Context, id string) (*models.StudentRequest, error)
	List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error)
	ExistsActive(ctx context.Context, studentID, sessionID string, requestType models.RequestType) (bool, error)
	UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error
}

type approvalStore interface {
	ApproveAbsence(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error
	ApproveMakeup(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error
	ApproveTransfer(ctx context.Context, request *models.StudentRequest, deciderID string, note *string, decidedAt time.Time) error
}

type studentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type requestSessionStore interface {
	GetByID(ctx context.Context, id string) (*models.SessionDetail, error)
	FirstOnOrAfter(ctx context.Context, classID string, date time.Time) (*models.SessionDetail, error)
}

type studentSessionReader interface {
	GetByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.StudentSession, error)
}

type activeEnrollmentReader interface {
	GetActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestService owns the student request lifecycle: the shared validation
// pipeline, per-type checks, the PENDING to terminal state machine and the
// side effects each approval carries.
type RequestService struct {
	requests        requestStore
	approvals       approvalStore
	students        studentReader
	users           userReader
	classes         classReader
	sessions        requestSessionStore
	studentSessions studentSessionReader
	enrollments     activeEnrollmentReader
	capacity        *CapacityService
	timeline        *TimelineService
	audit           auditLogger
	notifier        Notifier
	metrics         *MetricsService
	validate        *validator.Validate

	minLeadTime      time.Duration
	absenceThreshold float64

	validators map[models.RequestType]typeValidator
	appliers   map[models.RequestType]approvalApplier

	logger *zap.Logger
	now    func() time.Time
}

// RequestServiceDeps bundles the collaborators for construction.
type RequestServiceDeps struct {
	Requests        requestStore
	Approvals       approvalStore
	Students        studentReader
	Users           userReader
	Classes         classReader
	Sessions        requestSessionStore
	StudentSessions studentSessionReader
	Enrollments     activeEnrollmentReader
	Capacity        *CapacityService
	Timeline        *TimelineService
	Audit           auditLogger
	Notifier        Notifier
	Metrics         *MetricsService

	MinLeadTime      time.Duration
	AbsenceThreshold float64
	Logger           *zap.Logger
}

// NewRequestService constructs the service with the per-type validator and
// applier tables wired in.
func NewRequestService(deps RequestServiceDeps) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLoggingNotifier(logger)
	}
	svc := &RequestService{
		requests:         deps.Requests,
		approvals:        deps.Approvals,
		students:         deps.Students,
		users:            deps.Users,
		classes:          deps.Classes,
		sessions:         deps.Sessions,
		studentSessions:  deps.StudentSessions,
		enrollments:      deps.Enrollments,
		capacity:         deps.Capacity,
		timeline:         deps.Timeline,
		audit:            deps.Audit,
		notifier:         notifier,
		metrics:          deps.Metrics,
		validate:         validator.New(),
		minLeadTime:      deps.MinLeadTime,
		absenceThreshold: deps.AbsenceThreshold,
		logger:           logger,
		now:              time.Now,
	}
	svc.validators = map[models.RequestType]typeValidator{
		models.RequestTypeAbsence:  svc.validateAbsence,
		models.RequestTypeMakeup:   svc.validateMakeup,
		models.RequestTypeTransfer: svc.validateTransfer,
	}
	svc.appliers = map[models.RequestType]approvalApplier{
		models.RequestTypeAbsence:  svc.approvals.ApproveAbsence,
		models.RequestTypeMakeup:   svc.approvals.ApproveMakeup,
		models.RequestTypeTransfer: svc.approvals.ApproveTransfer,
	}
	return svc
}

// Submit runs the validation pipeline and persists a PENDING request. Staff
// submitting an ABSENCE on a student's behalf auto-approves it in the same
// call; every other combination waits for a decision. Lead-time and
// absence-rate findings come back as warnings, never failures.
func (s *RequestService) Submit(ctx context.Context, payload dto.SubmitRequestPayload, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !payload.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}

	studentID := payload.StudentID
	if actor.IsStudent() {
		if studentID != "" && studentID != actor.StudentID {
			return nil, appErrors.ErrAccessDenied
		}
		studentID = actor.StudentID
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	sc, err := s.runPipeline(ctx, payload, studentID)
	if err != nil {
		return nil, err
	}

	request := sc.draft
	request.SubmittedBy = actor.UserID
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	s.metrics.RecordRequestSubmitted(string(request.Type))
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestSubmit, request)

	// Staff-entered absences skip the decision step entirely: the absence is
	// taken at face value and the session is excused immediately.
	if request.Type == models.RequestTypeAbsence && !actor.IsStudent() {
		decidedAt := s.now().UTC()
		if err := s.approvals.ApproveAbsence(ctx, request, actor.UserID, nil, decidedAt); err != nil {
			return nil, s.mapApprovalError(err)
		}
		request.Status = models.RequestStatusApproved
		request.DecidedBy = &actor.UserID
		request.DecidedAt = &decidedAt
		s.metrics.RecordRequestDecided(string(models.RequestStatusApproved))
		s.afterTransition(ctx, actor.UserID, models.AuditActionRequestDecide, request)
	}

	return &dto.RequestSnapshot{Request: request, Warnings: sc.warnings}, nil
}

// Decide applies an approve or reject decision to a PENDING request.
// Approval re-runs the capacity guard inside the side-effect transaction; if
// it fails now, the request stays PENDING and the failure surfaces to the
// caller.
func (s *RequestService) Decide(ctx context.Context, requestID string, payload dto.DecideRequestPayload, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if _, err := s.users.GetByID(ctx, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deciding actor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deciding actor")
	}

	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.ErrInvalidStatus
	}

	note := optionalNote(payload.Note)
	decidedAt := s.now().UTC()

	switch payload.Decision {
	case "approve":
		applier := s.appliers[request.Type]
		if applier == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
		}
		if err := applier(ctx, request, actor.UserID, note, decidedAt); err != nil {
			return nil, s.mapApprovalError(err)
		}
		request.Status = models.RequestStatusApproved
	case "reject":
		err := s.requests.UpdateDecision(ctx, repository.UpdateDecisionParams{
			ID:        request.ID,
			Status:    models.RequestStatusRejected,
			DecidedBy: &actor.UserID,
			DecidedAt: decidedAt,
			Note:      note,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrInvalidStatus
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject request")
		}
		request.Status = models.RequestStatusRejected
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject")
	}

	request.DecidedBy = &actor.UserID
	request.DecidedAt = &decidedAt
	if note != nil {
		request.Note = note
	}
	s.metrics.RecordRequestDecided(string(request.Status))
	s.afterTransition(ctx, actor.UserID, models.AuditActionRequestDecide, request)
	return &dto.RequestSnapshot{Request: request}, nil
}

// Cancel withdraws a PENDING request. Only the owning student may cancel.
func (s *RequestService) Cancel(ctx context.Context, requestID string, actor *models.JWTClaims) (*dto.RequestSnapshot, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.ActsFor(request.StudentID) {
		return nil, appErrors.ErrAccessDenied
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.ErrInvalidStatus
	}

	decidedAt := s.now().UTC()
	err = s.requests.UpdateDecision(ctx, repository.UpdateDecisionParams{
		ID:        request.ID,
		Status:    models.RequestStatusCancelled,
		DecidedBy: &actor.UserID,
		DecidedAt: decidedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidStatus
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}
	request.Status = models.RequestStatusCancelled
	request.DecidedBy = &actor.UserID
	request.DecidedAt = &decidedAt
	s.metrics.RecordRequestDecided(string(models.RequestStatusCancelled))
	s.emitAudit(ctx, actor.UserID, models.AuditActionRequestCancel, request)
	return &dto.RequestSnapshot{Request: request}, nil
}

// List returns requests visible to the actor. Students are always scoped to
// their own record.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.StudentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.StudentRequestFilter{
		Status:    query.Status,
		Type:      query.Type,
		StudentID: query.StudentID,
		ClassID:   query.ClassID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if actor.IsStudent() {
		filter.StudentID = actor.StudentID
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// Get returns one request, enforcing student scoping.
func (s *RequestService) Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.IsStudent() && !actor.ActsFor(request.StudentID) {
		return nil, appErrors.ErrAccessDenied
	}
	return request, nil
}

func (s *RequestService) loadRequest(ctx context.Context, requestID string) (*models.StudentRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) mapApprovalError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCapacityFull):
		return appErrors.ErrCapacityExceeded
	case errors.Is(err, repository.ErrAlreadyDecided):
		return appErrors.ErrInvalidStatus
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply approval")
	}
}

// afterTransition fans out the post-commit effects of a terminal transition:
// audit, notification and overview cache invalidation. None of them can undo
// the transition.
func (s *RequestService) afterTransition(ctx context.Context, actorID, action string, request *models.StudentRequest) {
	s.emitAudit(ctx, actorID, action, request)
	if request.Status == models.RequestStatusApproved {
		s.timeline.InvalidateOverview(ctx, request.StudentID)
	}
	if err := s.notifier.NotifyRequestDecided(ctx, request); err != nil {
		s.logger.Warn("request notification failed",
			zap.String("requestId", request.ID), zap.Error(err))
	}
}

func (s *RequestService) emitAudit(ctx context.Context, actorID, action string, request *models.StudentRequest) {
	if s.audit == nil || request == nil {
		return
	}
	payload, err := json.Marshal(request)
	if err != nil {
		payload = []byte("{}")
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "student_request",
		ResourceID: &request.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "request-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func optionalNote(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
