package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/dto"
	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/internal/repository"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type requestRepoStub struct {
	requests map[string]*models.StudentRequest
	active   map[string]bool
	created  []*models.StudentRequest
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{
		requests: map[string]*models.StudentRequest{},
		active:   map[string]bool{},
	}
}

func (s *requestRepoStub) Create(_ context.Context, request *models.StudentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	s.requests[request.ID] = request
	s.created = append(s.created, request)
	return nil
}

func (s *requestRepoStub) GetByID(_ context.Context, id string) (*models.StudentRequest, error) {
	if request, ok := s.requests[id]; ok {
		copied := *request
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestRepoStub) List(_ context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	out := make([]models.StudentRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if filter.StudentID != "" && request.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *request)
	}
	return out, nil
}

func (s *requestRepoStub) ExistsActive(_ context.Context, studentID, sessionID string, requestType models.RequestType) (bool, error) {
	return s.active[studentID+"|"+sessionID+"|"+string(requestType)], nil
}

func (s *requestRepoStub) UpdateDecision(_ context.Context, params repository.UpdateDecisionParams) error {
	request, ok := s.requests[params.ID]
	if !ok || request.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.DecidedBy = params.DecidedBy
	decidedAt := params.DecidedAt
	request.DecidedAt = &decidedAt
	if params.Note != nil {
		request.Note = params.Note
	}
	return nil
}

type approvalStub struct {
	absenceCalls  int
	makeupCalls   int
	transferCalls int
	err           error
}

func (s *approvalStub) ApproveAbsence(_ context.Context, _ *models.StudentRequest, _ string, _ *string, _ time.Time) error {
	s.absenceCalls++
	return s.err
}

func (s *approvalStub) ApproveMakeup(_ context.Context, _ *models.StudentRequest, _ string, _ *string, _ time.Time) error {
	s.makeupCalls++
	return s.err
}

func (s *approvalStub) ApproveTransfer(_ context.Context, _ *models.StudentRequest, _ string, _ *string, _ time.Time) error {
	s.transferCalls++
	return s.err
}

type studentsStub struct {
	students map[string]*models.Student
}

func (s *studentsStub) GetByID(_ context.Context, id string) (*models.Student, error) {
	if student, ok := s.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

type usersStub struct {
	users map[string]*models.User
}

func (s *usersStub) GetByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type requestSessionsStub struct {
	sessions map[string]*models.SessionDetail
	upcoming map[string]*models.SessionDetail
	counts   map[string]int
}

func (s *requestSessionsStub) GetByID(_ context.Context, id string) (*models.SessionDetail, error) {
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestSessionsStub) FirstOnOrAfter(_ context.Context, classID string, _ time.Time) (*models.SessionDetail, error) {
	if session, ok := s.upcoming[classID]; ok {
		return session, nil
	}
	return nil, sql.ErrNoRows
}

func (s *requestSessionsStub) CountAttendees(_ context.Context, sessionID string) (int, error) {
	return s.counts[sessionID], nil
}

type studentSessionsStub struct {
	assigned map[string]*models.StudentSession
}

func (s *studentSessionsStub) GetByStudentAndSession(_ context.Context, studentID, sessionID string) (*models.StudentSession, error) {
	if row, ok := s.assigned[studentID+"|"+sessionID]; ok {
		return row, nil
	}
	return nil, sql.ErrNoRows
}

type activeEnrollmentsStub struct {
	active map[string]*models.Enrollment
}

func (s *activeEnrollmentsStub) GetActive(_ context.Context, studentID, classID string) (*models.Enrollment, error) {
	if enrollment, ok := s.active[studentID+"|"+classID]; ok {
		return enrollment, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (s *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type requestFixture struct {
	svc       *RequestService
	requests  *requestRepoStub
	approvals *approvalStub
	sessions  *requestSessionsStub
	audit     *auditStub
	now       time.Time
}

func studentActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-student", Role: models.RoleStudent, StudentID: "student-1"}
}

func staffActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-staff", Role: models.RoleStaff}
}

func newRequestFixture(t *testing.T) *requestFixture {
	t.Helper()
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)

	sessions := &requestSessionsStub{
		sessions: map[string]*models.SessionDetail{
			"sess-1": {Session: models.Session{ID: "sess-1", ClassID: "class-1", Seq: 3, Date: tomorrow, Status: models.SessionStatusPlanned, Capacity: 10}, StartTime: "09:00"},
			"sess-2": {Session: models.Session{ID: "sess-2", ClassID: "class-1", Seq: 4, Date: now.AddDate(0, 0, 2), Status: models.SessionStatusPlanned, Capacity: 10}, StartTime: "09:00"},
			"sess-done": {Session: models.Session{ID: "sess-done", ClassID: "class-1", Seq: 1, Date: now.AddDate(0, 0, -3), Status: models.SessionStatusDone, Capacity: 10}, StartTime: "09:00"},
		},
		upcoming: map[string]*models.SessionDetail{
			"class-2": {Session: models.Session{ID: "sess-t1", ClassID: "class-2", Seq: 7, Date: tomorrow, Status: models.SessionStatusPlanned, Capacity: 10}, StartTime: "10:00"},
		},
		counts: map[string]int{"sess-2": 4},
	}
	classes := &classesStub{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Algebra", BranchID: "branch-1", SubjectID: "math", Capacity: 20, Status: models.ClassStatusOngoing},
		"class-2": {ID: "class-2", Name: "Algebra B", BranchID: "branch-1", SubjectID: "math", Capacity: 20, Status: models.ClassStatusOngoing},
	}}
	capacity := NewCapacityService(classes, &enrollmentCountStub{counts: map[string]int{"class-2": 5}}, sessions, nil)

	requests := newRequestRepoStub()
	approvals := &approvalStub{}
	audit := &auditStub{}

	svc := NewRequestService(RequestServiceDeps{
		Requests:  requests,
		Approvals: approvals,
		Students: &studentsStub{students: map[string]*models.Student{
			"student-1": {ID: "student-1", FullName: "Linh Tran"},
		}},
		Users: &usersStub{users: map[string]*models.User{
			"user-staff": {ID: "user-staff", Role: models.RoleStaff, Active: true},
		}},
		Classes:  classes,
		Sessions: sessions,
		StudentSessions: &studentSessionsStub{assigned: map[string]*models.StudentSession{
			"student-1|sess-1": {ID: "ss-1", StudentID: "student-1", SessionID: "sess-1"},
		}},
		Enrollments: &activeEnrollmentsStub{active: map[string]*models.Enrollment{
			"student-1|class-1": {ID: "enr-1", StudentID: "student-1", ClassID: "class-1", Status: models.EnrollmentStatusEnrolled},
		}},
		Capacity:    capacity,
		Audit:       audit,
		MinLeadTime: 48 * time.Hour,
	})
	svc.now = func() time.Time { return now }

	return &requestFixture{svc: svc, requests: requests, approvals: approvals, sessions: sessions, audit: audit, now: now}
}

func absencePayload() dto.SubmitRequestPayload {
	return dto.SubmitRequestPayload{
		Type:      models.RequestTypeAbsence,
		ClassID:   "class-1",
		SessionID: "sess-1",
		Reason:    "family event",
	}
}

func TestSubmitAbsenceByStudent(t *testing.T) {
	f := newRequestFixture(t)
	snapshot, err := f.svc.Submit(context.Background(), absencePayload(), studentActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, snapshot.Request.Status)
	require.Equal(t, "student-1", snapshot.Request.StudentID)
	require.Equal(t, "user-student", snapshot.Request.SubmittedBy)
	require.Zero(t, f.approvals.absenceCalls)
	// Session starts in 21h, under the 48h lead-time floor.
	require.Len(t, snapshot.Warnings, 1)
	require.Len(t, f.audit.logs, 1)
}

func TestSubmitAbsenceByStaffAutoApproves(t *testing.T) {
	f := newRequestFixture(t)
	payload := absencePayload()
	payload.StudentID = "student-1"
	snapshot, err := f.svc.Submit(context.Background(), payload, staffActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, snapshot.Request.Status)
	require.Equal(t, 1, f.approvals.absenceCalls)
	require.NotNil(t, snapshot.Request.DecidedBy)
	require.Equal(t, "user-staff", *snapshot.Request.DecidedBy)
}

func TestSubmitMalformedSlotTimeStillWarns(t *testing.T) {
	f := newRequestFixture(t)
	f.sessions.sessions["sess-1"].StartTime = "9am"

	snapshot, err := f.svc.Submit(context.Background(), absencePayload(), studentActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, snapshot.Request.Status)
	// Lead time degrades to the bare session date (24h out instead of the
	// slot's 21h), still under the 48h floor.
	require.Len(t, snapshot.Warnings, 1)
	require.Contains(t, snapshot.Warnings[0], "24h")
}

func TestSubmitForAnotherStudentDenied(t *testing.T) {
	f := newRequestFixture(t)
	payload := absencePayload()
	payload.StudentID = "student-2"
	_, err := f.svc.Submit(context.Background(), payload, studentActor())
	require.ErrorIs(t, err, appErrors.ErrAccessDenied)
}

func TestSubmitDuplicateRejected(t *testing.T) {
	f := newRequestFixture(t)
	f.requests.active["student-1|sess-1|ABSENCE"] = true
	_, err := f.svc.Submit(context.Background(), absencePayload(), studentActor())
	require.ErrorIs(t, err, appErrors.ErrDuplicateRequest)
}

func TestSubmitPipelineFailures(t *testing.T) {
	f := newRequestFixture(t)

	payload := absencePayload()
	payload.ClassID = "class-2"
	_, err := f.svc.Submit(context.Background(), payload, studentActor())
	require.ErrorIs(t, err, appErrors.ErrSessionClassMismatch)

	payload = absencePayload()
	payload.SessionID = "sess-done"
	_, err = f.svc.Submit(context.Background(), payload, studentActor())
	require.ErrorIs(t, err, appErrors.ErrPastSession)

	payload = absencePayload()
	payload.SessionID = "sess-2"
	_, err = f.svc.Submit(context.Background(), payload, studentActor())
	require.ErrorIs(t, err, appErrors.ErrSessionNotAssigned)

	other := &models.JWTClaims{UserID: "user-other", Role: models.RoleStudent, StudentID: "student-404"}
	_, err = f.svc.Submit(context.Background(), absencePayload(), other)
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}

func TestSubmitMakeupFullSession(t *testing.T) {
	f := newRequestFixture(t)
	f.sessions.counts["sess-2"] = 10
	payload := absencePayload()
	payload.Type = models.RequestTypeMakeup
	payload.MakeupSessionID = "sess-2"
	_, err := f.svc.Submit(context.Background(), payload, studentActor())
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)

	payload.CapacityOverride = true
	payload.OverrideReason = "director approval"
	snapshot, err := f.svc.Submit(context.Background(), payload, studentActor())
	require.NoError(t, err)
	require.NotNil(t, snapshot.Request.MakeupSessionID)
	require.Equal(t, "sess-2", *snapshot.Request.MakeupSessionID)
}

func TestSubmitTransferResolvesEffectiveSession(t *testing.T) {
	f := newRequestFixture(t)
	payload := absencePayload()
	payload.Type = models.RequestTypeTransfer
	payload.TargetClassID = "class-2"
	payload.EffectiveDate = "2026-09-11"
	snapshot, err := f.svc.Submit(context.Background(), payload, studentActor())
	require.NoError(t, err)
	require.NotNil(t, snapshot.Request.EffectiveSessionID)
	require.Equal(t, "sess-t1", *snapshot.Request.EffectiveSessionID)

	// No session on or after the date is a validation failure, not a crash.
	f.sessions.upcoming = map[string]*models.SessionDetail{}
	_, err = f.svc.Submit(context.Background(), payload, studentActor())
	require.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}

func submitPending(t *testing.T, f *requestFixture) *models.StudentRequest {
	t.Helper()
	snapshot, err := f.svc.Submit(context.Background(), absencePayload(), studentActor())
	require.NoError(t, err)
	return snapshot.Request
}

func TestDecideApprove(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	snapshot, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "approve", Note: "ok"}, staffActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, snapshot.Request.Status)
	require.Equal(t, 1, f.approvals.absenceCalls)
}

func TestDecideReject(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	snapshot, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "reject", Note: "conflicts with exam week"}, staffActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, snapshot.Request.Status)
	require.Equal(t, models.RequestStatusRejected, f.requests.requests[pending.ID].Status)
	require.Zero(t, f.approvals.absenceCalls)
}

func TestDecideApproveCapacityRaceLeavesPending(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)
	f.approvals.err = repository.ErrCapacityFull

	_, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "approve"}, staffActor())
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
	require.Equal(t, models.RequestStatusPending, f.requests.requests[pending.ID].Status)
}

func TestDecideTwice(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	_, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "reject"}, staffActor())
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "approve"}, staffActor())
	require.ErrorIs(t, err, appErrors.ErrInvalidStatus)
}

func TestDecideUnknownActor(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	ghost := &models.JWTClaims{UserID: "user-ghost", Role: models.RoleStaff}
	_, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "approve"}, ghost)
	require.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}

func TestCancelByOwner(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	snapshot, err := f.svc.Cancel(context.Background(), pending.ID, studentActor())
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusCancelled, snapshot.Request.Status)
}

func TestCancelIsOwnerOnly(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	_, err := f.svc.Cancel(context.Background(), pending.ID, staffActor())
	require.ErrorIs(t, err, appErrors.ErrAccessDenied)

	other := &models.JWTClaims{UserID: "user-other", Role: models.RoleStudent, StudentID: "student-2"}
	_, err = f.svc.Cancel(context.Background(), pending.ID, other)
	require.ErrorIs(t, err, appErrors.ErrAccessDenied)
}

func TestCancelAfterDecision(t *testing.T) {
	f := newRequestFixture(t)
	pending := submitPending(t, f)

	_, err := f.svc.Decide(context.Background(), pending.ID,
		dto.DecideRequestPayload{Decision: "approve"}, staffActor())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), pending.ID, studentActor())
	require.ErrorIs(t, err, appErrors.ErrInvalidStatus)
}

func TestListScopesStudents(t *testing.T) {
	f := newRequestFixture(t)
	submitPending(t, f)
	f.requests.requests["other"] = &models.StudentRequest{ID: "other", StudentID: "student-2", Status: models.RequestStatusPending}

	listed, err := f.svc.List(context.Background(), dto.RequestQuery{StudentID: "student-2"}, studentActor())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "student-1", listed[0].StudentID)
}
