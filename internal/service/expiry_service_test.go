package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/internal/repository"
)

type expiryRepoStub struct {
	*requestRepoStub
	failIDs map[string]bool
}

func (s *expiryRepoStub) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]models.StudentRequest, error) {
	out := make([]models.StudentRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if request.Status != models.RequestStatusPending || !request.SubmittedAt.Before(cutoff) {
			continue
		}
		out = append(out, *request)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *expiryRepoStub) UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error {
	if s.failIDs[params.ID] {
		return errors.New("connection reset")
	}
	return s.requestRepoStub.UpdateDecision(ctx, params)
}

func newExpiryFixture(cutoff time.Duration) (*ExpiryService, *expiryRepoStub, *auditStub) {
	repo := &expiryRepoStub{requestRepoStub: newRequestRepoStub(), failIDs: map[string]bool{}}
	audit := &auditStub{}
	svc := NewExpiryService(repo, audit, nil, nil, cutoff, 100, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 10, 3, 0, 0, 0, time.UTC) }
	return svc, repo, audit
}

func pendingSince(id string, submittedAt time.Time) *models.StudentRequest {
	return &models.StudentRequest{
		ID:          id,
		Type:        models.RequestTypeAbsence,
		Status:      models.RequestStatusPending,
		StudentID:   "student-1",
		ClassID:     "class-1",
		SubmittedAt: submittedAt,
	}
}

func TestSweepExpiresStaleRequests(t *testing.T) {
	svc, repo, audit := newExpiryFixture(168 * time.Hour)
	now := svc.now()
	repo.requests["stale"] = pendingSince("stale", now.Add(-200*time.Hour))
	repo.requests["fresh"] = pendingSince("fresh", now.Add(-2*time.Hour))
	repo.requests["decided"] = pendingSince("decided", now.Add(-200*time.Hour))
	repo.requests["decided"].Status = models.RequestStatusApproved

	expired, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, expired)
	require.Equal(t, models.RequestStatusExpired, repo.requests["stale"].Status)
	require.Nil(t, repo.requests["stale"].DecidedBy)
	require.NotNil(t, repo.requests["stale"].DecidedAt)
	require.Equal(t, models.RequestStatusPending, repo.requests["fresh"].Status)
	require.Equal(t, models.RequestStatusApproved, repo.requests["decided"].Status)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionRequestExpire, audit.logs[0].Action)
}

func TestSweepIsIdempotent(t *testing.T) {
	svc, repo, _ := newExpiryFixture(168 * time.Hour)
	repo.requests["stale"] = pendingSince("stale", svc.now().Add(-200*time.Hour))

	expired, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	expired, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, expired)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	svc, repo, _ := newExpiryFixture(168 * time.Hour)
	now := svc.now()
	repo.requests["bad"] = pendingSince("bad", now.Add(-300*time.Hour))
	repo.requests["good"] = pendingSince("good", now.Add(-300*time.Hour))
	repo.failIDs["bad"] = true

	expired, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, expired)
	require.Equal(t, models.RequestStatusExpired, repo.requests["good"].Status)
	require.Equal(t, models.RequestStatusPending, repo.requests["bad"].Status)
}
