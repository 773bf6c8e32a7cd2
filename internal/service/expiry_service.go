package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
	"github.com/edubase/center-ops-api/internal/repository"
	appErrors "github.com/edubase/center-ops-api/pkg/errors"
)

type expiryStore interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StudentRequest, error)
	UpdateDecision(ctx context.Context, params repository.UpdateDecisionParams) error
}

// ExpiryService force-transitions long-pending requests to EXPIRED. The
// sweep is the only path to that state; actors cannot expire directly.
type ExpiryService struct {
	requests expiryStore
	audit    auditLogger
	notifier Notifier
	metrics  *MetricsService
	cutoff   time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewExpiryService constructs the service.
func NewExpiryService(requests expiryStore, audit auditLogger, notifier Notifier, metrics *MetricsService, cutoff time.Duration, batch int, logger *zap.Logger) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLoggingNotifier(logger)
	}
	if cutoff <= 0 {
		cutoff = 168 * time.Hour
	}
	return &ExpiryService{
		requests: requests,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		cutoff:   cutoff,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep expires every PENDING request older than the cutoff. Each request is
// processed independently; a failure on one is logged and does not abort the
// rest. Re-running is a no-op for already-expired rows because only PENDING
// rows are selected.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cutoff)
	pending, err := s.requests.ListPendingBefore(ctx, cutoff, s.batch)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stale requests")
	}

	expired := 0
	for i := range pending {
		request := &pending[i]
		if err := s.expireOne(ctx, request); err != nil {
			s.logger.Warn("failed to expire request",
				zap.String("requestId", request.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("expired", expired), zap.Int("candidates", len(pending)))
	}
	return expired, nil
}

func (s *ExpiryService) expireOne(ctx context.Context, request *models.StudentRequest) error {
	decidedAt := s.now().UTC()
	err := s.requests.UpdateDecision(ctx, repository.UpdateDecisionParams{
		ID:        request.ID,
		Status:    models.RequestStatusExpired,
		DecidedAt: decidedAt,
	})
	if err != nil {
		// Lost the PENDING guard: someone decided it between select and
		// update. Not an error worth surfacing.
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	request.Status = models.RequestStatusExpired
	request.DecidedAt = &decidedAt
	s.metrics.RecordRequestExpired()
	s.emitAudit(ctx, request)
	if err := s.notifier.NotifyRequestDecided(ctx, request); err != nil {
		s.logger.Warn("expiry notification failed",
			zap.String("requestId", request.ID), zap.Error(err))
	}
	return nil
}

func (s *ExpiryService) emitAudit(ctx context.Context, request *models.StudentRequest) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     models.AuditActionRequestExpire,
		Resource:   "student_request",
		ResourceID: &request.ID,
		IPAddress:  "system",
		UserAgent:  "expiry-job",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
