package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edubase/center-ops-api/internal/models"
)

// Notifier delivers request lifecycle notifications. Delivery is
// fire-and-forget: a failure is logged by the caller and never rolls back
// the transition that triggered it.
type Notifier interface {
	NotifyRequestDecided(ctx context.Context, request *models.StudentRequest) error
}

// LoggingNotifier is the default Notifier; it records the event in the
// application log. Real channels (email, push) plug in behind the same
// interface.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs the default notifier.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

// NotifyRequestDecided implements Notifier.
func (n *LoggingNotifier) NotifyRequestDecided(_ context.Context, request *models.StudentRequest) error {
	if request == nil {
		return nil
	}
	n.logger.Info("request transition notification",
		zap.String("requestId", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("status", string(request.Status)),
		zap.String("studentId", request.StudentID),
	)
	return nil
}
