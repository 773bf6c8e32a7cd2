package dto

import (
	"time"

	"github.com/edubase/center-ops-api/internal/models"
)

// ReportRequest queues an attendance report export.
type ReportRequest struct {
	StudentID string              `json:"student_id" validate:"required"`
	ClassID   string              `json:"class_id" validate:"required"`
	Format    models.ReportFormat `json:"format" validate:"required"`
}

// ReportJobResponse acknowledges a queued export.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress and, once finished, a signed
// download token.
type ReportStatusResponse struct {
	ID            string              `json:"id"`
	Status        models.ReportStatus `json:"status"`
	Progress      int                 `json:"progress"`
	Error         *string             `json:"error,omitempty"`
	DownloadToken *string             `json:"download_token,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
}
