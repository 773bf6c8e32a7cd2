package dto

import "github.com/edubase/center-ops-api/internal/models"

// SubmitRequestPayload is the payload for submitting a student request.
// StudentID may be omitted by student actors (it defaults to their own
// record); staff submitting on behalf of a student must set it.
type SubmitRequestPayload struct {
	Type             models.RequestType `json:"type" validate:"required"`
	StudentID        string             `json:"student_id"`
	ClassID          string             `json:"class_id" validate:"required"`
	SessionID        string             `json:"session_id" validate:"required"`
	MakeupSessionID  string             `json:"makeup_session_id"`
	TargetClassID    string             `json:"target_class_id"`
	EffectiveDate    string             `json:"effective_date"`
	Reason           string             `json:"reason" validate:"required"`
	CapacityOverride bool               `json:"capacity_override"`
	OverrideReason   string             `json:"override_reason"`
}

// DecideRequestPayload captures reviewer decision and optional note.
type DecideRequestPayload struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Note     string `json:"note"`
}

// RequestSnapshot pairs a request with advisory warnings attached at
// submission time (lead time, absence rate). Warnings never block.
type RequestSnapshot struct {
	Request  *models.StudentRequest `json:"request"`
	Warnings []string               `json:"warnings,omitempty"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status    []models.RequestStatus
	Type      models.RequestType
	StudentID string
	ClassID   string
	Limit     int
	Offset    int
}
