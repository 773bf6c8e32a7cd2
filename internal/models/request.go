package models

import "time"

// RequestType enumerates supported student request categories.
type RequestType string

const (
	RequestTypeAbsence  RequestType = "ABSENCE"
	RequestTypeMakeup   RequestType = "MAKEUP"
	RequestTypeTransfer RequestType = "TRANSFER"
)

// Valid reports whether the type is one of the known values.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeAbsence, RequestTypeMakeup, RequestTypeTransfer:
		return true
	}
	return false
}

// RequestStatus captures workflow states for student requests.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
	RequestStatusExpired   RequestStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s != RequestStatusPending
}

// StudentRequest is a student's request to skip a session (ABSENCE), attend
// an alternate session (MAKEUP), or move to a different class (TRANSFER).
// Which of the session references is primary depends on Type: SessionID for
// ABSENCE and MAKEUP (the original session), MakeupSessionID for MAKEUP's
// alternate, EffectiveSessionID for TRANSFER.
type StudentRequest struct {
	ID                 string        `db:"id" json:"id"`
	Type               RequestType   `db:"type" json:"type"`
	Status             RequestStatus `db:"status" json:"status"`
	StudentID          string        `db:"student_id" json:"student_id"`
	ClassID            string        `db:"class_id" json:"class_id"`
	TargetClassID      *string       `db:"target_class_id" json:"target_class_id,omitempty"`
	SessionID          *string       `db:"session_id" json:"session_id,omitempty"`
	MakeupSessionID    *string       `db:"makeup_session_id" json:"makeup_session_id,omitempty"`
	EffectiveSessionID *string       `db:"effective_session_id" json:"effective_session_id,omitempty"`
	EffectiveDate      *time.Time    `db:"effective_date" json:"effective_date,omitempty"`
	Reason             string        `db:"reason" json:"reason"`
	Note               *string       `db:"note" json:"note,omitempty"`
	CapacityOverride   bool          `db:"capacity_override" json:"capacity_override"`
	OverrideReason     *string       `db:"override_reason" json:"override_reason,omitempty"`
	SubmittedBy        string        `db:"submitted_by" json:"submitted_by"`
	DecidedBy          *string       `db:"decided_by" json:"decided_by,omitempty"`
	SubmittedAt        time.Time     `db:"submitted_at" json:"submitted_at"`
	DecidedAt          *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
}

// StudentRequestFilter constrains listing queries.
type StudentRequestFilter struct {
	Status    []RequestStatus
	Type      RequestType
	StudentID string
	ClassID   string
	Limit     int
	Offset    int
}
