package models

import "time"

// ClassStatus reflects where a class sits in its delivery lifecycle.
type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "SCHEDULED"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
)

// DisplayPriority orders classes for attendance overviews: ongoing classes
// first, then scheduled, then completed.
func (s ClassStatus) DisplayPriority() int {
	switch s {
	case ClassStatusOngoing:
		return 0
	case ClassStatusScheduled:
		return 1
	case ClassStatusCompleted:
		return 2
	default:
		return 3
	}
}

// Class represents a course section delivered at a branch.
type Class struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	BranchID  string      `db:"branch_id" json:"branch_id"`
	SubjectID string      `db:"subject_id" json:"subject_id"`
	Capacity  int         `db:"capacity" json:"capacity"`
	Status    ClassStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
