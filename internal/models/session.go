package models

import "time"

// SessionStatus reflects a scheduled session's state.
type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "PLANNED"
	SessionStatusDone      SessionStatus = "DONE"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Session is one scheduled occurrence of a class. Seq is a per-class
// monotonic ordinal used to bound enrollment windows.
type Session struct {
	ID         string        `db:"id" json:"id"`
	ClassID    string        `db:"class_id" json:"class_id"`
	Seq        int           `db:"seq" json:"seq"`
	Date       time.Time     `db:"date" json:"date"`
	Status     SessionStatus `db:"status" json:"status"`
	TimeSlotID string        `db:"time_slot_id" json:"time_slot_id"`
	ResourceID *string       `db:"resource_id" json:"resource_id,omitempty"`
	Capacity   int           `db:"capacity" json:"capacity"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail enriches Session with slot timing for scheduling decisions.
type SessionDetail struct {
	Session
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// TimeSlotTemplate is a named, branch-scoped (start, end) pair used to
// schedule sessions. Times are "HH:MM" wall-clock strings.
type TimeSlotTemplate struct {
	ID        string    `db:"id" json:"id"`
	BranchID  string    `db:"branch_id" json:"branch_id"`
	Name      string    `db:"name" json:"name"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
