package models

import "time"

// AttendanceStatus is the recorded state of a student's session slot.
type AttendanceStatus string

const (
	AttendancePlanned AttendanceStatus = "PLANNED"
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Valid reports whether the status is one of the known values.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePlanned, AttendancePresent, AttendanceAbsent, AttendanceExcused:
		return true
	}
	return false
}

// AttendanceOutcome is the effective classification of a session on a
// student's timeline after date- and status-dependent rules are applied.
type AttendanceOutcome string

const (
	OutcomePresent  AttendanceOutcome = "PRESENT"
	OutcomeAbsent   AttendanceOutcome = "ABSENT"
	OutcomeExcused  AttendanceOutcome = "EXCUSED"
	OutcomeUpcoming AttendanceOutcome = "UPCOMING"
)

// StudentSession records a student's attendance outcome for one session.
// Rows with IsTransferredOut set are excluded from the timeline of the
// class the student left.
type StudentSession struct {
	ID               string            `db:"id" json:"id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	SessionID        string            `db:"session_id" json:"session_id"`
	Status           *AttendanceStatus `db:"status" json:"status,omitempty"`
	IsTransferredOut bool              `db:"is_transferred_out" json:"is_transferred_out"`
	IsMakeup         bool              `db:"is_makeup" json:"is_makeup"`
	MakeupSessionID  *string           `db:"makeup_session_id" json:"makeup_session_id,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// AttendanceRow joins a StudentSession with its session fields; the
// projector consumes these rows.
type AttendanceRow struct {
	StudentSessionID string            `db:"student_session_id" json:"student_session_id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	SessionID        string            `db:"session_id" json:"session_id"`
	ClassID          string            `db:"class_id" json:"class_id"`
	SessionSeq       int               `db:"session_seq" json:"session_seq"`
	SessionDate      time.Time         `db:"session_date" json:"session_date"`
	SessionStatus    SessionStatus     `db:"session_status" json:"session_status"`
	Status           *AttendanceStatus `db:"status" json:"status,omitempty"`
	IsTransferredOut bool              `db:"is_transferred_out" json:"is_transferred_out"`
	IsMakeup         bool              `db:"is_makeup" json:"is_makeup"`
}

// TimelineEntry is one counted session on a student's class timeline.
type TimelineEntry struct {
	SessionID   string            `json:"session_id"`
	SessionSeq  int               `json:"session_seq"`
	SessionDate time.Time         `json:"session_date"`
	Outcome     AttendanceOutcome `json:"outcome"`
	IsMakeup    bool              `json:"is_makeup"`
}

// TimelineSummary aggregates a class timeline.
type TimelineSummary struct {
	TotalSessions  int     `json:"total_sessions"`
	Attended       int     `json:"attended"`
	Absent         int     `json:"absent"`
	Excused        int     `json:"excused"`
	Upcoming       int     `json:"upcoming"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// ClassTimeline is the projected attendance record for one (student, class).
type ClassTimeline struct {
	ClassID     string          `json:"class_id"`
	ClassName   string          `json:"class_name"`
	ClassStatus ClassStatus     `json:"class_status"`
	Entries     []TimelineEntry `json:"entries"`
	Summary     TimelineSummary `json:"summary"`
}
