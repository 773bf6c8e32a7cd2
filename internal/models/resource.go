package models

import "time"

// ResourceType distinguishes physical rooms from virtual meeting resources.
type ResourceType string

const (
	ResourceTypeRoom    ResourceType = "ROOM"
	ResourceTypeVirtual ResourceType = "VIRTUAL"
)

// ResourceStatus marks whether a resource can be scheduled.
type ResourceStatus string

const (
	ResourceStatusActive   ResourceStatus = "ACTIVE"
	ResourceStatusInactive ResourceStatus = "INACTIVE"
)

// Resource is a branch-scoped room or virtual meeting resource.
type Resource struct {
	ID        string         `db:"id" json:"id"`
	BranchID  string         `db:"branch_id" json:"branch_id"`
	Name      string         `db:"name" json:"name"`
	Type      ResourceType   `db:"type" json:"type"`
	Capacity  int            `db:"capacity" json:"capacity"`
	Status    ResourceStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
