package contracts

import "time"

// LevelStatus is the state of one validation level.
type LevelStatus string

const (
	LevelPending  LevelStatus = "PENDING"
	LevelApproved LevelStatus = "APPROVED"
	LevelRejected LevelStatus = "REJECTED"
	LevelSkipped  LevelStatus = "SKIPPED"
)

// OverallStatus is the state of a whole multi-level request.
type OverallStatus string

const (
	RequestInProgress OverallStatus = "IN_PROGRESS"
	RequestApproved   OverallStatus = "APPROVED"
	RequestRejected   OverallStatus = "REJECTED"
)

// ValidationLevel is one ordered stage of a multi-step approval. Any one
// of the eligible validators may decide it; the first decision wins.
type ValidationLevel struct {
	Level              uint32      `json:"level"`
	Name               string      `json:"name"`
	Role               string      `json:"role"`
	Validators         []string    `json:"validators"`
	Status             LevelStatus `json:"status"`
	DecidedBy          string      `json:"decided_by,omitempty"`
	DecidedAt          *time.Time  `json:"decided_at,omitempty"`
	Comment            string      `json:"comment,omitempty"`
	RequiredConditions []string    `json:"required_conditions,omitempty"`
	AutoApprove        bool        `json:"auto_approve"`
	// AutoApproveWhen is the CEL expression guarding an auto-approve
	// level. Persisted with the level so any process sharing the store
	// evaluates the same guard.
	AutoApproveWhen string `json:"auto_approve_when,omitempty"`
}

// Terminal reports whether the level has been decided or skipped.
func (l ValidationLevel) Terminal() bool {
	return l.Status != LevelPending
}

// MultiLevelRequest is an approval workflow instance driven level by
// level through an ordered chain of authorities. At most one level is
// pending-and-active at any time: the lowest-indexed pending one.
type MultiLevelRequest struct {
	ID            string            `json:"id"`
	SubjectID     string            `json:"subject_id"`
	Levels        []ValidationLevel `json:"levels"`
	CurrentLevel  uint32            `json:"current_level"`
	OverallStatus OverallStatus     `json:"overall_status"`
	// Facts are the externally evaluated inputs auto-approve conditions
	// run against, captured at creation.
	Facts     map[string]any `json:"facts,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
