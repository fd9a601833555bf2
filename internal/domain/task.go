package domain

import "time"

type TaskStatus string

const (
	Pending    TaskStatus = "pending"
	InProgress TaskStatus = "in_progress"
	Completed  TaskStatus = "completed"
	Failed     TaskStatus = "failed"
)

type TaskPriority string

const (
	Urgent TaskPriority = "urgent"
	High   TaskPriority = "high"
	Medium TaskPriority = "medium"
	Low    TaskPriority = "low"
)

// PriorityRank maps a priority to its claim-ordering rank; lower claims first.
func PriorityRank(p TaskPriority) int {
	switch p {
	case Urgent:
		return 0
	case High:
		return 1
	case Medium:
		return 2
	case Low:
		return 3
	default:
		return 4
	}
}

func ValidStatus(s TaskStatus) bool {
	switch s {
	case Pending, InProgress, Completed, Failed:
		return true
	}
	return false
}

func ValidPriority(p TaskPriority) bool {
	return PriorityRank(p) < 4
}

func IsTerminal(s TaskStatus) bool {
	return s == Completed || s == Failed
}

// Task is one unit of work in the backlog. AssignedTo is nil for the
// globally claimable variant and fixed for the pre-assigned variant;
// ClaimedBy holds whoever currently owns the in_progress run.
type Task struct {
	ID          string       `json:"id"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	TaskTypeID  *string      `json:"task_type_id"`
	TaskType    *TaskType    `json:"task_type,omitempty"`
	AssignedTo  *string      `json:"assigned_to"`
	ClaimedBy   *string      `json:"claimed_by"`
	Params      JSONB        `json:"params"`
	Result      JSONB        `json:"result"`
	RetryCount  int          `json:"retry_count"`
	CreatedBy   *string      `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	StartedAt   *time.Time   `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at"`
}

// TaskFilter narrows admin task listings.
type TaskFilter struct {
	Status       *TaskStatus
	AssignedTo   *string
	TaskTypeName *string
}
