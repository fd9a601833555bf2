package domain

import "time"

// Queue publishes task lifecycle events for downstream consumers
// (the notification service). Publishing is best-effort: a failed publish
// is logged, never surfaced to the API caller.
type Queue interface {
	IsHealthy() bool
	PublishMessage(queueName, body string) error
	PublishEvent(queueName string, event TaskEvent) error
	Close() error
}

// Task lifecycle event names.
const (
	EventTaskCreated   = "task.created"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
)

// TaskEvent is the JSON body published on task lifecycle changes.
type TaskEvent struct {
	Event      string       `json:"event"`
	TaskID     string       `json:"task_id"`
	Status     TaskStatus   `json:"status"`
	Priority   TaskPriority `json:"priority"`
	OccurredAt time.Time    `json:"occurred_at"`
}
