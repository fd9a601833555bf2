package domain

import "time"

// TaskUpdate is one entry in a task's append-only progress log.
type TaskUpdate struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	Content       string    `json:"content"`
	CreatedBy     *string   `json:"created_by"`
	CreatedByName *string   `json:"created_by_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
