package domain

import "time"

// TaskFile records metadata for an artifact the worker already uploaded to
// object storage. The bytes themselves never pass through this service in
// the worker path.
type TaskFile struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedBy  *string   `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
