package domain

import "time"

// MaxDataBatchSize bounds one bulk ingestion call.
const MaxDataBatchSize = 500

// TaskDataItem is one row a worker submits during execution. ExternalID is
// the caller-defined dedup key; items without one are never deduplicated.
type TaskDataItem struct {
	ExternalID  *string    `json:"external_id"`
	Payload     JSONB      `json:"payload"`
	CollectedAt *time.Time `json:"collected_at"`
}

// TaskDataRow is a stored data row.
type TaskDataRow struct {
	ID          int64     `json:"id"`
	TaskID      string    `json:"task_id"`
	DataType    string    `json:"data_type"`
	ExternalID  *string   `json:"external_id"`
	Payload     JSONB     `json:"payload"`
	CollectedAt time.Time `json:"collected_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// BulkInsertSummary is the success-with-detail response of bulk ingestion;
// duplicates are skips, never item-level errors.
type BulkInsertSummary struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}
