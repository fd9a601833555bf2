package domain

import "time"

// Router request bindings. Validation tags refer to the custom validators
// registered at router setup.

type RouterRequestLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RouterRequestCreateTaskType struct {
	Name        string  `json:"name" binding:"required,validate_type_name"`
	SkillPath   *string `json:"skill_path" binding:"omitempty,validate_skill_path"`
	ParamSchema JSONB   `json:"param_schema"`
}

type RouterRequestUpdateTaskType struct {
	SkillPath   *string `json:"skill_path" binding:"omitempty,validate_skill_path"`
	ParamSchema JSONB   `json:"param_schema"`
}

type RouterRequestCreateTask struct {
	TaskTypeID *string `json:"task_type_id"`
	Priority   *string `json:"priority" binding:"omitempty,validate_priority"`
	AssignedTo *string `json:"assigned_to"`
	Params     JSONB   `json:"params"`
}

type RouterRequestClaimTask struct {
	TaskType *string `json:"task_type" binding:"omitempty,validate_type_name"`
}

type RouterRequestUpdateTaskStatus struct {
	Status         string `json:"status" binding:"required,validate_status"`
	RetryIncrement bool   `json:"retry_increment"`
}

type RouterRequestPostResult struct {
	Result JSONB `json:"result" binding:"required"`
}

// RouterRequestPostTaskData's max tag mirrors MaxDataBatchSize; the service
// layer re-checks the bound.
type RouterRequestPostTaskData struct {
	DataType string         `json:"data_type" binding:"required,validate_type_name"`
	Items    []TaskDataItem `json:"items" binding:"required,min=1,max=500"`
}

type RouterRequestRegisterFile struct {
	Filename    string `json:"filename" binding:"required"`
	StorageKey  string `json:"storage_key" binding:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" binding:"omitempty,gte=0"`
}

type RouterRequestCreateUpdate struct {
	Content string `json:"content" binding:"required"`
}

type RouterRequestRegisterWorker struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

// RouterResponseLogin is the token envelope returned on login.
type RouterResponseLogin struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
}
