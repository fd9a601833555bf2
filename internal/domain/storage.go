package domain

import "context"

// Storage is the transactional backing store. It is the single source of
// truth shared across service instances; claim correctness lives in its
// row-locking semantics, not in process state.
type Storage interface {
	Ping(ctx context.Context) error

	// Task types
	InsertTaskType(ctx context.Context, name string, skillPath *string, paramSchema JSONB) (*TaskType, error)
	ListTaskTypes(ctx context.Context) ([]*TaskType, error)
	GetTaskTypeByID(ctx context.Context, id string) (*TaskType, error)
	UpdateTaskType(ctx context.Context, id string, skillPath *string, paramSchema JSONB) (*TaskType, error)
	DeleteTaskType(ctx context.Context, id string) error

	// Tasks
	InsertTask(ctx context.Context, id string, taskTypeID *string, priority TaskPriority, assignedTo, createdBy *string, params JSONB) (*Task, error)
	GetTaskByID(ctx context.Context, id string) (*Task, error)
	GetTaskForWorker(ctx context.Context, id, workerID string) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)
	ListWorkerTasks(ctx context.Context, workerID string, status *TaskStatus) ([]*Task, error)
	DeleteTask(ctx context.Context, id string) error

	// ClaimNextTask atomically hands the best-ranked pending unassigned task
	// to workerID, or returns ErrNotFound when nothing is eligible.
	ClaimNextTask(ctx context.Context, workerID string, taskTypeName *string) (*Task, error)
	// ClaimNextAssignedTask is the worker-scoped variant: the candidate set
	// is the caller's pre-assigned pending tasks.
	ClaimNextAssignedTask(ctx context.Context, workerID string) (*Task, error)

	// TransitionTask applies a status change with a compare-and-swap on the
	// expected from status. workerID, when set, restricts the update to
	// tasks that worker holds or is assigned.
	TransitionTask(ctx context.Context, id string, from, to TaskStatus, incrRetry bool, workerID *string) (*Task, error)
	SetTaskResult(ctx context.Context, id string, result JSONB, workerID *string) (*Task, error)

	// Task data
	BulkInsertTaskData(ctx context.Context, taskID, dataType string, items []TaskDataItem) (inserted int, err error)
	GetTaskData(ctx context.Context, taskID, dataType string, limit, offset int) ([]*TaskDataRow, int, error)

	// Task files
	InsertTaskFile(ctx context.Context, id, taskID, filename, storageKey, contentType string, sizeBytes int64, uploadedBy string) (*TaskFile, error)
	ListTaskFiles(ctx context.Context, taskID string, limit, offset int) ([]*TaskFile, int, error)
	GetTaskFileByID(ctx context.Context, taskID, fileID string) (*TaskFile, error)

	// Task updates
	InsertTaskUpdate(ctx context.Context, id, taskID, content, createdBy string) (*TaskUpdate, error)
	ListTaskUpdates(ctx context.Context, taskID string) ([]*TaskUpdate, error)

	// Users and liveness
	GetUserAuthByEmail(ctx context.Context, email string) (*UserAuth, error)
	RecordLogin(ctx context.Context, userID string) error
	// VerifyWorker checks the worker flag and touches last_activity_at in
	// the same round trip.
	VerifyWorker(ctx context.Context, userID string) (bool, error)
	ListWorkers(ctx context.Context) ([]*WorkerInfo, error)
	InsertWorker(ctx context.Context, id, email, passwordHash, fullName string) (*WorkerInfo, error)
	RemoveWorker(ctx context.Context, id string) error

	// Recovery
	GetStaleInProgressTasks(ctx context.Context, olderThanSeconds int64, limit int32) ([]*Task, error)
}
