package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/easildur24/investorcenter.ai-sub015/internal/auth"
	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/errval"
	"github.com/easildur24/investorcenter.ai-sub015/internal/objectstore"
)

// ObjectStore is the slice of object storage the service needs: existence
// probes at registration and download links for admins.
type ObjectStore interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	PresignDownload(ctx context.Context, key string) (string, time.Time, error)
}

type ServerLogic struct {
	storage         domain.Storage
	queueClient     domain.Queue
	objectStore     ObjectStore
	authManager     *auth.Manager
	eventsQueueName string
}

// NewServerLogic wires the service layer. objectStore may be nil, in which
// case file downloads are disabled but registration still works.
func NewServerLogic(storage domain.Storage, queueClient domain.Queue, objectStore ObjectStore, authManager *auth.Manager, eventsQueueName string) *ServerLogic {
	return &ServerLogic{
		storage:         storage,
		queueClient:     queueClient,
		objectStore:     objectStore,
		authManager:     authManager,
		eventsQueueName: eventsQueueName,
	}
}

// publishEvent is best-effort: task state is already durable by the time an
// event goes out, so a broker hiccup is logged and swallowed.
func (s *ServerLogic) publishEvent(event string, task *domain.Task) {
	if s.queueClient == nil {
		return
	}
	err := s.queueClient.PublishEvent(s.eventsQueueName, domain.TaskEvent{
		Event:      event,
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Error occurred while publishing task lifecycle event", "event", event, "task_id", task.ID, "error", err.Error())
	}
}

// ==================== Auth ====================

func (s *ServerLogic) Login(ctx context.Context, req domain.RouterRequestLogin) (*domain.RouterResponseLogin, error) {
	user, err := s.storage.GetUserAuthByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, errval.ErrUnauthorized
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.GetUserAuthByEmail", "error", err)
		return nil, errval.ErrInternal
	}

	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, errval.ErrUnauthorized
	}

	token, expiresAt, err := s.authManager.Issue(user)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while issuing token", "error", err)
		return nil, errval.ErrInternal
	}

	if err := s.storage.RecordLogin(ctx, user.ID); err != nil {
		slog.ErrorContext(ctx, "error occurred while recording login", "error", err)
	}

	return &domain.RouterResponseLogin{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
	}, nil
}

// ==================== Worker access ====================

// VerifyWorker gates every worker operation and doubles as the liveness
// touch: the storage call refreshes last_activity_at.
func (s *ServerLogic) VerifyWorker(ctx context.Context, userID string) error {
	isWorker, err := s.storage.VerifyWorker(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.VerifyWorker", "error", err)
		return errval.ErrInternal
	}
	if !isWorker {
		return errval.ErrForbidden
	}
	return nil
}

// ClaimNext hands the worker one task: pre-assigned work first, then the
// shared pool (optionally filtered by type). ErrNotFound means the backlog
// is empty for this worker.
func (s *ServerLogic) ClaimNext(ctx context.Context, workerID string, taskTypeName *string) (*domain.Task, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	task, err := s.storage.ClaimNextAssignedTask(ctx, workerID)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, errval.ErrNotFound) {
		slog.ErrorContext(ctx, "error occurred while calling storage.ClaimNextAssignedTask", "error", err)
		return nil, errval.ErrInternal
	}

	task, err = s.storage.ClaimNextTask(ctx, workerID, taskTypeName)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.ClaimNextTask", "error", err)
		return nil, errval.ErrInternal
	}
	return task, nil
}

func (s *ServerLogic) WorkerGetTask(ctx context.Context, workerID, taskID string) (*domain.Task, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}
	return s.getTaskForWorker(ctx, workerID, taskID)
}

func (s *ServerLogic) getTaskForWorker(ctx context.Context, workerID, taskID string) (*domain.Task, error) {
	task, err := s.storage.GetTaskForWorker(ctx, taskID, workerID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskForWorker", "error", err)
		return nil, errval.ErrInternal
	}
	return task, nil
}

func (s *ServerLogic) WorkerListTasks(ctx context.Context, workerID string, status *domain.TaskStatus) ([]*domain.Task, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	tasks, err := s.storage.ListWorkerTasks(ctx, workerID, status)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListWorkerTasks", "error", err)
		return nil, errval.ErrInternal
	}
	return tasks, nil
}

// WorkerUpdateStatus moves a held task through the worker's slice of the
// status machine. The legality check runs against the snapshot and the
// storage update re-checks it with a compare-and-swap, so a concurrent
// change surfaces as ErrInvalidState rather than a lost update.
func (s *ServerLogic) WorkerUpdateStatus(ctx context.Context, workerID, taskID string, to domain.TaskStatus, retryIncrement bool) (*domain.Task, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	task, err := s.getTaskForWorker(ctx, workerID, taskID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(task.Status, to, domain.RoleWorker) {
		return nil, errval.ErrInvalidState
	}

	updated, err := s.storage.TransitionTask(ctx, taskID, task.Status, to, retryIncrement, &workerID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) || errors.Is(err, errval.ErrInvalidState) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.TransitionTask", "error", err)
		return nil, errval.ErrInternal
	}

	switch to {
	case domain.Completed:
		s.publishEvent(domain.EventTaskCompleted, updated)
	case domain.Failed:
		s.publishEvent(domain.EventTaskFailed, updated)
	}
	return updated, nil
}

func (s *ServerLogic) WorkerPostResult(ctx context.Context, workerID, taskID string, result domain.JSONB) (*domain.Task, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	task, err := s.storage.SetTaskResult(ctx, taskID, result, &workerID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) || errors.Is(err, errval.ErrInvalidState) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.SetTaskResult", "error", err)
		return nil, errval.ErrInternal
	}
	return task, nil
}

// WorkerPostData ingests one batch of collected rows. Duplicates on the
// per-task dedup key are counted as skips, so resubmitting a batch after a
// crash converges instead of erroring.
func (s *ServerLogic) WorkerPostData(ctx context.Context, workerID, taskID string, req domain.RouterRequestPostTaskData) (*domain.BulkInsertSummary, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	// Request binding enforces the same bound; re-checking here keeps the
	// invariant independent of the transport.
	if len(req.Items) == 0 || len(req.Items) > domain.MaxDataBatchSize {
		return nil, errval.ErrInvalidArgument
	}

	task, err := s.getTaskForWorker(ctx, workerID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.InProgress {
		return nil, errval.ErrInvalidState
	}

	inserted, err := s.storage.BulkInsertTaskData(ctx, taskID, req.DataType, req.Items)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.BulkInsertTaskData", "error", err)
		return nil, errval.ErrInternal
	}

	total := len(req.Items)
	return &domain.BulkInsertSummary{
		Inserted: inserted,
		Skipped:  total - inserted,
		Total:    total,
	}, nil
}

// WorkerRegisterFile records metadata for an object the worker uploaded out
// of band. The key must sit inside the task's namespace; object existence
// is probed but not required, since uploads may still be propagating.
func (s *ServerLogic) WorkerRegisterFile(ctx context.Context, workerID, taskID string, req domain.RouterRequestRegisterFile) (*domain.TaskFile, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	task, err := s.getTaskForWorker(ctx, workerID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.InProgress {
		return nil, errval.ErrInvalidState
	}

	if err := objectstore.ValidateKey(req.StorageKey, taskID); err != nil {
		slog.InfoContext(ctx, "rejected file registration with out-of-namespace key", "task_id", taskID, "key", req.StorageKey)
		return nil, errval.ErrInvalidArgument
	}

	if s.objectStore != nil {
		exists, err := s.objectStore.ObjectExists(ctx, req.StorageKey)
		if err == nil && !exists {
			slog.WarnContext(ctx, "registered storage key does not exist yet", "task_id", taskID, "key", req.StorageKey)
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	file, err := s.storage.InsertTaskFile(ctx, uuid.NewString(), taskID, req.Filename, req.StorageKey, contentType, req.SizeBytes, workerID)
	if err != nil {
		if errors.Is(err, errval.ErrConflict) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertTaskFile", "error", err)
		return nil, errval.ErrInternal
	}
	return file, nil
}

func (s *ServerLogic) WorkerPostUpdate(ctx context.Context, workerID, taskID, content string) (*domain.TaskUpdate, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	if _, err := s.getTaskForWorker(ctx, workerID, taskID); err != nil {
		return nil, err
	}

	update, err := s.storage.InsertTaskUpdate(ctx, uuid.NewString(), taskID, content, workerID)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertTaskUpdate", "error", err)
		return nil, errval.ErrInternal
	}
	return update, nil
}

func (s *ServerLogic) WorkerGetUpdates(ctx context.Context, workerID, taskID string) ([]*domain.TaskUpdate, error) {
	if err := s.VerifyWorker(ctx, workerID); err != nil {
		return nil, err
	}

	if _, err := s.getTaskForWorker(ctx, workerID, taskID); err != nil {
		return nil, err
	}

	updates, err := s.storage.ListTaskUpdates(ctx, taskID)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListTaskUpdates", "error", err)
		return nil, errval.ErrInternal
	}
	return updates, nil
}

// Heartbeat keeps the liveness signal fresh between real calls.
func (s *ServerLogic) Heartbeat(ctx context.Context, workerID string) error {
	return s.VerifyWorker(ctx, workerID)
}

// ==================== Task types ====================

func (s *ServerLogic) CreateTaskType(ctx context.Context, req domain.RouterRequestCreateTaskType) (*domain.TaskType, error) {
	tt, err := s.storage.InsertTaskType(ctx, req.Name, req.SkillPath, req.ParamSchema)
	if err != nil {
		if errors.Is(err, errval.ErrConflict) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertTaskType", "error", err)
		return nil, errval.ErrInternal
	}
	return tt, nil
}

func (s *ServerLogic) ListTaskTypes(ctx context.Context) ([]*domain.TaskType, error) {
	taskTypes, err := s.storage.ListTaskTypes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListTaskTypes", "error", err)
		return nil, errval.ErrInternal
	}
	return taskTypes, nil
}

func (s *ServerLogic) GetTaskType(ctx context.Context, id string) (*domain.TaskType, error) {
	tt, err := s.storage.GetTaskTypeByID(ctx, id)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskTypeByID", "error", err)
		return nil, errval.ErrInternal
	}
	return tt, nil
}

// UpdateTaskType never touches the name; it is referenced by claim filters
// and worker configs, so it is immutable after creation.
func (s *ServerLogic) UpdateTaskType(ctx context.Context, id string, req domain.RouterRequestUpdateTaskType) (*domain.TaskType, error) {
	tt, err := s.storage.UpdateTaskType(ctx, id, req.SkillPath, req.ParamSchema)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.UpdateTaskType", "error", err)
		return nil, errval.ErrInternal
	}
	return tt, nil
}

func (s *ServerLogic) DeleteTaskType(ctx context.Context, id string) error {
	err := s.storage.DeleteTaskType(ctx, id)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.DeleteTaskType", "error", err)
		return errval.ErrInternal
	}
	return nil
}

// ==================== Admin tasks ====================

func (s *ServerLogic) CreateTask(ctx context.Context, createdBy string, req domain.RouterRequestCreateTask) (*domain.Task, error) {
	priority := domain.Medium
	if req.Priority != nil {
		priority = domain.TaskPriority(*req.Priority)
	}

	if req.TaskTypeID != nil {
		if _, err := s.GetTaskType(ctx, *req.TaskTypeID); err != nil {
			if errors.Is(err, errval.ErrNotFound) {
				return nil, errval.ErrInvalidArgument
			}
			return nil, err
		}
	}

	task, err := s.storage.InsertTask(ctx, uuid.NewString(), req.TaskTypeID, priority, req.AssignedTo, &createdBy, req.Params)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertTask", "error", err)
		return nil, errval.ErrInternal
	}

	s.publishEvent(domain.EventTaskCreated, task)
	return task, nil
}

func (s *ServerLogic) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.storage.GetTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskByID", "error", err)
		return nil, errval.ErrInternal
	}
	return task, nil
}

func (s *ServerLogic) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	tasks, err := s.storage.ListTasks(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListTasks", "error", err)
		return nil, errval.ErrInternal
	}
	return tasks, nil
}

// AdminUpdateStatus is the administrative slice of the status machine,
// including force-closing tasks that never ran.
func (s *ServerLogic) AdminUpdateStatus(ctx context.Context, taskID string, to domain.TaskStatus, retryIncrement bool) (*domain.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(task.Status, to, domain.RoleAdmin) {
		return nil, errval.ErrInvalidState
	}

	updated, err := s.storage.TransitionTask(ctx, taskID, task.Status, to, retryIncrement, nil)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) || errors.Is(err, errval.ErrInvalidState) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.TransitionTask", "error", err)
		return nil, errval.ErrInternal
	}

	switch to {
	case domain.Completed:
		s.publishEvent(domain.EventTaskCompleted, updated)
	case domain.Failed:
		s.publishEvent(domain.EventTaskFailed, updated)
	}
	return updated, nil
}

func (s *ServerLogic) DeleteTask(ctx context.Context, id string) error {
	err := s.storage.DeleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.DeleteTask", "error", err)
		return errval.ErrInternal
	}
	return nil
}

func (s *ServerLogic) AdminPostUpdate(ctx context.Context, adminID, taskID, content string) (*domain.TaskUpdate, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	update, err := s.storage.InsertTaskUpdate(ctx, uuid.NewString(), taskID, content, adminID)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertTaskUpdate", "error", err)
		return nil, errval.ErrInternal
	}
	return update, nil
}

func (s *ServerLogic) AdminGetUpdates(ctx context.Context, taskID string) ([]*domain.TaskUpdate, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	updates, err := s.storage.ListTaskUpdates(ctx, taskID)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListTaskUpdates", "error", err)
		return nil, errval.ErrInternal
	}
	return updates, nil
}

func (s *ServerLogic) AdminGetTaskData(ctx context.Context, taskID, dataType string, limit, offset int) ([]*domain.TaskDataRow, int, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return nil, 0, err
	}

	rows, total, err := s.storage.GetTaskData(ctx, taskID, dataType, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskData", "error", err)
		return nil, 0, errval.ErrInternal
	}
	return rows, total, nil
}

func (s *ServerLogic) AdminListTaskFiles(ctx context.Context, taskID string, limit, offset int) ([]*domain.TaskFile, int, error) {
	if _, err := s.GetTask(ctx, taskID); err != nil {
		return nil, 0, err
	}

	files, total, err := s.storage.ListTaskFiles(ctx, taskID, limit, offset)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListTaskFiles", "error", err)
		return nil, 0, errval.ErrInternal
	}
	return files, total, nil
}

// AdminDownloadTaskFile returns a presigned URL for a registered object.
func (s *ServerLogic) AdminDownloadTaskFile(ctx context.Context, taskID, fileID string) (url string, expiresAt time.Time, err error) {
	if s.objectStore == nil {
		return "", time.Time{}, errval.ErrUnavailable
	}

	file, err := s.storage.GetTaskFileByID(ctx, taskID, fileID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return "", time.Time{}, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskFileByID", "error", err)
		return "", time.Time{}, errval.ErrInternal
	}

	url, expiresAt, err = s.objectStore.PresignDownload(ctx, file.StorageKey)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while presigning download", "error", err)
		return "", time.Time{}, errval.ErrInternal
	}
	return url, expiresAt, nil
}

// ==================== Admin workers ====================

func (s *ServerLogic) ListWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	workers, err := s.storage.ListWorkers(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while calling storage.ListWorkers", "error", err)
		return nil, errval.ErrInternal
	}

	now := time.Now()
	for _, w := range workers {
		w.ComputeOnline(now)
	}
	return workers, nil
}

func (s *ServerLogic) RegisterWorker(ctx context.Context, req domain.RouterRequestRegisterWorker) (*domain.WorkerInfo, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while hashing password", "error", err)
		return nil, errval.ErrInternal
	}

	worker, err := s.storage.InsertWorker(ctx, uuid.NewString(), req.Email, hash, req.FullName)
	if err != nil {
		if errors.Is(err, errval.ErrConflict) {
			return nil, err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.InsertWorker", "error", err)
		return nil, errval.ErrInternal
	}
	return worker, nil
}

func (s *ServerLogic) DeleteWorker(ctx context.Context, id string) error {
	err := s.storage.RemoveWorker(ctx, id)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return err
		}
		slog.ErrorContext(ctx, "error occurred while calling storage.RemoveWorker", "error", err)
		return errval.ErrInternal
	}
	return nil
}
