package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/errval"
)

// fakeStorage is an in-memory Storage with the same visible semantics as
// the SQL layer: rank-then-age claim order, compare-and-swap transitions,
// dedup-key skips on bulk insert.
type fakeStorage struct {
	mu sync.Mutex

	pingErr error

	taskTypes map[string]*domain.TaskType
	tasks     map[string]*domain.Task
	dataRows  map[string][]*domain.TaskDataRow
	dedupKeys map[string]bool
	files     map[string][]*domain.TaskFile
	updates   map[string][]*domain.TaskUpdate
	users     map[string]*fakeUser

	nextDataID int64
	clock      time.Time
}

type fakeUser struct {
	domain.UserAuth
	lastLoginAt    *time.Time
	lastActivityAt *time.Time
	createdAt      time.Time
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		taskTypes: map[string]*domain.TaskType{},
		tasks:     map[string]*domain.Task{},
		dataRows:  map[string][]*domain.TaskDataRow{},
		dedupKeys: map[string]bool{},
		files:     map[string][]*domain.TaskFile{},
		updates:   map[string][]*domain.TaskUpdate{},
		users:     map[string]*fakeUser{},
		clock:     time.Now().Add(-time.Hour),
	}
}

// tick returns a strictly increasing timestamp so FIFO ordering within a
// priority is deterministic.
func (f *fakeStorage) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStorage) addUser(u domain.UserAuth) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &fakeUser{UserAuth: u, createdAt: f.tick()}
}

func (f *fakeStorage) Ping(ctx context.Context) error { return f.pingErr }

// ==================== Task types ====================

func (f *fakeStorage) InsertTaskType(ctx context.Context, name string, skillPath *string, paramSchema domain.JSONB) (*domain.TaskType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tt := range f.taskTypes {
		if tt.Name == name {
			return nil, errval.ErrConflict
		}
	}
	now := f.tick()
	tt := &domain.TaskType{
		ID:          fmt.Sprintf("tt-%d", len(f.taskTypes)+1),
		Name:        name,
		SkillPath:   skillPath,
		ParamSchema: paramSchema,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.taskTypes[tt.ID] = tt
	return tt, nil
}

func (f *fakeStorage) ListTaskTypes(ctx context.Context) ([]*domain.TaskType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.TaskType{}
	for _, tt := range f.taskTypes {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStorage) GetTaskTypeByID(ctx context.Context, id string) (*domain.TaskType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.taskTypes[id]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return tt, nil
}

func (f *fakeStorage) UpdateTaskType(ctx context.Context, id string, skillPath *string, paramSchema domain.JSONB) (*domain.TaskType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tt, ok := f.taskTypes[id]
	if !ok {
		return nil, errval.ErrNotFound
	}
	if skillPath != nil {
		tt.SkillPath = skillPath
	}
	if paramSchema != nil {
		tt.ParamSchema = paramSchema
	}
	tt.UpdatedAt = f.tick()
	return tt, nil
}

func (f *fakeStorage) DeleteTaskType(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.taskTypes[id]; !ok {
		return errval.ErrNotFound
	}
	delete(f.taskTypes, id)
	return nil
}

func (f *fakeStorage) taskTypeByName(name string) *domain.TaskType {
	for _, tt := range f.taskTypes {
		if tt.Name == name {
			return tt
		}
	}
	return nil
}

// ==================== Tasks ====================

func (f *fakeStorage) InsertTask(ctx context.Context, id string, taskTypeID *string, priority domain.TaskPriority, assignedTo, createdBy *string, params domain.JSONB) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	t := &domain.Task{
		ID:         id,
		Status:     domain.Pending,
		Priority:   priority,
		TaskTypeID: taskTypeID,
		AssignedTo: assignedTo,
		CreatedBy:  createdBy,
		Params:     params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if taskTypeID != nil {
		t.TaskType = f.taskTypes[*taskTypeID]
	}
	f.tasks[id] = t
	return t, nil
}

func (f *fakeStorage) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, errval.ErrNotFound
	}
	return t, nil
}

func visibleTo(t *domain.Task, workerID string) bool {
	if t.AssignedTo != nil && *t.AssignedTo == workerID {
		return true
	}
	if t.ClaimedBy != nil && *t.ClaimedBy == workerID {
		return true
	}
	return false
}

func (f *fakeStorage) GetTaskForWorker(ctx context.Context, id, workerID string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || !visibleTo(t, workerID) {
		return nil, errval.ErrNotFound
	}
	return t, nil
}

func (f *fakeStorage) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range f.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.TaskTypeName != nil {
			tt := f.taskTypeByName(*filter.TaskTypeName)
			if tt == nil || t.TaskTypeID == nil || *t.TaskTypeID != tt.ID {
				continue
			}
		}
		out = append(out, t)
	}
	sortTasksNewestFirst(out)
	return out, nil
}

func (f *fakeStorage) ListWorkerTasks(ctx context.Context, workerID string, status *domain.TaskStatus) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range f.tasks {
		if !visibleTo(t, workerID) {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	sortTasksNewestFirst(out)
	return out, nil
}

func sortTasksNewestFirst(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		ri, rj := domain.PriorityRank(tasks[i].Priority), domain.PriorityRank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

func (f *fakeStorage) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return errval.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStorage) claim(workerID string, candidate func(*domain.Task) bool) (*domain.Task, error) {
	var best *domain.Task
	for _, t := range f.tasks {
		if t.Status != domain.Pending || !candidate(t) {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		ri, rb := domain.PriorityRank(t.Priority), domain.PriorityRank(best.Priority)
		if ri < rb || (ri == rb && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, errval.ErrNotFound
	}
	now := f.tick()
	best.Status = domain.InProgress
	best.ClaimedBy = &workerID
	best.StartedAt = &now
	best.UpdatedAt = now
	return best, nil
}

func (f *fakeStorage) ClaimNextTask(ctx context.Context, workerID string, taskTypeName *string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var typeID *string
	if taskTypeName != nil {
		tt := f.taskTypeByName(*taskTypeName)
		if tt == nil {
			return nil, errval.ErrNotFound
		}
		typeID = &tt.ID
	}
	return f.claim(workerID, func(t *domain.Task) bool {
		if t.AssignedTo != nil {
			return false
		}
		if typeID != nil && (t.TaskTypeID == nil || *t.TaskTypeID != *typeID) {
			return false
		}
		return true
	})
}

func (f *fakeStorage) ClaimNextAssignedTask(ctx context.Context, workerID string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claim(workerID, func(t *domain.Task) bool {
		return t.AssignedTo != nil && *t.AssignedTo == workerID
	})
}

func (f *fakeStorage) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, incrRetry bool, workerID *string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || (workerID != nil && !visibleTo(t, *workerID)) {
		return nil, errval.ErrNotFound
	}
	if t.Status != from {
		return nil, errval.ErrInvalidState
	}

	eff := domain.EffectsFor(to, incrRetry)
	now := f.tick()
	t.Status = to
	t.UpdatedAt = now
	if eff.SetStartedAt {
		t.StartedAt = &now
	}
	if eff.SetCompletedAt {
		t.CompletedAt = &now
	}
	if eff.ClearProgress {
		t.StartedAt = nil
		t.CompletedAt = nil
		t.ClaimedBy = nil
	}
	if eff.IncrementRetry {
		t.RetryCount++
	}
	return t, nil
}

func (f *fakeStorage) SetTaskResult(ctx context.Context, id string, result domain.JSONB, workerID *string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || (workerID != nil && !visibleTo(t, *workerID)) {
		return nil, errval.ErrNotFound
	}
	if t.Status != domain.InProgress {
		return nil, errval.ErrInvalidState
	}
	t.Result = result
	t.UpdatedAt = f.tick()
	return t, nil
}

// ==================== Task data ====================

func (f *fakeStorage) BulkInsertTaskData(ctx context.Context, taskID, dataType string, items []domain.TaskDataItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, item := range items {
		if item.ExternalID != nil {
			key := taskID + "|" + dataType + "|" + *item.ExternalID
			if f.dedupKeys[key] {
				continue
			}
			f.dedupKeys[key] = true
		}
		f.nextDataID++
		collectedAt := f.tick()
		if item.CollectedAt != nil {
			collectedAt = *item.CollectedAt
		}
		f.dataRows[taskID] = append(f.dataRows[taskID], &domain.TaskDataRow{
			ID:          f.nextDataID,
			TaskID:      taskID,
			DataType:    dataType,
			ExternalID:  item.ExternalID,
			Payload:     item.Payload,
			CollectedAt: collectedAt,
			CreatedAt:   f.clock,
		})
		inserted++
	}
	return inserted, nil
}

func (f *fakeStorage) GetTaskData(ctx context.Context, taskID, dataType string, limit, offset int) ([]*domain.TaskDataRow, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := []*domain.TaskDataRow{}
	for _, r := range f.dataRows[taskID] {
		if dataType != "" && r.DataType != dataType {
			continue
		}
		rows = append(rows, r)
	}
	total := len(rows)
	if offset >= len(rows) {
		return []*domain.TaskDataRow{}, total, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, total, nil
}

// ==================== Task files ====================

func (f *fakeStorage) InsertTaskFile(ctx context.Context, id, taskID, filename, storageKey, contentType string, sizeBytes int64, uploadedBy string) (*domain.TaskFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &domain.TaskFile{
		ID:          id,
		TaskID:      taskID,
		Filename:    filename,
		StorageKey:  storageKey,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		UploadedBy:  &uploadedBy,
		CreatedAt:   f.tick(),
	}
	f.files[taskID] = append(f.files[taskID], file)
	return file, nil
}

func (f *fakeStorage) ListTaskFiles(ctx context.Context, taskID string, limit, offset int) ([]*domain.TaskFile, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := f.files[taskID]
	total := len(files)
	if offset >= len(files) {
		return []*domain.TaskFile{}, total, nil
	}
	files = files[offset:]
	if limit < len(files) {
		files = files[:limit]
	}
	return files, total, nil
}

func (f *fakeStorage) GetTaskFileByID(ctx context.Context, taskID, fileID string) (*domain.TaskFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files[taskID] {
		if file.ID == fileID {
			return file, nil
		}
	}
	return nil, errval.ErrNotFound
}

// ==================== Task updates ====================

func (f *fakeStorage) InsertTaskUpdate(ctx context.Context, id, taskID, content, createdBy string) (*domain.TaskUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &domain.TaskUpdate{
		ID:        id,
		TaskID:    taskID,
		Content:   content,
		CreatedBy: &createdBy,
		CreatedAt: f.tick(),
	}
	f.updates[taskID] = append(f.updates[taskID], u)
	return u, nil
}

func (f *fakeStorage) ListTaskUpdates(ctx context.Context, taskID string) ([]*domain.TaskUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.TaskUpdate{}, f.updates[taskID]...), nil
}

// ==================== Users and liveness ====================

func (f *fakeStorage) GetUserAuthByEmail(ctx context.Context, email string) (*domain.UserAuth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			auth := u.UserAuth
			return &auth, nil
		}
	}
	return nil, errval.ErrNotFound
}

func (f *fakeStorage) RecordLogin(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		now := f.tick()
		u.lastLoginAt = &now
	}
	return nil
}

func (f *fakeStorage) VerifyWorker(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || !u.IsWorker || !u.IsActive {
		return false, nil
	}
	now := time.Now()
	u.lastActivityAt = &now
	return true, nil
}

func (f *fakeStorage) ListWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.WorkerInfo{}
	for _, u := range f.users {
		if !u.IsWorker || !u.IsActive {
			continue
		}
		taskCount := 0
		for _, t := range f.tasks {
			if t.AssignedTo != nil && *t.AssignedTo == u.ID {
				taskCount++
			}
		}
		out = append(out, &domain.WorkerInfo{
			ID:             u.ID,
			Email:          u.Email,
			FullName:       u.FullName,
			LastLoginAt:    u.lastLoginAt,
			LastActivityAt: u.lastActivityAt,
			CreatedAt:      u.createdAt,
			TaskCount:      taskCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStorage) InsertWorker(ctx context.Context, id, email, passwordHash, fullName string) (*domain.WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return nil, errval.ErrConflict
		}
	}
	f.users[id] = &fakeUser{
		UserAuth: domain.UserAuth{
			ID:           id,
			Email:        email,
			FullName:     fullName,
			PasswordHash: passwordHash,
			IsWorker:     true,
			IsActive:     true,
		},
		createdAt: f.tick(),
	}
	return &domain.WorkerInfo{ID: id, Email: email, FullName: fullName, CreatedAt: f.clock}, nil
}

func (f *fakeStorage) RemoveWorker(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !u.IsWorker {
		return errval.ErrNotFound
	}
	u.IsWorker = false
	return nil
}

// ==================== Recovery ====================

func (f *fakeStorage) GetStaleInProgressTasks(ctx context.Context, olderThanSeconds int64, limit int32) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	out := []*domain.Task{}
	for _, t := range f.tasks {
		if t.Status == domain.InProgress && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeQueue records published lifecycle events.
type fakeQueue struct {
	mu     sync.Mutex
	events []domain.TaskEvent
}

func (q *fakeQueue) IsHealthy() bool { return true }

func (q *fakeQueue) PublishMessage(queue, body string) error { return nil }

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) PublishEvent(queue string, e domain.TaskEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
	return nil
}

func (q *fakeQueue) eventNames() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := []string{}
	for _, e := range q.events {
		names = append(names, e.Event)
	}
	return names
}

// fakeObjectStore answers existence probes and presign requests without S3.
type fakeObjectStore struct {
	existing map[string]bool
}

func (o *fakeObjectStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	return o.existing[key], nil
}

func (o *fakeObjectStore) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	return "https://files.test/" + key + "?sig=abc", time.Now().Add(15 * time.Minute), nil
}
