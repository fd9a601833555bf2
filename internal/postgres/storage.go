package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/errval"
)

type storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*storage, error) {
	var pool *pgxpool.Pool
	var err error

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	err = backoff.Retry(func() error {
		if pool, err = pgxpool.ConnectConfig(ctx, config); err != nil {
			slog.ErrorContext(ctx, "failed to connect to postgres database.. retrying...", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping postgres database connection.. retrying...", "error", err)
			return err
		}

		return nil
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5))

	if err != nil {
		return nil, err
	}

	return &storage{pool: pool}, nil
}

func (s *storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// params and result are cast to text on the way out so the JSONB boundary
// type sees identical bytes regardless of wire protocol.
const taskColumns = `id, status, priority, task_type_id, assigned_to, claimed_by,
	params::text, result::text, retry_count, created_by,
	created_at, updated_at, started_at, completed_at`

// priorityRank must stay in sync with domain.PriorityRank.
const priorityRank = `CASE priority
	WHEN 'urgent' THEN 0
	WHEN 'high' THEN 1
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 3
END`

type row interface {
	Scan(dest ...interface{}) error
}

func scanTask(r row, t *domain.Task) error {
	return r.Scan(
		&t.ID, &t.Status, &t.Priority, &t.TaskTypeID, &t.AssignedTo, &t.ClaimedBy,
		&t.Params, &t.Result, &t.RetryCount, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
	)
}

// jsonArg adapts a JSONB payload to a pgtype parameter, mapping "no value"
// to SQL NULL.
func jsonArg(j domain.JSONB) (pgtype.JSON, error) {
	var v pgtype.JSON
	if j == nil {
		v.Status = pgtype.Null
		return v, nil
	}
	if err := v.Set([]byte(j)); err != nil {
		return v, err
	}
	return v, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errval.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return errval.ErrConflict
	}
	return err
}

// ==================== Task types ====================

const taskTypeColumns = `id, name, skill_path, param_schema::text, created_at, updated_at`

func scanTaskType(r row, tt *domain.TaskType) error {
	return r.Scan(&tt.ID, &tt.Name, &tt.SkillPath, &tt.ParamSchema, &tt.CreatedAt, &tt.UpdatedAt)
}

func (s *storage) InsertTaskType(ctx context.Context, name string, skillPath *string, paramSchema domain.JSONB) (*domain.TaskType, error) {
	schema, err := jsonArg(paramSchema)
	if err != nil {
		return nil, err
	}

	var tt domain.TaskType
	err = scanTaskType(s.pool.QueryRow(ctx,
		`INSERT INTO task_types (id, name, skill_path, param_schema)
		 VALUES (gen_random_uuid(), $1, $2, $3)
		 RETURNING `+taskTypeColumns,
		name, skillPath, schema,
	), &tt)
	if err != nil {
		return nil, mapError(err)
	}
	return &tt, nil
}

func (s *storage) ListTaskTypes(ctx context.Context) ([]*domain.TaskType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskTypeColumns+` FROM task_types ORDER BY name ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	taskTypes := []*domain.TaskType{}
	for rows.Next() {
		var tt domain.TaskType
		if err := scanTaskType(rows, &tt); err != nil {
			return nil, err
		}
		taskTypes = append(taskTypes, &tt)
	}
	return taskTypes, rows.Err()
}

func (s *storage) GetTaskTypeByID(ctx context.Context, id string) (*domain.TaskType, error) {
	var tt domain.TaskType
	err := scanTaskType(s.pool.QueryRow(ctx,
		`SELECT `+taskTypeColumns+` FROM task_types WHERE id = $1`, id), &tt)
	if err != nil {
		return nil, mapError(err)
	}
	return &tt, nil
}

func (s *storage) UpdateTaskType(ctx context.Context, id string, skillPath *string, paramSchema domain.JSONB) (*domain.TaskType, error) {
	schema, err := jsonArg(paramSchema)
	if err != nil {
		return nil, err
	}

	var tt domain.TaskType
	err = scanTaskType(s.pool.QueryRow(ctx,
		`UPDATE task_types SET
			skill_path = COALESCE($2, skill_path),
			param_schema = COALESCE($3, param_schema)
		 WHERE id = $1
		 RETURNING `+taskTypeColumns,
		id, skillPath, schema,
	), &tt)
	if err != nil {
		return nil, mapError(err)
	}
	return &tt, nil
}

func (s *storage) DeleteTaskType(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_types WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}
	return nil
}

// ==================== Tasks ====================

func (s *storage) InsertTask(ctx context.Context, id string, taskTypeID *string, priority domain.TaskPriority, assignedTo, createdBy *string, params domain.JSONB) (*domain.Task, error) {
	payload, err := jsonArg(params)
	if err != nil {
		return nil, err
	}

	var t domain.Task
	err = scanTask(s.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, task_type_id, priority, assigned_to, created_by, params)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskColumns,
		id, taskTypeID, priority, assignedTo, createdBy, payload,
	), &t)
	if err != nil {
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

func (s *storage) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	var t domain.Task
	err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id), &t)
	if err != nil {
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

func (s *storage) GetTaskForWorker(ctx context.Context, id, workerID string) (*domain.Task, error) {
	var t domain.Task
	err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE id = $1 AND (assigned_to = $2 OR claimed_by = $2)`,
		id, workerID), &t)
	if err != nil {
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

func (s *storage) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.AssignedTo != nil {
		query += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, *filter.AssignedTo)
		argIdx++
	}
	if filter.TaskTypeName != nil {
		query += fmt.Sprintf(" AND task_type_id = (SELECT id FROM task_types WHERE name = $%d)", argIdx)
		args = append(args, *filter.TaskTypeName)
		argIdx++
	}

	query += " ORDER BY " + priorityRank + ", created_at DESC"

	return s.queryTasks(ctx, query, args...)
}

func (s *storage) ListWorkerTasks(ctx context.Context, workerID string, status *domain.TaskStatus) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE (assigned_to = $1 OR claimed_by = $1)`
	args := []interface{}{workerID}
	if status != nil {
		query += " AND status = $2"
		args = append(args, *status)
	}
	query += " ORDER BY " + priorityRank + ", created_at DESC"

	return s.queryTasks(ctx, query, args...)
}

func (s *storage) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if _, err := s.attachTaskType(ctx, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *storage) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}
	return nil
}

// ClaimNextTask selects the best-ranked pending unassigned row with
// FOR UPDATE SKIP LOCKED and flips it to in_progress in the same statement,
// so concurrent claimers can never observe the row as still pending between
// selection and claim. Rows locked by an in-flight claim are skipped, not
// waited on.
func (s *storage) ClaimNextTask(ctx context.Context, workerID string, taskTypeName *string) (*domain.Task, error) {
	sub := `SELECT id FROM tasks
		WHERE status = 'pending' AND assigned_to IS NULL`
	args := []interface{}{workerID}
	if taskTypeName != nil {
		sub += ` AND task_type_id = (SELECT id FROM task_types WHERE name = $2)`
		args = append(args, *taskTypeName)
	}
	sub += `
		ORDER BY ` + priorityRank + `, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`

	query := `UPDATE tasks SET
			status = 'in_progress',
			claimed_by = $1,
			started_at = NOW()
		WHERE id = (` + sub + `)
		RETURNING ` + taskColumns

	var t domain.Task
	err := scanTask(s.pool.QueryRow(ctx, query, args...), &t)
	if err != nil {
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

// ClaimNextAssignedTask is the worker-scoped variant: same locking
// discipline, candidate set pre-filtered to the caller's assigned tasks.
func (s *storage) ClaimNextAssignedTask(ctx context.Context, workerID string) (*domain.Task, error) {
	query := `UPDATE tasks SET
			status = 'in_progress',
			claimed_by = $1,
			started_at = NOW()
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'pending' AND assigned_to = $1
			ORDER BY ` + priorityRank + `, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + taskColumns

	var t domain.Task
	err := scanTask(s.pool.QueryRow(ctx, query, workerID), &t)
	if err != nil {
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

// TransitionTask applies a status change guarded by a compare-and-swap on
// the expected current status. A lost race surfaces as ErrInvalidState,
// not a silent overwrite.
func (s *storage) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, incrRetry bool, workerID *string) (*domain.Task, error) {
	eff := domain.EffectsFor(to, incrRetry)

	set := []string{"status = $1"}
	if eff.SetStartedAt {
		set = append(set, "started_at = NOW()")
	}
	if eff.SetCompletedAt {
		set = append(set, "completed_at = NOW()")
	}
	if eff.ClearProgress {
		set = append(set, "started_at = NULL", "completed_at = NULL", "claimed_by = NULL")
	}
	if eff.IncrementRetry {
		set = append(set, "retry_count = retry_count + 1")
	}

	where := "id = $2 AND status = $3"
	args := []interface{}{to, id, from}
	if workerID != nil {
		where += " AND (claimed_by = $4 OR assigned_to = $4)"
		args = append(args, *workerID)
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE %s RETURNING %s`,
		strings.Join(set, ", "), where, taskColumns)

	var t domain.Task
	err := scanTask(s.pool.QueryRow(ctx, query, args...), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyMiss(ctx, id, workerID)
		}
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

func (s *storage) SetTaskResult(ctx context.Context, id string, result domain.JSONB, workerID *string) (*domain.Task, error) {
	payload, err := jsonArg(result)
	if err != nil {
		return nil, err
	}

	where := "id = $2 AND status = 'in_progress'"
	args := []interface{}{payload, id}
	if workerID != nil {
		where += " AND (claimed_by = $3 OR assigned_to = $3)"
		args = append(args, *workerID)
	}

	var t domain.Task
	err = scanTask(s.pool.QueryRow(ctx,
		`UPDATE tasks SET result = $1 WHERE `+where+` RETURNING `+taskColumns,
		args...), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.classifyMiss(ctx, id, workerID)
		}
		return nil, mapError(err)
	}
	return s.attachTaskType(ctx, &t)
}

// classifyMiss distinguishes "row is in the wrong state" from "row is not
// visible to this caller" after a guarded update matched nothing.
func (s *storage) classifyMiss(ctx context.Context, id string, workerID *string) error {
	query := `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1`
	args := []interface{}{id}
	if workerID != nil {
		query += ` AND (claimed_by = $2 OR assigned_to = $2)`
		args = append(args, *workerID)
	}
	query += `)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return mapError(err)
	}
	if exists {
		return errval.ErrInvalidState
	}
	return errval.ErrNotFound
}

func (s *storage) attachTaskType(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	if t.TaskTypeID == nil {
		return t, nil
	}
	tt, err := s.GetTaskTypeByID(ctx, *t.TaskTypeID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			return t, nil
		}
		return nil, err
	}
	t.TaskType = tt
	return t, nil
}

// ==================== Task data ====================

// BulkInsertTaskData inserts a batch inside one transaction; duplicates on
// the (task_id, data_type, external_id) key are skipped via ON CONFLICT,
// which is what makes a crashed-and-resubmitted batch converge.
func (s *storage) BulkInsertTaskData(ctx context.Context, taskID, dataType string, items []domain.TaskDataItem) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("Error occurred while rolling back transaction", "error", err.Error())
		}
	}()

	inserted := 0
	for _, item := range items {
		payload, err := jsonArg(item.Payload)
		if err != nil {
			return 0, err
		}
		collectedAt := time.Now().UTC()
		if item.CollectedAt != nil {
			collectedAt = *item.CollectedAt
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO task_data (task_id, data_type, external_id, payload, collected_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (task_id, data_type, external_id) WHERE external_id IS NOT NULL
			 DO NOTHING`,
			taskID, dataType, item.ExternalID, payload, collectedAt)
		if err != nil {
			return 0, mapError(err)
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapError(err)
	}
	return inserted, nil
}

func (s *storage) GetTaskData(ctx context.Context, taskID, dataType string, limit, offset int) ([]*domain.TaskDataRow, int, error) {
	where := "WHERE task_id = $1"
	args := []interface{}{taskID}
	argIdx := 2

	if dataType != "" {
		where += fmt.Sprintf(" AND data_type = $%d", argIdx)
		args = append(args, dataType)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM task_data "+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := fmt.Sprintf(`SELECT id, task_id, data_type, external_id, payload::text, collected_at, created_at
		FROM task_data %s
		ORDER BY collected_at DESC
		LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	results := []*domain.TaskDataRow{}
	for rows.Next() {
		var r domain.TaskDataRow
		if err := rows.Scan(&r.ID, &r.TaskID, &r.DataType, &r.ExternalID, &r.Payload, &r.CollectedAt, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, &r)
	}
	return results, total, rows.Err()
}

// ==================== Task files ====================

const taskFileColumns = `id, task_id, filename, storage_key, content_type, size_bytes, uploaded_by, created_at`

func scanTaskFile(r row, f *domain.TaskFile) error {
	return r.Scan(&f.ID, &f.TaskID, &f.Filename, &f.StorageKey, &f.ContentType, &f.SizeBytes, &f.UploadedBy, &f.CreatedAt)
}

func (s *storage) InsertTaskFile(ctx context.Context, id, taskID, filename, storageKey, contentType string, sizeBytes int64, uploadedBy string) (*domain.TaskFile, error) {
	var f domain.TaskFile
	err := scanTaskFile(s.pool.QueryRow(ctx,
		`INSERT INTO task_files (id, task_id, filename, storage_key, content_type, size_bytes, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskFileColumns,
		id, taskID, filename, storageKey, contentType, sizeBytes, uploadedBy,
	), &f)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (s *storage) ListTaskFiles(ctx context.Context, taskID string, limit, offset int) ([]*domain.TaskFile, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_files WHERE task_id = $1`, taskID).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskFileColumns+` FROM task_files
		 WHERE task_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		taskID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	files := []*domain.TaskFile{}
	for rows.Next() {
		var f domain.TaskFile
		if err := scanTaskFile(rows, &f); err != nil {
			return nil, 0, err
		}
		files = append(files, &f)
	}
	return files, total, rows.Err()
}

func (s *storage) GetTaskFileByID(ctx context.Context, taskID, fileID string) (*domain.TaskFile, error) {
	var f domain.TaskFile
	err := scanTaskFile(s.pool.QueryRow(ctx,
		`SELECT `+taskFileColumns+` FROM task_files WHERE task_id = $1 AND id = $2`,
		taskID, fileID), &f)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

// ==================== Task updates ====================

func (s *storage) InsertTaskUpdate(ctx context.Context, id, taskID, content, createdBy string) (*domain.TaskUpdate, error) {
	var u domain.TaskUpdate
	err := s.pool.QueryRow(ctx,
		`INSERT INTO task_updates (id, task_id, content, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, task_id, content, created_by, created_at`,
		id, taskID, content, createdBy,
	).Scan(&u.ID, &u.TaskID, &u.Content, &u.CreatedBy, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *storage) ListTaskUpdates(ctx context.Context, taskID string) ([]*domain.TaskUpdate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.task_id, u.content, u.created_by,
			COALESCE(usr.full_name, 'Unknown') AS created_by_name,
			u.created_at
		 FROM task_updates u
		 LEFT JOIN users usr ON usr.id = u.created_by
		 WHERE u.task_id = $1
		 ORDER BY u.created_at ASC`,
		taskID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	updates := []*domain.TaskUpdate{}
	for rows.Next() {
		var u domain.TaskUpdate
		if err := rows.Scan(&u.ID, &u.TaskID, &u.Content, &u.CreatedBy, &u.CreatedByName, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}

// ==================== Users and liveness ====================

func (s *storage) GetUserAuthByEmail(ctx context.Context, email string) (*domain.UserAuth, error) {
	var u domain.UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, full_name, password_hash, is_admin, is_worker, is_active
		 FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsAdmin, &u.IsWorker, &u.IsActive)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *storage) RecordLogin(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID)
	return mapErrorNil(err)
}

// VerifyWorker checks the worker flag and refreshes last_activity_at in a
// single statement; every authenticated worker action lands here.
func (s *storage) VerifyWorker(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_activity_at = NOW()
		 WHERE id = $1 AND is_worker = TRUE AND is_active = TRUE`,
		userID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *storage) ListWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.full_name, u.last_login_at, u.last_activity_at, u.created_at,
			COALESCE((SELECT COUNT(*) FROM tasks t WHERE t.assigned_to = u.id), 0) AS task_count
		 FROM users u
		 WHERE u.is_worker = TRUE AND u.is_active = TRUE
		 ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	workers := []*domain.WorkerInfo{}
	for rows.Next() {
		var w domain.WorkerInfo
		if err := rows.Scan(&w.ID, &w.Email, &w.FullName, &w.LastLoginAt, &w.LastActivityAt, &w.CreatedAt, &w.TaskCount); err != nil {
			return nil, err
		}
		workers = append(workers, &w)
	}
	return workers, rows.Err()
}

func (s *storage) InsertWorker(ctx context.Context, id, email, passwordHash, fullName string) (*domain.WorkerInfo, error) {
	var w domain.WorkerInfo
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, is_worker)
		 VALUES ($1, $2, $3, $4, TRUE)
		 RETURNING id, email, full_name, last_login_at, last_activity_at, created_at`,
		id, email, passwordHash, fullName,
	).Scan(&w.ID, &w.Email, &w.FullName, &w.LastLoginAt, &w.LastActivityAt, &w.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &w, nil
}

func (s *storage) RemoveWorker(ctx context.Context, id string) error {
	// Clears the worker flag only; the account and its history survive.
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_worker = FALSE WHERE id = $1 AND is_worker = TRUE`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return errval.ErrNotFound
	}
	return nil
}

// ==================== Recovery ====================

func (s *storage) GetStaleInProgressTasks(ctx context.Context, olderThanSeconds int64, limit int32) ([]*domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'in_progress' AND started_at < NOW() - make_interval(secs => $1)
		 ORDER BY started_at ASC
		 LIMIT $2`,
		olderThanSeconds, limit)
}

func mapErrorNil(err error) error {
	if err == nil {
		return nil
	}
	return mapError(err)
}
