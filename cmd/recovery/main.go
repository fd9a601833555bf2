package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/easildur24/investorcenter.ai-sub015/configs"
	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/postgres"
	"github.com/easildur24/investorcenter.ai-sub015/internal/redis"
)

// staleTaskStore is the slice of storage the recovery sweep needs.
type staleTaskStore interface {
	GetStaleInProgressTasks(ctx context.Context, olderThanSeconds int64, limit int32) ([]*domain.Task, error)
	TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, incrRetry bool, workerID *string) (*domain.Task, error)
}

// sweep releases tasks stuck in_progress longer than pastSeconds back to
// pending. The distributed lock keeps concurrent runs from double-sweeping;
// a run that cannot acquire it exits quietly with zero releases.
func sweep(ctx context.Context, storage staleTaskStore, lock domain.DistributedLock, cfg configs.RecoveryConfig, pastSeconds int64, limit int32) (int, error) {
	isLocked, err := lock.Lock(cfg.LockKey, time.Duration(cfg.LockSeconds)*time.Second)
	if err != nil {
		slog.Error("Error occurred while locking the recovery key", "lock_key", cfg.LockKey, "error", err.Error())
		return 0, err
	}
	if !isLocked {
		slog.Info("Another recovery sweep is already running, exiting...", "lock_key", cfg.LockKey)
		return 0, nil
	}
	defer func() {
		err = lock.Unlock(cfg.LockKey)
		if err != nil {
			slog.Error("Error while unlocking locked key", "lock_key", cfg.LockKey, "err", err.Error())
		}
	}()

	slog.Info("Fetching stale in_progress tasks", "past_seconds_threshold", pastSeconds, "limit", limit)
	staleTasks, err := storage.GetStaleInProgressTasks(ctx, pastSeconds, limit)
	if err != nil {
		slog.Error("Error occurred while fetching stale tasks", "error", err.Error())
		return 0, err
	}
	slog.Info("Stale tasks are fetched", "fetched_items_count", len(staleTasks))

	releasedCount := 0
	for _, task := range staleTasks {
		_, err := storage.TransitionTask(ctx, task.ID, domain.InProgress, domain.Pending, true, nil)
		if err != nil {
			// The task moved on its own between fetch and release; skip it
			slog.Error("Error occurred while releasing stale task", "task_id", task.ID, "error", err.Error())
			continue
		}
		slog.Info("Stale task released back to pending", "task_id", task.ID, "retry_count", task.RetryCount+1)
		releasedCount++
	}

	slog.Info("Recovery sweep finished", "stale_tasks_count", len(staleTasks), "released_count", releasedCount)
	return releasedCount, nil
}

func main() {
	cfg := configs.InitConfig()
	args := os.Args
	if len(args) < 3 {
		log.Fatal("Insufficient arguments are provided in calling the command, usage: recovery <past_seconds> <limit>")
		return
	}

	// Tasks whose started_at is older than pastSeconds are considered stale
	pastSecondsStr := args[1]
	pastSeconds, err := strconv.ParseInt(pastSecondsStr, 10, 64)
	if err != nil {
		log.Fatalf("Invalid input is given for the pastSeconds arg, it must be an integer, provided: %s", pastSecondsStr)
		return
	}

	// Maximum number of tasks to release in one sweep
	limitStr := args[2]
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		log.Fatalf("Invalid input is given for the limit arg, it must be an integer, provided: %s", limitStr)
		return
	}

	ctx := context.Background()
	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Postgres connection has been initialized successfully")

	var lock domain.DistributedLock
	lock, err = redis.NewClient(ctx, cfg.Redis.ToRedisConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		err = lock.Close()
		if err != nil {
			slog.Error("An error occurred while closing Redis connection", "error", err.Error())
		}
	}()
	slog.Info("Redis connection has been initialized successfully")

	_, _ = sweep(ctx, storage, lock, cfg.Recovery, pastSeconds, int32(limit))
}
