package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/easildur24/investorcenter.ai-sub015/configs"
	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
	"github.com/easildur24/investorcenter.ai-sub015/internal/errval"
)

type fakeLock struct {
	alreadyHeld bool
	locked      bool
	unlocked    bool
}

func (l *fakeLock) Ping(ctx context.Context) error { return nil }

func (l *fakeLock) Lock(lockKey string, lockTimeDuration time.Duration) (bool, error) {
	if l.alreadyHeld {
		return false, nil
	}
	l.locked = true
	return true, nil
}

func (l *fakeLock) Unlock(lockKey string) error {
	l.unlocked = true
	return nil
}

func (l *fakeLock) Close() error { return nil }

type fakeStaleStore struct {
	stale       []*domain.Task
	fetchCalled bool
	released    []string
	movedOn     map[string]bool
}

func (s *fakeStaleStore) GetStaleInProgressTasks(ctx context.Context, olderThanSeconds int64, limit int32) ([]*domain.Task, error) {
	s.fetchCalled = true
	return s.stale, nil
}

func (s *fakeStaleStore) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, incrRetry bool, workerID *string) (*domain.Task, error) {
	if s.movedOn[id] {
		return nil, errval.ErrInvalidState
	}
	s.released = append(s.released, id)
	return &domain.Task{ID: id, Status: to}, nil
}

func staleTask(id string) *domain.Task {
	return &domain.Task{ID: id, Status: domain.InProgress}
}

func testRecoveryConfig() configs.RecoveryConfig {
	return configs.RecoveryConfig{LockKey: "lock:task_recovery", LockSeconds: 60}
}

func TestSweep_ReleasesStaleTasks(t *testing.T) {
	store := &fakeStaleStore{stale: []*domain.Task{staleTask("task-1"), staleTask("task-2")}}
	lock := &fakeLock{}

	released, err := sweep(context.Background(), store, lock, testRecoveryConfig(), 900, 100)
	assert.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, []string{"task-1", "task-2"}, store.released)
	assert.True(t, lock.locked)
	assert.True(t, lock.unlocked, "lock is released after the run")
}

func TestSweep_ExitsWhenLockIsHeld(t *testing.T) {
	store := &fakeStaleStore{stale: []*domain.Task{staleTask("task-1")}}
	lock := &fakeLock{alreadyHeld: true}

	released, err := sweep(context.Background(), store, lock, testRecoveryConfig(), 900, 100)
	assert.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.False(t, store.fetchCalled, "a run without the lock must not touch storage")
}

func TestSweep_SkipsTasksThatMovedOn(t *testing.T) {
	store := &fakeStaleStore{
		stale:   []*domain.Task{staleTask("task-1"), staleTask("task-2"), staleTask("task-3")},
		movedOn: map[string]bool{"task-2": true},
	}
	lock := &fakeLock{}

	released, err := sweep(context.Background(), store, lock, testRecoveryConfig(), 900, 100)
	assert.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, []string{"task-1", "task-3"}, store.released)
}
