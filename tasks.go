package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskInfo struct {
	ID          string
	Status      ProcessingStatus
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// TaskManager dispatches pipeline runs to a bounded pool of workers.
// Each task runs on a single goroutine; parallelism exists only across
// tasks. Cancellation is honored by not dispatching a task that has not
// started — an in-flight run is never interrupted.
type TaskManager struct {
	mu    sync.Mutex
	tasks map[string]*TaskInfo

	queue chan queuedTask
	wg    sync.WaitGroup
}

type queuedTask struct {
	id string
	fn func(ctx context.Context) error
}

func NewTaskManager(workers int) *TaskManager {
	m := &TaskManager{
		tasks: make(map[string]*TaskInfo),
		queue: make(chan queuedTask, 256),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	log.Printf("task manager started workers=%d", workers)
	return m
}

// Submit queues a task for background execution and returns its ID.
func (m *TaskManager) Submit(fn func(ctx context.Context) error) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.tasks[id] = &TaskInfo{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Unlock()

	m.queue <- queuedTask{id: id, fn: fn}
	return id
}

// Status returns a snapshot of one task.
func (m *TaskManager) Status(id string) (TaskInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tasks[id]
	if !ok {
		return TaskInfo{}, false
	}
	return *info, true
}

// Cancel marks a still-pending task as failed so workers skip it. A task
// that already started cannot be cancelled.
func (m *TaskManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.tasks[id]
	if !ok || info.Status != StatusPending {
		return false
	}
	info.Status = StatusFailed
	info.Error = "task cancelled"
	info.CompletedAt = time.Now().UTC()
	log.Printf("task %s cancelled", id)
	return true
}

// CleanupFinished drops terminal tasks older than maxAge and returns how
// many were removed.
func (m *TaskManager) CleanupFinished(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, info := range m.tasks {
		if (info.Status == StatusCompleted || info.Status == StatusFailed) &&
			!info.CompletedAt.IsZero() && info.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("task manager cleaned up %d finished tasks", removed)
	}
	return removed
}

// Shutdown stops accepting work and waits for in-flight tasks.
func (m *TaskManager) Shutdown() {
	close(m.queue)
	m.wg.Wait()
}

func (m *TaskManager) worker() {
	defer m.wg.Done()
	for task := range m.queue {
		m.run(task)
	}
}

func (m *TaskManager) run(task queuedTask) {
	m.mu.Lock()
	info, ok := m.tasks[task.id]
	if !ok || info.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	info.Status = StatusProcessing
	info.StartedAt = time.Now().UTC()
	m.mu.Unlock()

	err := task.fn(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	info.CompletedAt = time.Now().UTC()
	if err != nil {
		info.Status = StatusFailed
		info.Error = err.Error()
		log.Printf("task %s failed: %v", task.id, err)
		return
	}
	info.Status = StatusCompleted
}
