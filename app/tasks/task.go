package tasks

import (
	"context"
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTypeWarmFeed TaskType = "warm_feed"
)

const (
	DefaultMaxRetries = 3
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetTarget() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	Finish(err error)
	GetDuration() time.Duration
	GetLastError() string
}

// Task holds the bookkeeping shared by every task type: what it targets,
// how often it has been retried and how its last attempt went.
type Task struct {
	ID         string
	Type       TaskType
	Target     string
	QueuedAt   time.Time
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
	Duration   time.Duration
	LastError  string
}

func NewTask(taskType TaskType, target string) Task {
	queuedAt := time.Now()

	return Task{
		ID:         fmt.Sprintf("%s-%s-%d", taskType, target, queuedAt.UnixNano()),
		Type:       taskType,
		Target:     target,
		QueuedAt:   queuedAt,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

// GetTarget names the listing the task works on, for logging.
func (t *Task) GetTarget() string {
	return t.Target
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// Start marks the beginning of an attempt.
func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.Duration = 0
}

// Finish records the outcome of the current attempt. A nil err clears the
// error left by an earlier attempt.
func (t *Task) Finish(err error) {
	if t.StartedAt != nil {
		t.Duration = time.Since(*t.StartedAt)
	}
	t.LastError = ""
	if err != nil {
		t.LastError = err.Error()
	}
}

// GetDuration returns how long the finished attempt took, or the time spent
// so far while it is running.
func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	if t.Duration > 0 {
		return t.Duration
	}
	return time.Since(*t.StartedAt)
}

func (t *Task) GetLastError() string {
	return t.LastError
}
