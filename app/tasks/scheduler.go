package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout      = 2 * time.Minute
	defaultRetryBase = time.Second
	maxRetryDelay    = 30 * time.Second
)

type Scheduler struct {
	warmer      FeedWarmer
	channels    []string
	interval    time.Duration
	workerCount int
	retryBase   time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

// NewScheduler builds a scheduler that keeps the result cache warm. Each tick
// refreshes the default listing and, when several channels are configured,
// every single-channel listing. A zero interval disables the ticker; queued
// tasks are still executed.
func NewScheduler(warmer FeedWarmer, channels []string, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount < 1 {
		workerCount = 1
	}

	return &Scheduler{
		warmer:      warmer,
		channels:    channels,
		interval:    interval,
		workerCount: workerCount,
		retryBase:   defaultRetryBase,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 100),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.interval <= 0 {
		slog.Debug("Cache warmup disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueWarmupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueWarmupTasks()
			}
		}
	}()
}

// Stop cancels running tasks and waits for the workers to exit. The queue is
// left open so a late EnqueueTask fails on the context instead of panicking.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueWarmup queues a refresh of every listing the scheduler maintains.
func (s *Scheduler) EnqueueWarmup() []TaskInterface {
	return s.enqueueWarmupTasks()
}

func (s *Scheduler) enqueueWarmupTasks() []TaskInterface {
	targets := []string{""}
	if len(s.channels) > 1 {
		targets = append(targets, s.channels...)
	}

	slog.Debug("Enqueueing warmup tasks", "count", len(targets))

	var queued []TaskInterface
	for _, channel := range targets {
		task := NewWarmFeedTask(channel, s.warmer)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue WarmFeedTask", "target", task.GetTarget(), "error", err)
			continue
		}
		queued = append(queued, task)
	}
	return queued
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	task.Finish(err)
	if err == nil {
		slog.Info("Task completed", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "duration", task.GetDuration().String())
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", task.GetLastError())
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryBase * time.Duration(1<<uint(task.GetRetryCount()-1))
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
