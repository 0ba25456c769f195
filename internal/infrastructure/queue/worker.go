package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/quillsign/quillsign/pkg/logger"
)

// Handler executes one task. The context carries the per-task deadline.
type Handler func(ctx context.Context, args json.RawMessage) error

// RetryPolicy decides what happens after a handler fails. RetryOn nil
// means every error is retryable up to MaxRetries.
type RetryPolicy struct {
	MaxRetries int
	RetryOn    func(error) bool
}

// RetryAlways retries any error up to max attempts.
func RetryAlways(max int) RetryPolicy {
	return RetryPolicy{MaxRetries: max}
}

// NoRetry drops the task after the first failure.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

const (
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 5 * time.Minute
	dequeueTimeout = 5 * time.Second
	promoteEvery   = time.Second
)

// Backoff returns the delay before the given retry attempt, doubling
// from the base and capped at the maximum.
func Backoff(attempts int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

type registration struct {
	handler Handler
	policy  RetryPolicy
}

// Worker consumes tasks with a pool of goroutines plus one scheduler
// that promotes due retries back onto the ready list.
type Worker struct {
	queue       *Queue
	logger      *logger.Logger
	concurrency int
	taskTimeout time.Duration

	mu       sync.Mutex
	handlers map[string]registration
}

func NewWorker(queue *Queue, log *logger.Logger, concurrency int, taskTimeout time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		logger:      log,
		concurrency: concurrency,
		taskTimeout: taskTimeout,
		handlers:    make(map[string]registration),
	}
}

// Register binds a task name to its handler and retry policy.
func (w *Worker) Register(name string, handler Handler, policy RetryPolicy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = registration{handler: handler, policy: policy}
}

// Run blocks until ctx is cancelled, then drains the in-flight tasks.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue task", "consumer", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *Task) {
	w.mu.Lock()
	reg, ok := w.handlers[task.Name]
	w.mu.Unlock()
	if !ok {
		w.logger.Error("no handler registered for task", "task", task.Name, "id", task.ID)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	start := time.Now()
	err := reg.handler(taskCtx, task.Args)
	if err == nil {
		w.logger.Info("task completed",
			"task", task.Name, "id", task.ID, "duration", time.Since(start).String())
		return
	}

	retryable := reg.policy.RetryOn == nil || reg.policy.RetryOn(err)
	if !retryable || task.Attempts >= reg.policy.MaxRetries {
		w.logger.Error("task failed permanently",
			"task", task.Name, "id", task.ID, "attempts", task.Attempts, "error", err)
		return
	}

	task.Attempts++
	delay := Backoff(task.Attempts)
	w.logger.Warn("task failed, scheduling retry",
		"task", task.Name, "id", task.ID, "attempt", task.Attempts, "delay", delay.String(), "error", err)

	// The worker context may already be cancelled; the retry still has
	// to make it into Redis or the task is lost.
	requeueCtx, requeueCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer requeueCancel()
	if err := w.queue.RequeueAt(requeueCtx, task, time.Now().Add(delay)); err != nil {
		w.logger.Error("failed to schedule retry", "task", task.Name, "id", task.ID, "error", err)
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("failed to promote delayed tasks", "error", err)
			}
		}
	}
}
