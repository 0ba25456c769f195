package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task is the envelope stored on the wire. Args is the task-specific
// payload, marshalled by the producer and decoded by the handler.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a durable task queue over Redis. Ready tasks live in a list
// consumed with BRPOP; retries wait in a sorted set scored by their
// ready time until the scheduler promotes them back onto the list.
type Queue struct {
	client *redis.Client
	prefix string
}

func New(redisURL, prefix string, poolSize int) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}

	return &Queue{
		client: redis.NewClient(opts),
		prefix: prefix,
	}, nil
}

func (q *Queue) pendingKey() string { return q.prefix + ":pending" }
func (q *Queue) delayedKey() string { return q.prefix + ":delayed" }

// Enqueue pushes a new task onto the ready list. Callers must commit
// any rows the task reads before enqueueing.
func (q *Queue) Enqueue(ctx context.Context, name string, args interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal task args: %w", err)
	}

	task := &Task{
		ID:         uuid.New().String(),
		Name:       name,
		Args:       raw,
		EnqueuedAt: time.Now().UTC(),
	}
	return q.push(ctx, task)
}

func (q *Queue) push(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.Name, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next ready task. Returns
// (nil, nil) when the timeout elapses with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	result, err := q.client.BRPop(ctx, timeout, q.pendingKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPOP returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task payload: %w", err)
	}
	return &task, nil
}

// RequeueAt parks the task in the delayed set until the given time.
func (q *Queue) RequeueAt(ctx context.Context, task *Task, at time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	err = q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule retry for task %s: %w", task.Name, err)
	}
	return nil
}

// PromoteDelayed moves every task whose retry time has passed back onto
// the ready list and returns how many were promoted.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	payloads, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed tasks: %w", err)
	}

	promoted := 0
	for _, payload := range payloads {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to claim delayed task: %w", err)
		}
		// Someone else claimed it between the range and the remove.
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pendingKey(), payload).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote delayed task: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// Ping checks Redis connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
