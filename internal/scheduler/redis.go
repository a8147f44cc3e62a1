package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"spritegen/internal/infra"
)

const (
	defaultQueueName  = "spritegen:tasks"
	defaultPopTimeout = 2 * time.Second
	errorBackoff      = time.Second
)

// RedisOptions configures a RedisQueue.
type RedisOptions struct {
	Client     *redis.Client
	Name       string
	PopTimeout time.Duration
	Logger     *infra.Logger
}

// RedisQueue is a Dispatcher backed by a Redis list. Producers LPUSH and
// consumers BRPOP, so tasks are handled in enqueue order.
type RedisQueue struct {
	client     *redis.Client
	name       string
	popTimeout time.Duration
	logger     *infra.Logger
}

// NewRedisQueue wires a queue on an existing client.
func NewRedisQueue(opts RedisOptions) (*RedisQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("scheduler: redis client is required")
	}
	name := opts.Name
	if name == "" {
		name = defaultQueueName
	}
	timeout := opts.PopTimeout
	if timeout < time.Second {
		timeout = defaultPopTimeout
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &RedisQueue{client: opts.Client, name: name, popTimeout: timeout, logger: logger}, nil
}

// Enqueue pushes the task onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("scheduler: encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("scheduler: push task: %w", err)
	}
	return nil
}

// Len reports how many tasks are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

// Consume pops tasks until ctx is done and runs handler for each one.
// Malformed payloads are logged and dropped; handler errors are logged.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	q.logger.Info().Str("queue", q.name).Msg("scheduler: consuming")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := q.client.BRPop(ctx, q.popTimeout, q.name).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error().Err(err).Msg("scheduler: pop failed")
			if !sleep(ctx, errorBackoff) {
				return ctx.Err()
			}
			continue
		}
		// BRPOP answers [key, value]
		if len(res) != 2 {
			continue
		}
		task, err := decodeTask(res[1])
		if err != nil {
			q.logger.Warn().Err(err).Str("payload", res[1]).Msg("scheduler: dropping malformed task")
			continue
		}
		run(ctx, q.logger, handler, task)
	}
}

func decodeTask(payload string) (Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return Task{}, fmt.Errorf("scheduler: decode task: %w", err)
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}

func run(ctx context.Context, logger *infra.Logger, handler Handler, task Task) {
	started := time.Now()
	log := logger.With().Str("task", string(task.Kind)).Str("job_id", task.JobID).Str("scene_id", task.SceneID).Logger()
	if err := handler(ctx, task); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("scheduler: task failed")
		return
	}
	log.Debug().Dur("elapsed", time.Since(started)).Msg("scheduler: task done")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
