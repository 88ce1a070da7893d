package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list holding pending processing jobs.
const DefaultQueueName = "ocrcheck:jobs"

// RedisQueue is a Redis list used as a job queue: LPUSH to enqueue, blocking
// BRPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, addr, password string, db int, name string) (*RedisQueue, error) {
	if name == "" {
		name = DefaultQueueName
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisQueue{client: client, name: name}, nil
}

// Dequeue blocks up to timeout for the next job. A quiet queue returns
// (nil, nil); a malformed payload returns an error so the caller can log and
// move on.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop %s: %w", q.name, err)
	}
	// BRPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
