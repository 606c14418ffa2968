// Package queue implements the job queue on Redis lists. Producers LPUSH
// onto a pending list; consumers atomically move a message to a
// per-consumer processing list and remove it only after the job has fully
// completed or failed, so a crash mid-job leaves the message recoverable.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cmoscardi/textbook-tts/internal/observability"
)

// Kind identifies which pipeline stage a message targets.
type Kind string

const (
	KindParse   Kind = "parse"
	KindConvert Kind = "convert"
)

// Message is the queue payload. Jobs carry IDs only; all state lives in the
// database.
type Message struct {
	JobID      uuid.UUID `json:"job_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Kind       Kind      `json:"kind"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Connect creates a Redis client and verifies the connection.
func Connect(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// Queue is one named job queue with a per-consumer processing list.
type Queue struct {
	client     *redis.Client
	logger     *observability.Logger
	name       string
	processing string
}

// New creates a queue handle. consumer names this process; each consumer
// gets its own processing list so orphan recovery only touches its own
// in-flight messages.
func New(client *redis.Client, logger *observability.Logger, name, consumer string) *Queue {
	return &Queue{
		client:     client,
		logger:     logger,
		name:       name,
		processing: name + ":processing:" + consumer,
	}
}

// Name returns the pending list key.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue pushes a message onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue on %s: %w", q.name, err)
	}

	q.logger.Debug().
		Str("queue", q.name).
		Str("job_id", msg.JobID.String()).
		Msg("Message enqueued")
	return nil
}

// Dequeue blocks up to wait for a message, moving it atomically to the
// processing list. Returns nil with no error when the wait elapses empty.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue from %s: %w", q.name, err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// A malformed payload would redeliver forever; drop it.
		q.client.LRem(ctx, q.processing, 1, raw)
		return nil, fmt.Errorf("unmarshal queue message: %w", err)
	}

	return &Delivery{msg: msg, raw: raw, q: q}, nil
}

// RecoverOrphans moves any messages left on this consumer's processing list
// back onto the pending list. Called at startup so work lost to a crash or
// hard-limit exit is redelivered.
func (q *Queue) RecoverOrphans(ctx context.Context) (int, error) {
	recovered := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.name, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("recover from %s: %w", q.processing, err)
		}
		recovered++
	}

	if recovered > 0 {
		q.logger.Info().
			Str("queue", q.name).
			Int("count", recovered).
			Msg("Recovered orphaned messages")
	}
	return recovered, nil
}

// Depth returns the number of pending messages.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth for %s: %w", q.name, err)
	}
	return n, nil
}

// Delivery is one in-flight message. Ack removes it from the processing
// list once the job has reached a terminal state.
type Delivery struct {
	msg Message
	raw string
	q   *Queue
}

// Message returns the delivered payload.
func (d *Delivery) Message() Message {
	return d.msg
}

// Ack removes the message from the processing list.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.q.client.LRem(ctx, d.q.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack on %s: %w", d.q.processing, err)
	}
	return nil
}
