package worker

import (
	"context"
	"time"

	"github.com/cmoscardi/textbook-tts/internal/queue"
)

// queueSource adapts a queue.Queue to the Source interface.
type queueSource struct {
	q *queue.Queue
}

// FromQueue wraps a Redis queue as a worker Source.
func FromQueue(q *queue.Queue) Source {
	return queueSource{q: q}
}

func (s queueSource) RecoverOrphans(ctx context.Context) (int, error) {
	return s.q.RecoverOrphans(ctx)
}

func (s queueSource) Dequeue(ctx context.Context, wait time.Duration) (Delivery, error) {
	d, err := s.q.Dequeue(ctx, wait)
	if err != nil || d == nil {
		return nil, err
	}
	return d, nil
}
