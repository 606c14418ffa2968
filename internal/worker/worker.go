// Package worker runs the job consumption loop. One worker process owns one
// queue and processes one message at a time: pull, run the stage handler
// under a soft time limit, then acknowledge. A hard time limit exits the
// process so the supervisor restarts it and the message is redelivered.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/cmoscardi/textbook-tts/internal/observability"
	"github.com/cmoscardi/textbook-tts/internal/queue"
)

// Handler processes one delivered message to a terminal job state.
type Handler func(ctx context.Context, msg queue.Message) error

// Delivery is one in-flight message the worker can acknowledge.
type Delivery interface {
	Message() queue.Message
	Ack(ctx context.Context) error
}

// Source supplies messages to the worker.
type Source interface {
	RecoverOrphans(ctx context.Context) (int, error)
	Dequeue(ctx context.Context, wait time.Duration) (Delivery, error)
}

// Options configures a worker.
type Options struct {
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	PollInterval  time.Duration
	// Exit replaces os.Exit in tests.
	Exit func(code int)
}

// Worker consumes a queue and dispatches messages to a handler.
type Worker struct {
	logger  *observability.Logger
	source  Source
	handler Handler
	opts    Options
}

// New creates a worker over the given source.
func New(logger *observability.Logger, source Source, handler Handler, opts Options) *Worker {
	if opts.SoftTimeLimit == 0 {
		opts.SoftTimeLimit = 600 * time.Second
	}
	if opts.HardTimeLimit == 0 {
		opts.HardTimeLimit = 900 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}

	return &Worker{
		logger:  logger,
		source:  source,
		handler: handler,
		opts:    opts,
	}
}

// Run consumes messages until ctx is cancelled. Messages left in this
// consumer's processing list by a previous crash are requeued first.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.source.RecoverOrphans(ctx); err != nil {
		return err
	}

	w.logger.Info().
		Dur("soft_time_limit", w.opts.SoftTimeLimit).
		Dur("hard_time_limit", w.opts.HardTimeLimit).
		Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopping")
			return nil
		default:
		}

		delivery, err := w.source.Dequeue(ctx, w.opts.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("Worker stopping")
				return nil
			}
			w.logger.Error().Err(err).Msg("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}

		w.process(ctx, delivery)
	}
}

// process runs one message. The handler gets a context that expires at the
// soft limit, giving it a window to fail the job and clean up. If the
// handler has still not returned at the hard limit, the process exits; the
// unacknowledged message is recovered on restart.
func (w *Worker) process(ctx context.Context, delivery Delivery) {
	msg := delivery.Message()
	log := w.logger.With().
		Str("job_id", msg.JobID.String()).
		Str("kind", string(msg.Kind)).
		Logger()

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.SoftTimeLimit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.handler(jobCtx, msg)
	}()

	hardDeadline := time.NewTimer(w.opts.HardTimeLimit)
	defer hardDeadline.Stop()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Job handler returned error")
		}
	case <-hardDeadline.C:
		log.Error().
			Dur("hard_time_limit", w.opts.HardTimeLimit).
			Msg("Hard time limit exceeded, exiting for supervisor restart")
		w.opts.Exit(1)
		return
	}

	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer ackCancel()
	if err := delivery.Ack(ackCtx); err != nil {
		// The message will be requeued at next startup and the handler
		// is idempotent, so log and move on.
		log.Error().Err(err).Msg("Failed to acknowledge message")
	}
}
