package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrNonRetryable marks a business failure that must not be retried;
// the job goes straight to the dead-letter sink.
var ErrNonRetryable = errors.New("non-retryable job error")

// ErrQueueClosed is returned by Enqueue after Stop has begun.
var ErrQueueClosed = errors.New("queue is closed")

// Job is one unit of background work with a typed payload.
type Job struct {
	ID       uuid.UUID
	Type     string
	Payload  json.RawMessage
	Attempts int
}

// Handler processes one job payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// FailureHook runs after a job of its type has failed terminally,
// before it is dead-lettered.
type FailureHook func(ctx context.Context, payload json.RawMessage, cause error)

type handlerEntry struct {
	fn        Handler
	onFailure FailureHook
}

// Options tune the worker pool.
type Options struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// Queue is an in-process typed job queue: a buffered channel drained by
// a worker pool, with exponential-backoff retries and a dead-letter
// sink for terminal failures.
type Queue struct {
	jobs        chan Job
	handlers    map[string]handlerEntry
	deadLetters repository.FailedJobRepository
	logger      *zap.Logger
	opts        Options

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a queue. Register handlers before calling Start.
func New(opts Options, deadLetters repository.FailedJobRepository, logger *zap.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	return &Queue{
		jobs:        make(chan Job, opts.BufferSize),
		handlers:    make(map[string]handlerEntry),
		deadLetters: deadLetters,
		logger:      logger,
		opts:        opts,
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (q *Queue) Register(jobType string, handler Handler) {
	q.RegisterWithFailure(jobType, handler, nil)
}

// RegisterWithFailure additionally installs a hook that runs when a job
// of this type fails terminally, before it is dead-lettered.
func (q *Queue) RegisterWithFailure(jobType string, handler Handler, onFailure FailureHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handlerEntry{fn: handler, onFailure: onFailure}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.baseCtx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	q.logger.Info("Job queue started",
		zap.Int("workers", q.opts.Workers),
		zap.Int("buffer", q.opts.BufferSize),
	)
}

// Enqueue marshals the payload and submits a job. It never blocks the
// caller indefinitely: a full buffer dead-letters the job immediately.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{ID: uuid.New(), Type: jobType, Payload: raw}

	// The lock is held across the send so Stop cannot close the channel
	// between the closed check and the send. The send never blocks, so
	// holding the lock here is cheap.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.mu.Unlock()
		q.logger.Debug("Job enqueued", zap.String("job_id", job.ID.String()), zap.String("type", jobType))
		return nil
	default:
		q.mu.Unlock()
		q.deadLetter(ctx, job, errors.New("queue buffer full"))
		return fmt.Errorf("queue buffer full, job dead-lettered: %s", jobType)
	}
}

// Stop refuses new jobs, drains the buffer and waits for the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
	q.logger.Info("Job queue stopped")
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		q.process(job)
	}
}

func (q *Queue) process(job Job) {
	q.mu.Lock()
	entry, ok := q.handlers[job.Type]
	q.mu.Unlock()

	if !ok {
		q.deadLetter(q.baseCtx, job, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	backoff := retry.WithMaxRetries(uint64(q.opts.MaxRetries-1), retry.NewExponential(200*time.Millisecond))

	err := retry.Do(q.baseCtx, backoff, func(ctx context.Context) error {
		job.Attempts++
		if err := entry.fn(ctx, job.Payload); err != nil {
			if errors.Is(err, ErrNonRetryable) {
				return err
			}
			q.logger.Warn("Job attempt failed",
				zap.String("job_id", job.ID.String()),
				zap.String("type", job.Type),
				zap.Int("attempt", job.Attempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		if entry.onFailure != nil {
			entry.onFailure(q.baseCtx, job.Payload, err)
		}
		q.deadLetter(q.baseCtx, job, err)
		return
	}

	q.logger.Debug("Job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
	)
}

func (q *Queue) deadLetter(ctx context.Context, job Job, cause error) {
	q.logger.Error("Job failed terminally",
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
		zap.Error(cause),
	)

	if q.deadLetters == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	failed := &repository.FailedJob{
		ID:       job.ID,
		JobType:  job.Type,
		Payload:  job.Payload,
		Error:    cause.Error(),
		Attempts: job.Attempts,
		FailedAt: time.Now(),
	}
	if err := q.deadLetters.Insert(ctx, failed); err != nil {
		q.logger.Error("Failed to record dead-lettered job", zap.Error(err))
	}
}
