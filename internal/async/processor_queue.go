package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/internal/common"
)

type ProcessorQueue struct {
	handler Handler
	logger  *zap.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(handler Handler, logger *zap.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &ProcessorQueue{
		handler: handler,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", zap.Int("worker_id", workerID))

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("queue.worker.stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	fields := []zap.Field{
		zap.Int("worker_id", workerID),
		zap.String("session_id", job.SessionID),
		zap.String("kind", string(job.Kind)),
		zap.Uint64("token", uint64(job.Token)),
		zap.String("trace_id", job.TraceID),
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue.job.panic", append(fields, zap.Any("panic", r))...)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithSessionID(ctx, job.SessionID)
	ctx = common.WithRequestID(ctx, job.TraceID)
	start := time.Now()
	err := q.handler.Handle(ctx, job)

	fields = append(fields,
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		zap.Int64("wait_ms", start.Sub(job.SubmittedAt).Milliseconds()))
	if err != nil {
		q.logger.Warn("queue.job.failed", append(fields, zap.Error(err))...)
		return
	}
	q.logger.Debug("queue.job.ok", fields...)
}

// Enqueue never blocks: a full queue is reported so the caller can roll the
// session back instead of stalling an HTTP request.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", zap.String("session_id", job.SessionID))
		return common.NewAppError(common.CodeQueueFull, "queue is shutting down", common.ErrQueueFull)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue.ok",
			zap.String("session_id", job.SessionID),
			zap.String("kind", string(job.Kind)))
		return nil
	default:
		q.logger.Warn("queue.enqueue.full",
			zap.String("session_id", job.SessionID),
			zap.Int("capacity", cap(q.ch)))
		return common.NewAppError(common.CodeQueueFull, common.UserMessage(common.ErrQueueFull), common.ErrQueueFull)
	}
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
