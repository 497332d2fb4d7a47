package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/deadletter"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
)

var (
	// ErrQueueFull is returned when the buffer has no room; the task is
	// dead-lettered instead.
	ErrQueueFull = errors.New("worker: queue full")
	// ErrQueueStopped is returned after Stop.
	ErrQueueStopped = errors.New("worker: queue stopped")
)

// Task is one best-effort unit of work. It is attempted exactly once.
type Task struct {
	Name string
	// Payload is recorded in the dead-letter log when the task fails.
	Payload any
	Run     func(ctx context.Context) error
}

// Config sizes a Queue.
type Config struct {
	Workers     int
	Buffer      int
	TaskTimeout time.Duration
}

// Queue runs tasks on a fixed pool of workers. Failures are logged and
// handed to the dead-letter sink; nothing is retried.
type Queue struct {
	cfg     Config
	sink    deadletter.Sink
	logger  *zap.Logger
	metrics *observability.Metrics

	tasks   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewQueue constructs a Queue; call Start before enqueueing.
func NewQueue(cfg Config, sink deadletter.Sink, logger *zap.Logger, metrics *observability.Metrics) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = deadletter.NewLogSink(logger)
	}
	return &Queue{
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		tasks:   make(chan Task, cfg.Buffer),
	}
}

// Start launches the workers. Tasks still queued when ctx ends are
// drained by Stop.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Enqueue schedules task without blocking.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.tasks <- task:
		q.metrics.Task(task.Name, "enqueued")
		return nil
	default:
		q.deadLetter(ctx, task, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Stop refuses new tasks, finishes the queued ones and waits for workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.tasks)
	started := q.started
	q.mu.Unlock()

	if !started {
		// nobody will drain the buffer; record what was left behind
		for task := range q.tasks {
			q.deadLetter(context.Background(), task, "queue stopped before start")
		}
		return
	}
	q.wg.Wait()
	q.cancel()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(ctx, task)
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, q.cfg.TaskTimeout)
	defer cancel()

	err := safeRun(taskCtx, task)
	if err == nil {
		q.metrics.Task(task.Name, "done")
		return
	}
	q.metrics.Task(task.Name, "failed")
	q.logger.Warn("background task failed", zap.String("task", task.Name), zap.Error(err))
	q.deadLetter(ctx, task, err.Error())
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

func (q *Queue) deadLetter(ctx context.Context, task Task, reason string) {
	var payload []byte
	if task.Payload != nil {
		if encoded, err := json.Marshal(task.Payload); err == nil {
			payload = encoded
		}
	}
	entry := deadletter.Entry{Task: task.Name, Reason: reason, Payload: payload}
	if err := q.sink.Record(context.WithoutCancel(ctx), entry); err != nil {
		q.logger.Error("dead-letter write failed", zap.String("task", task.Name), zap.String("reason", reason), zap.Error(err))
		return
	}
	q.metrics.Task(task.Name, "dead_lettered")
}
