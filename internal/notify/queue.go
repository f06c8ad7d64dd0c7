package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// task is a unit of delivery work
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// queue runs delivery tasks on a fixed worker pool. Enqueue never blocks: when
// the buffer is full the task runs on its own goroutine instead.
type queue struct {
	tasks       chan task
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	mu       sync.RWMutex
	started  bool
	shutdown bool
}

func newQueue(workerCount, buffer int, logger *zap.Logger) *queue {
	if workerCount <= 0 {
		workerCount = 4
	}
	if buffer <= 0 {
		buffer = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &queue{
		tasks:       make(chan task, buffer),
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// start launches the worker pool
func (q *queue) start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.started = true
}

func (q *queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(id, t)
		}
	}
}

// run executes a task with panic recovery
func (q *queue) run(worker int, t task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("observer panicked",
				zap.Int("worker", worker),
				zap.String("task", t.name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := t.fn(q.ctx); err != nil {
		q.logger.Warn("observer failed",
			zap.Int("worker", worker),
			zap.String("task", t.name),
			zap.Error(err),
		)
	}
}

// enqueue schedules t and reports whether it was accepted
func (q *queue) enqueue(t task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.started || q.shutdown {
		return false
	}

	select {
	case q.tasks <- t:
	default:
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(-1, t)
		}()
	}
	return true
}

// stopAccepting closes the queue to new tasks and waits for queued ones
func (q *queue) stopAccepting() {
	q.mu.Lock()
	if !q.started || q.shutdown {
		q.shutdown = true
		q.mu.Unlock()
		return
	}
	q.shutdown = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

// stop cancels in-flight work without draining
func (q *queue) stop() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
