package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// Task is one unit of downstream work: a persisted reading awaiting
// prediction and alert evaluation.
type Task struct {
	Reading *model.SensorReading
	Sensor  *model.Sensor
}

// ProcessFunc handles one task. Errors must be fully absorbed by the
// implementation; the dispatcher only logs what escapes.
type ProcessFunc func(ctx context.Context, task Task)

// Dispatcher is the explicit handoff between the synchronous write path and
// asynchronous prediction/alerting: a bounded queue drained by a worker
// pool with its own error boundary. A full queue drops the task (counted
// and logged by the caller) instead of blocking the write.
type Dispatcher struct {
	queue   chan Task
	process ProcessFunc
	workers int
	logger  *slog.Logger

	// mu guards stopped so Enqueue never races with the queue close in
	// Stop: sends happen under RLock, the close under Lock.
	mu      sync.RWMutex
	stopped bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewDispatcher creates a dispatcher with the given queue capacity and
// worker count.
func NewDispatcher(queueSize, workers int, process ProcessFunc, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:   make(chan Task, queueSize),
		process: process,
		workers: workers,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for n := 0; n < d.workers; n++ {
		d.wg.Add(1)
		go d.worker(n)
	}
	d.logger.Info("Pipeline dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Enqueue submits a task without blocking. Returns false when the queue is
// full or the dispatcher has been stopped.
func (d *Dispatcher) Enqueue(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return false
	}
	select {
	case d.queue <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight work to drain. Tasks
// already dispatched complete or fail independently; nothing is
// force-aborted. Enqueue calls after Stop are refused, not panicked.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()

		d.wg.Wait()
		d.cancel()
		d.logger.Info("Pipeline dispatcher stopped")
	})
}

// Pending returns the number of queued tasks.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()

	for task := range d.queue {
		d.runOne(n, task)
	}
}

// runOne is the error boundary for one task: a panicking processor must
// never take down the pool or affect sibling sensors.
func (d *Dispatcher) runOne(worker int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Pipeline task panicked",
				"worker", worker,
				"sensor_id", task.Sensor.ID,
				"reading_id", task.Reading.ID,
				"panic", r)
		}
	}()

	d.process(d.baseCtx, task)
}
