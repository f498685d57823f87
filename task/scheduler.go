package task

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/isolate"
)

// Scheduler feeds tasks to a fixed pool of worker goroutines. Schedule
// is runtime thread only; the workers never touch runtime values.
type Scheduler struct {
	iso *isolate.Isolate
	log *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Task
	closed  bool

	wg      sync.WaitGroup
	workers int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the worker pool size. Values below one are clamped.
func WithWorkers(n int) Option {
	return func(sc *Scheduler) {
		if n < 1 {
			n = 1
		}
		sc.workers = n
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(log *zap.Logger) Option {
	return func(sc *Scheduler) {
		sc.log = log
	}
}

// NewScheduler creates a scheduler for iso and starts its workers. The
// default pool size is the machine's logical CPU count.
func NewScheduler(iso *isolate.Isolate, opts ...Option) *Scheduler {
	sc := &Scheduler{
		iso:     iso,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.log == nil {
		sc.log = isolate.Logger()
	}
	sc.cond = sync.NewCond(&sc.mu)

	sc.wg.Add(sc.workers)
	for i := 0; i < sc.workers; i++ {
		go sc.worker()
	}
	sc.log.Debug("task scheduler started", zap.Int("workers", sc.workers))
	return sc
}

// Schedule captures the callback and current realm, then queues the
// task for a worker. Runtime thread only. The callback fires exactly
// once unless the isolate terminates before delivery.
func (sc *Scheduler) Schedule(s *isolate.Scope, callback isolate.Local, work any, perform PerformFunc, complete CompleteFunc) (*Task, error) {
	if perform == nil || complete == nil {
		return nil, errors.InvalidInput(errors.PhaseTask, "task requires perform and complete")
	}
	if !callback.IsFunction() {
		return nil, errors.NotCallable(callback.TypeOf().String())
	}
	iso := s.Isolate()

	t := &Task{
		sched:    sc,
		work:     work,
		perform:  perform,
		complete: complete,
		callback: iso.Persist(callback),
		realm:    iso.CurrentRealm(),
	}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		t.callback.Dispose()
		return nil, errors.Closed(errors.PhaseTask, "scheduler")
	}
	sc.pending = append(sc.pending, t)
	sc.mu.Unlock()
	sc.cond.Signal()
	return t, nil
}

// Close stops intake and waits for the workers to drain the queue.
// Tasks already scheduled still run and deliver; new Schedule calls
// fail. Safe to call from any goroutine, but not from the runtime
// thread while deliveries are outstanding, since those need the loop.
func (sc *Scheduler) Close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	sc.mu.Unlock()
	sc.cond.Broadcast()
	sc.wg.Wait()
	sc.log.Debug("task scheduler stopped")
	return nil
}

func (sc *Scheduler) worker() {
	defer sc.wg.Done()
	for {
		sc.mu.Lock()
		for len(sc.pending) == 0 && !sc.closed {
			sc.cond.Wait()
		}
		if len(sc.pending) == 0 {
			sc.mu.Unlock()
			return
		}
		t := sc.pending[0]
		sc.pending = sc.pending[1:]
		sc.mu.Unlock()

		t.run()
	}
}
