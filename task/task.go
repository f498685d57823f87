package task

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/isolate"
)

// State tracks a task through its lifecycle. Transitions are one-way.
type State int32

const (
	StatePending   State = iota // scheduled, not yet picked up
	StateExecuting              // perform running on a worker
	StateCompleted              // perform finished, delivery queued
	StateDelivered              // callback invoked (or delivery abandoned)
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateDelivered:
		return "delivered"
	default:
		return "invalid"
	}
}

// PerformFunc is the off-thread half of a task. It must not touch
// runtime values; it sees only the opaque work payload and returns a
// raw result.
type PerformFunc func(work any) any

// CompleteFunc is the on-thread half: it converts the raw result into a
// runtime value inside s. Returning an error routes it into the
// callback's error argument instead of a result; a thrown script value
// carried in the error is delivered as-is.
type CompleteFunc func(s *isolate.Scope, work, result any) (isolate.Local, error)

// Task is one unit of scheduled background work. The scheduler owns it
// from Schedule until the callback has been invoked; after delivery the
// task's handles are released and it is inert.
type Task struct {
	sched    *Scheduler
	work     any
	result   any
	perform  PerformFunc
	complete CompleteFunc
	callback isolate.Persistent
	realm    *isolate.Realm
	state    atomic.Int32
}

// State returns the task's current lifecycle state. Safe from any
// goroutine.
func (t *Task) State() State {
	return State(t.state.Load())
}

// run executes on a worker goroutine.
func (t *Task) run() {
	t.state.Store(int32(StateExecuting))
	t.result = t.perform(t.work)
	t.state.Store(int32(StateCompleted))

	if err := t.sched.iso.Post(t.deliver); err != nil {
		// The isolate is gone; its shutdown already released every
		// outstanding handle. The callback is never invoked.
		t.state.Store(int32(StateDelivered))
		t.sched.log.Warn("task delivery abandoned, isolate terminated",
			zap.Error(err))
	}
}

// deliver runs on the runtime thread. It re-enters the realm captured
// at schedule time, converts the result, and invokes the callback with
// (null, value) on success or (error, undefined) on failure.
func (t *Task) deliver() {
	iso := t.sched.iso
	s := iso.OpenScope()
	defer s.Close()

	prev := iso.EnterRealm(t.realm)
	defer iso.EnterRealm(prev)

	cb, ok := t.callback.Load(s)
	t.callback.Dispose()
	t.state.Store(int32(StateDelivered))
	if !ok {
		t.sched.log.Warn("task callback handle empty at delivery")
		return
	}

	var errArg, resArg isolate.Local
	res, err := t.complete(s, t.work, t.result)
	if err != nil {
		if thrown, caught := isolate.CaughtValue(err, s); caught {
			errArg = thrown
		} else {
			errArg = s.Error(err.Error())
		}
		resArg = s.Undefined()
	} else {
		errArg = s.Null()
		if res.IsEmpty() {
			res = s.Undefined()
		}
		resArg = res
	}

	if _, err := cb.Call(s.Global(), errArg, resArg); err != nil {
		t.sched.log.Error("task callback failed", zap.Error(err))
	}
}
