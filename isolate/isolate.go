package isolate

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
)

// Isolate is one runtime instance: a value heap, its rooting scopes and
// persistent handles, realms, and the job loop that serializes every
// operation touching runtime values onto a single dedicated goroutine.
//
// All methods except Post, Exec, and Close must run on the runtime
// goroutine (the one executing Run), typically inside a posted job.
type Isolate struct {
	log *zap.Logger

	// Heap and rooting state. Runtime goroutine only.
	cells   []cell
	free    []Ref
	scopes  []*Scope
	persist []persistEntry
	slots   []slotEntry
	realms  []*Realm
	current *Realm

	// Job queue shared with producer goroutines. loopStarted marks the
	// single owner of shutdown: the first of Run and Close to claim it
	// under mu tears the isolate down, the other waits on loopDone.
	mu          sync.Mutex
	jobs        []func()
	terminated  bool
	loopStarted bool

	wake     chan struct{}
	loopDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Isolate.
type Option func(*Isolate)

// WithLogger sets the logger used for isolate lifecycle events.
func WithLogger(log *zap.Logger) Option {
	return func(iso *Isolate) {
		iso.log = log
	}
}

// New creates an isolate with one default realm. The caller owns the
// runtime thread: call Run on a dedicated goroutine, then interact
// through Post or Exec.
func New(opts ...Option) *Isolate {
	iso := &Isolate{
		cells:    make([]cell, 0, 64),
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(iso)
	}
	if iso.log == nil {
		iso.log = Logger()
	}
	iso.current = iso.NewRealm("default")
	return iso
}

// Run executes the job loop until Close is called. It blocks, and the
// goroutine that calls it becomes the runtime thread. If Close claimed
// the isolate first, Run performs no work and reports the termination.
func (iso *Isolate) Run() error {
	iso.mu.Lock()
	if iso.loopStarted {
		iso.mu.Unlock()
		<-iso.loopDone
		return errors.Terminated()
	}
	iso.loopStarted = true
	iso.mu.Unlock()

	for {
		iso.mu.Lock()
		jobs := iso.jobs
		iso.jobs = nil
		term := iso.terminated
		iso.mu.Unlock()

		for _, job := range jobs {
			job()
		}

		if term {
			iso.shutdown()
			close(iso.loopDone)
			return nil
		}
		if len(jobs) == 0 {
			<-iso.wake
		}
	}
}

// Post enqueues fn onto the runtime thread. Safe to call from any
// goroutine. Jobs posted before Close is observed still run; Post fails
// with a terminated error afterwards.
func (iso *Isolate) Post(fn func()) error {
	iso.mu.Lock()
	if iso.terminated {
		iso.mu.Unlock()
		return errors.Terminated()
	}
	iso.jobs = append(iso.jobs, fn)
	iso.mu.Unlock()
	iso.signal()
	return nil
}

// Exec posts fn onto the runtime thread and waits for it to finish,
// returning fn's error. It must not be called from the runtime thread
// itself: a job waiting on the loop it runs on deadlocks.
func (iso *Isolate) Exec(fn func() error) error {
	done := make(chan struct{})
	var err error
	if postErr := iso.Post(func() {
		defer close(done)
		err = fn()
	}); postErr != nil {
		return postErr
	}
	<-done
	return err
}

// Close terminates the isolate: remaining jobs drain, data slot
// teardowns run in reverse registration order, outstanding weak
// finalizers fire, and the loop exits. Safe to call from any goroutine,
// idempotent.
func (iso *Isolate) Close() error {
	iso.closeOnce.Do(func() {
		iso.mu.Lock()
		iso.terminated = true
		owner := !iso.loopStarted
		if owner {
			// Claim the loop so a late Run cannot tear down twice.
			iso.loopStarted = true
		}
		iso.mu.Unlock()

		if owner {
			iso.shutdown()
			close(iso.loopDone)
		} else {
			iso.signal()
			<-iso.loopDone
		}
	})
	return iso.closeErr
}

func (iso *Isolate) signal() {
	select {
	case iso.wake <- struct{}{}:
	default:
	}
}

// shutdown runs on the runtime thread as the loop's final act.
func (iso *Isolate) shutdown() {
	iso.log.Debug("isolate shutting down",
		zap.Int("live_cells", iso.LiveCount()),
		zap.Int("slots", len(iso.slots)))

	var errs error

	// Slot teardowns, reverse registration order.
	for i := len(iso.slots) - 1; i >= 0; i-- {
		s := iso.slots[i]
		if s.used && s.teardown != nil {
			errs = multierr.Append(errs, s.teardown(s.value))
		}
	}
	iso.slots = nil

	// Outstanding weak finalizers fire exactly as if their targets had
	// been collected, so foreign internals are always released.
	for i := range iso.persist {
		e := &iso.persist[i]
		if e.valid && e.weak && e.finalizer != nil && e.ref != 0 {
			fin := e.finalizer
			e.finalizer = nil
			e.ref = 0
			fin()
		}
	}
	iso.persist = nil
	iso.cells = nil
	iso.free = nil
	iso.scopes = nil

	iso.closeErr = multierr.Append(iso.closeErr, errs)
}

// SetSlot stores a value in an isolate data slot with an optional
// teardown invoked at isolate shutdown. Replacing an occupied slot runs
// the previous teardown first. Runtime thread only.
func (iso *Isolate) SetSlot(key uint32, value any, teardown func(any) error) {
	for i := range iso.slots {
		s := &iso.slots[i]
		if s.used && s.key == key {
			if s.teardown != nil {
				_ = s.teardown(s.value)
			}
			s.value = value
			s.teardown = teardown
			return
		}
	}
	iso.slots = append(iso.slots, slotEntry{
		key:      key,
		value:    value,
		teardown: teardown,
		used:     true,
	})
}

// Slot retrieves a data slot value. Runtime thread only.
func (iso *Isolate) Slot(key uint32) (any, bool) {
	for i := range iso.slots {
		s := &iso.slots[i]
		if s.used && s.key == key {
			return s.value, true
		}
	}
	return nil, false
}

type slotEntry struct {
	value    any
	teardown func(any) error
	key      uint32
	used     bool
}

// InitModule is the module boundary: it opens a scope, creates the
// module's export object, forwards it with the opaque kernel to init,
// and publishes the exports on the current realm's global under name.
func (iso *Isolate) InitModule(name string, kernel any, init func(*Scope, Local, any) error) error {
	return iso.Nested(func(s *Scope) error {
		exports := s.Object()
		if err := init(s, exports, kernel); err != nil {
			return errors.Wrap(errors.PhaseModule, errors.KindInvalidInput, err, "module init")
		}
		if _, err := s.Global().Set(name, exports); err != nil {
			return err
		}
		return nil
	})
}
