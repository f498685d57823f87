package event

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/isolate"
)

// HandlerFunc runs on the runtime thread with the handler's pinned
// receiver and callback loaded into s, plus the closure passed to
// Schedule.
type HandlerFunc func(s *isolate.Scope, self, callback isolate.Local, closure any)

type item struct {
	closure any
	fn      HandlerFunc
}

// Handler bridges foreign threads to a script callback. It pins self
// and callback behind persistent handles at creation; Schedule may then
// be called from any goroutine. Items run on the runtime thread in
// schedule order. Close stops intake and releases the pinned handles
// once the queue drains.
type Handler struct {
	iso *isolate.Isolate
	log *zap.Logger

	mu             sync.Mutex
	pending        []item
	signaled       bool
	closeRequested bool
	released       bool

	self     isolate.Persistent
	callback isolate.Persistent
	realm    *isolate.Realm
	done     chan struct{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// NewHandler pins self and callback and returns a handler ready for
// cross-thread scheduling. Runtime thread only.
func NewHandler(s *isolate.Scope, self, callback isolate.Local, opts ...Option) (*Handler, error) {
	if !callback.IsFunction() {
		return nil, errors.NotCallable(callback.TypeOf().String())
	}
	iso := s.Isolate()
	h := &Handler{
		iso:   iso,
		realm: iso.CurrentRealm(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = isolate.Logger()
	}
	if self.IsEmpty() {
		h.self = iso.NewPersistent()
	} else {
		h.self = iso.Persist(self)
	}
	h.callback = iso.Persist(callback)
	return h, nil
}

// Schedule queues fn to run on the runtime thread with the pinned
// handles and closure. Safe from any goroutine. Wakeups coalesce: many
// schedules may share one drain pass. Fails once Close has been
// requested or the isolate has terminated.
func (h *Handler) Schedule(closure any, fn HandlerFunc) error {
	h.mu.Lock()
	if h.closeRequested {
		h.mu.Unlock()
		return errors.Closed(errors.PhaseEvent, "event handler")
	}
	h.pending = append(h.pending, item{closure: closure, fn: fn})
	wake := !h.signaled
	h.signaled = true
	h.mu.Unlock()

	if wake {
		if err := h.iso.Post(h.drain); err != nil {
			h.abandon()
			return err
		}
	}
	return nil
}

// abandon runs when a wakeup post failed because the isolate
// terminated: no drain will ever run, so the queue is dropped and the
// signal cleared. If a close raced in while signaled was set, it relied
// on this drain; finish its release here so Done still closes. The
// isolate's shutdown already tore the heap down, so there are no
// handles left to dispose.
func (h *Handler) abandon() {
	h.mu.Lock()
	h.pending = nil
	h.signaled = false
	closing := h.closeRequested && !h.released
	if closing {
		h.released = true
	}
	h.mu.Unlock()

	if closing {
		close(h.done)
	}
}

// Close stops intake. Items scheduled before Close still run; the
// pinned handles are released and Done closes after the queue drains.
// Closing twice is a programmer error and panics. Safe from any
// goroutine.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closeRequested {
		h.mu.Unlock()
		panic("event: handler closed twice")
	}
	h.closeRequested = true
	wake := !h.signaled
	h.signaled = true
	h.mu.Unlock()

	if wake {
		if err := h.iso.Post(h.drain); err != nil {
			h.abandon()
			return err
		}
	}
	return nil
}

// Done closes once the handler has released its pinned handles.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// drain runs on the runtime thread. It swaps out and runs batches
// until the queue stays empty, then releases the handler if a close
// was requested.
func (h *Handler) drain() {
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.signaled = false
			closing := h.closeRequested && !h.released
			if closing {
				h.released = true
			}
			h.mu.Unlock()
			if closing {
				h.release()
			}
			return
		}
		batch := h.pending
		h.pending = nil
		h.mu.Unlock()

		h.runBatch(batch)
	}
}

func (h *Handler) runBatch(batch []item) {
	iso := h.iso
	s := iso.OpenScope()
	defer s.Close()

	prev := iso.EnterRealm(h.realm)
	defer iso.EnterRealm(prev)

	self, ok := h.self.Load(s)
	if !ok {
		self = s.Undefined()
	}
	cb, ok := h.callback.Load(s)
	if !ok {
		h.log.Warn("event handler callback handle empty, dropping batch",
			zap.Int("items", len(batch)))
		return
	}
	for _, it := range batch {
		it.fn(s, self, cb, it.closure)
	}
}

func (h *Handler) release() {
	h.self.Dispose()
	h.callback.Dispose()
	h.log.Debug("event handler released")
	close(h.done)
}
