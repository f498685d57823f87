package event_test

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fortytw2/leaktest"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/event"
	"github.com/wippyai/script-bridge/isolate"
)

func newHandler(t *testing.T, iso *isolate.Isolate, cb isolate.Callback) *event.Handler {
	t.Helper()
	var h *event.Handler
	err := iso.Exec(func() error {
		s := iso.OpenScope()
		defer s.Close()
		fn := s.Function("cb", cb)
		var err error
		h, err = event.NewHandler(s, s.Object(), fn)
		return err
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func TestScheduleFromForeignThread(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()
	defer iso.Close()

	var calledWith float64
	var selfWasObject bool
	h := newHandler(t, iso, func(call *isolate.FunctionCall) (isolate.Local, error) {
		calledWith, _ = call.Arg(0).NumberValue()
		return isolate.Local{}, nil
	})

	done := make(chan struct{})
	err := h.Schedule(7.5, func(s *isolate.Scope, self, callback isolate.Local, closure any) {
		defer close(done)
		selfWasObject = self.TypeOf() == isolate.TagObject
		if _, err := callback.Call(self, s.Number(closure.(float64))); err != nil {
			t.Errorf("callback failed: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	<-done
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	<-h.Done()

	if calledWith != 7.5 {
		t.Fatalf("closure lost in transit: %v", calledWith)
	}
	if !selfWasObject {
		t.Fatal("pinned receiver not delivered to handler")
	}
}

func TestConcurrentProducersDrainBeforeRelease(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()
	defer iso.Close()

	var fired int
	h := newHandler(t, iso, func(call *isolate.FunctionCall) (isolate.Local, error) {
		return isolate.Local{}, nil
	})

	const producers = 8
	const perProducer = 50
	var scheduled atomic.Int64
	var wg sync.WaitGroup

	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				err := h.Schedule(nil, func(s *isolate.Scope, self, callback isolate.Local, closure any) {
					fired++
				})
				if err == nil {
					scheduled.Add(1)
				} else if !stderrors.Is(err, errors.Closed(errors.PhaseEvent, "")) {
					t.Errorf("unexpected schedule error: %v", err)
				}
			}
		}()
	}

	// Race the close against the producers; items accepted before the
	// close must still run, later ones must be refused.
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	wg.Wait()
	<-h.Done()

	var final int
	if err := iso.Exec(func() error {
		final = fired
		return nil
	}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if int64(final) != scheduled.Load() {
		t.Fatalf("accepted %d items but %d fired", scheduled.Load(), final)
	}

	err := h.Schedule(nil, func(s *isolate.Scope, self, callback isolate.Local, closure any) {})
	if err == nil {
		t.Fatal("released handler accepted an item")
	}
}

func TestCloseReleasesAfterIsolateTermination(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()

	h := newHandler(t, iso, func(call *isolate.FunctionCall) (isolate.Local, error) {
		return isolate.Local{}, nil
	})

	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The failed wakeup must not leave a stale signal behind; Close
	// still has to release the handler and close Done.
	err := h.Schedule(nil, func(s *isolate.Scope, self, callback isolate.Local, closure any) {})
	if !stderrors.Is(err, errors.Terminated()) {
		t.Fatalf("expected terminated error from Schedule, got %v", err)
	}

	if err := h.Close(); !stderrors.Is(err, errors.Terminated()) {
		t.Fatalf("expected terminated error from Close, got %v", err)
	}
	<-h.Done()

	if err := h.Schedule(nil, func(s *isolate.Scope, self, callback isolate.Local, closure any) {}); err == nil {
		t.Fatal("released handler accepted an item")
	}
}

func TestHandlerCloseTwicePanics(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()
	defer iso.Close()

	h := newHandler(t, iso, func(call *isolate.FunctionCall) (isolate.Local, error) {
		return isolate.Local{}, nil
	})
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	<-h.Done()

	defer func() {
		if recover() == nil {
			t.Fatal("second Close did not panic")
		}
	}()
	_ = h.Close()
}

func TestNewHandlerRejectsNonFunction(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()
	defer iso.Close()

	err := iso.Exec(func() error {
		s := iso.OpenScope()
		defer s.Close()
		_, err := event.NewHandler(s, s.Object(), s.Number(1))
		return err
	})
	if err == nil {
		t.Fatal("handler accepted a non-function callback")
	}
	if !stderrors.Is(err, errors.NotCallable("number")) {
		t.Fatalf("expected not-callable error, got %v", err)
	}
}
