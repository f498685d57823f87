package isolate_test

import (
	stderrors "errors"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/isolate"
)

func TestRunPostExec(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()

	ran := make(chan struct{})
	if err := iso.Post(func() { close(ran) }); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	<-ran

	var n float64
	err := iso.Exec(func() error {
		s := iso.OpenScope()
		defer s.Close()
		var err error
		n, err = s.Number(2).NumberValue()
		return err
	})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %v", n)
	}

	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := iso.Post(func() {}); !stderrors.Is(err, errors.Terminated()) {
		t.Fatalf("expected terminated error after close, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	defer leaktest.Check(t)()

	iso := isolate.New()
	go iso.Run()
	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := iso.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestCloseWithoutRun(t *testing.T) {
	iso := isolate.New()
	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRunAfterCloseDoesNotTearDownTwice(t *testing.T) {
	defer leaktest.Check(t)()

	// Close winning the startup race must leave Run with nothing to do:
	// no second shutdown, no panic on loopDone.
	iso := isolate.New()
	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := iso.Run(); !stderrors.Is(err, errors.Terminated()) {
		t.Fatalf("expected terminated error from Run, got %v", err)
	}
}

func TestConcurrentRunAndClose(t *testing.T) {
	defer leaktest.Check(t)()

	for i := 0; i < 50; i++ {
		iso := isolate.New()
		runErr := make(chan error, 1)
		go func() { runErr <- iso.Run() }()
		if err := iso.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := <-runErr; err != nil && !stderrors.Is(err, errors.Terminated()) {
			t.Fatalf("Run failed: %v", err)
		}
	}
}

func TestCollectGarbageSweepsUnrooted(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	err := iso.Nested(func(s *isolate.Scope) error {
		for i := 0; i < 10; i++ {
			s.Object()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}

	before := iso.LiveCount()
	iso.CollectGarbage()
	after := iso.LiveCount()
	if after >= before {
		t.Fatalf("collection freed nothing: %d -> %d", before, after)
	}
}

func TestCollectGarbageKeepsRooted(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()

	obj := s.Object()
	if _, err := obj.Set("child", s.Object()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	iso.CollectGarbage()

	child, err := obj.Get("child")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if child.TypeOf() != isolate.TagObject {
		t.Fatalf("reachable child swept: %v", child.TypeOf())
	}
}

func TestRealmSwitching(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()

	def := iso.CurrentRealm()
	other := iso.NewRealm("other")

	if _, err := s.Global().Set("where", s.Number(1)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	prev := iso.EnterRealm(other)
	if prev != def {
		t.Fatal("EnterRealm returned the wrong previous realm")
	}
	v, err := s.Global().Get("where")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v.TypeOf() != isolate.TagUndefined {
		t.Fatal("realm globals are shared")
	}
	iso.EnterRealm(prev)

	v, err = s.Global().Get("where")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n, _ := v.NumberValue(); n != 1 {
		t.Fatalf("default realm global lost: %v", n)
	}
}

func TestSlotsTeardownReverseOrder(t *testing.T) {
	iso := isolate.New()

	var order []string
	iso.SetSlot(10, "first", func(any) error {
		order = append(order, "first")
		return nil
	})
	iso.SetSlot(11, "second", func(any) error {
		order = append(order, "second")
		return nil
	})

	if v, ok := iso.Slot(10); !ok || v != "first" {
		t.Fatalf("Slot(10) = %v %v", v, ok)
	}
	if _, ok := iso.Slot(99); ok {
		t.Fatal("unset slot reported present")
	}

	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if diff := cmp.Diff([]string{"second", "first"}, order); diff != "" {
		t.Fatalf("teardown order mismatch (-want +got):\n%s", diff)
	}
}

func TestSlotTeardownErrorSurfacesFromClose(t *testing.T) {
	iso := isolate.New()

	boom := stderrors.New("teardown failed")
	iso.SetSlot(10, nil, func(any) error { return boom })

	err := iso.Close()
	if !stderrors.Is(err, boom) {
		t.Fatalf("teardown error lost: %v", err)
	}
}

func TestShutdownFiresOutstandingFinalizers(t *testing.T) {
	iso := isolate.New()

	fired := 0
	err := iso.Nested(func(s *isolate.Scope) error {
		p := iso.Persist(s.Object())
		p.SetWeak(func() { fired++ })
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}

	if err := iso.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected one finalizer at shutdown, got %d", fired)
	}
}

func TestInitModule(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	kernel := &struct{ version string }{version: "1.2.3"}
	err := iso.InitModule("mymod", kernel, func(s *isolate.Scope, exports isolate.Local, k any) error {
		if k != kernel {
			t.Error("kernel not forwarded to init")
		}
		v, err := s.String(k.(*struct{ version string }).version)
		if err != nil {
			return err
		}
		_, err = exports.Set("version", v)
		return err
	})
	if err != nil {
		t.Fatalf("InitModule failed: %v", err)
	}

	s := iso.OpenScope()
	defer s.Close()
	mod, err := s.Global().Get("mymod")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	v, err := mod.Get("version")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got, _ := v.StringValue(); got != "1.2.3" {
		t.Fatalf("exports lost: %q", got)
	}
}

func TestInitModuleFailureDoesNotPublish(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	boom := stderrors.New("init rejected")
	err := iso.InitModule("broken", nil, func(s *isolate.Scope, exports isolate.Local, k any) error {
		return boom
	})
	if err == nil {
		t.Fatal("failed init reported success")
	}
	if !stderrors.Is(err, boom) {
		t.Fatalf("init cause lost: %v", err)
	}

	s := iso.OpenScope()
	defer s.Close()
	v, err := s.Global().Get("broken")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v.TypeOf() != isolate.TagUndefined {
		t.Fatal("failed module was published on the global")
	}
}
