package isolate_test

import (
	"testing"

	"github.com/wippyai/script-bridge/isolate"
)

func TestPersistentOutlivesScope(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	var p isolate.Persistent
	err := iso.Nested(func(s *isolate.Scope) error {
		p = s.Isolate().Persist(s.Number(5))
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}

	s := iso.OpenScope()
	defer s.Close()
	v, ok := p.Load(s)
	if !ok {
		t.Fatal("persistent lost its value at scope close")
	}
	n, err := v.NumberValue()
	if err != nil || n != 5 {
		t.Fatalf("loaded wrong value: %v (%v)", n, err)
	}
	p.Dispose()
}

func TestPersistentDisposeTwicePanics(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()
	p := iso.Persist(s.Number(1))
	p.Dispose()

	defer func() {
		if recover() == nil {
			t.Fatal("double dispose did not panic")
		}
	}()
	p.Dispose()
}

func TestPersistentSame(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()

	v := s.Object()
	a := iso.Persist(v)
	b := iso.Persist(v)
	c := iso.Persist(s.Object())
	empty1 := iso.NewPersistent()
	empty2 := iso.NewPersistent()
	defer func() {
		a.Dispose()
		b.Dispose()
		c.Dispose()
		empty1.Dispose()
		empty2.Dispose()
	}()

	if !isolate.Same(a, b) {
		t.Fatal("handles to the same value compare unequal")
	}
	if isolate.Same(a, c) {
		t.Fatal("handles to distinct values compare equal")
	}
	if isolate.Same(empty1, empty2) {
		t.Fatal("empty handles compare equal")
	}
}

func TestPersistentCloneIndependent(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()

	p := iso.Persist(s.Number(3))
	c := p.Clone()
	if !isolate.Same(p, c) {
		t.Fatal("clone does not reference the same value")
	}
	p.Dispose()

	v, ok := c.Load(s)
	if !ok {
		t.Fatal("clone died with its source")
	}
	if n, err := v.NumberValue(); err != nil || n != 3 {
		t.Fatalf("clone loaded wrong value: %v (%v)", n, err)
	}
	c.Dispose()
}

func TestWeakHandleClearedOnCollection(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	var p isolate.Persistent
	fired := 0
	err := iso.Nested(func(s *isolate.Scope) error {
		p = s.Isolate().Persist(s.Object())
		p.SetWeak(func() { fired++ })
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}

	iso.CollectGarbage()
	if fired != 1 {
		t.Fatalf("expected one finalizer run, got %d", fired)
	}
	if !p.IsEmpty() {
		t.Fatal("weak handle not cleared after its target died")
	}
	iso.CollectGarbage()
	if fired != 1 {
		t.Fatalf("finalizer ran again: %d", fired)
	}
	p.Dispose()
}

func TestStrongHandleRootsValue(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	var p isolate.Persistent
	err := iso.Nested(func(s *isolate.Scope) error {
		p = s.Isolate().Persist(s.Object())
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}

	iso.CollectGarbage()

	s := iso.OpenScope()
	defer s.Close()
	if _, ok := p.Load(s); !ok {
		t.Fatal("strong handle failed to root its value through a collection")
	}
	p.Dispose()
}
