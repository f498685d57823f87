package isolate_test

import (
	"testing"

	"github.com/wippyai/script-bridge/isolate"
)

func TestScopeLIFO(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	outer := iso.OpenScope()
	inner := iso.OpenScope()
	inner.Close()
	outer.Close()
}

func TestScopeCloseOutOfOrderPanics(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	outer := iso.OpenScope()
	inner := iso.OpenScope()
	defer func() {
		if recover() == nil {
			t.Fatal("out-of-order close did not panic")
		}
		inner.Close()
		outer.Close()
	}()
	outer.Close()
}

func TestScopeCloseTwicePanics(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	s.Close()
	defer func() {
		if recover() == nil {
			t.Fatal("double close did not panic")
		}
	}()
	s.Close()
}

func TestLocalOutlivingScopePanics(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	v := s.Number(1)
	s.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("use of a dead local did not panic")
		}
	}()
	_, _ = v.NumberValue()
}

func TestEscapeToParent(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	outer := iso.OpenScope()
	defer outer.Close()

	inner := iso.OpenEscapableScope()
	v := inner.Number(42)
	out, err := inner.Escape(v)
	if err != nil {
		t.Fatalf("Escape failed: %v", err)
	}
	inner.Close()

	n, err := out.NumberValue()
	if err != nil || n != 42 {
		t.Fatalf("escaped value unusable: %v (%v)", n, err)
	}
}

func TestEscapeFromPlainScopeFails(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	outer := iso.OpenScope()
	defer outer.Close()

	inner := iso.OpenScope()
	defer inner.Close()

	if _, err := inner.Escape(inner.Number(1)); err == nil {
		t.Fatal("plain scope allowed an escape")
	}
}

func TestNestedAndChained(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	s := iso.OpenScope()
	defer s.Close()

	var leaked isolate.Local
	err := iso.Nested(func(inner *isolate.Scope) error {
		leaked = inner.Number(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Nested failed: %v", err)
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("local survived Nested")
			}
		}()
		_, _ = leaked.NumberValue()
	}()

	v, err := iso.Chained(func(inner *isolate.Scope) (isolate.Local, error) {
		return inner.Number(7), nil
	})
	if err != nil {
		t.Fatalf("Chained failed: %v", err)
	}
	n, err := v.NumberValue()
	if err != nil || n != 7 {
		t.Fatalf("chained value unusable: %v (%v)", n, err)
	}
}

func TestChainedRequiresEnclosingScope(t *testing.T) {
	iso := isolate.New()
	defer iso.Close()

	if _, err := iso.Chained(func(s *isolate.Scope) (isolate.Local, error) {
		return s.Number(1), nil
	}); err == nil {
		t.Fatal("Chained ran without an enclosing scope")
	}
}
