package isolate

import (
	"go.uber.org/zap"
)

// Ref identifies a heap cell. Ref 0 is reserved and always invalid.
type Ref uint32

// Tag classifies a runtime value.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBoolean
	TagNumber
	TagString
	TagObject
	TagArray
	TagFunction
	TagError
	TagBuffer
)

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		return "boolean"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagObject:
		return "object"
	case TagArray:
		return "array"
	case TagFunction:
		return "function"
	case TagError:
		return "error"
	case TagBuffer:
		return "buffer"
	default:
		return "invalid"
	}
}

// Callback is the Go implementation behind a runtime function value.
type Callback func(*FunctionCall) (Local, error)

type cell struct {
	props    map[string]Ref
	internal any
	data     any
	fn       Callback
	keys     []string
	elems    []Ref
	str      string
	buf      []byte
	num      float64
	proto    Ref
	tag      Tag
	boolVal  bool
	marked   bool
	alive    bool
}

func (iso *Isolate) alloc(c cell) Ref {
	c.alive = true
	if n := len(iso.free); n > 0 {
		ref := iso.free[n-1]
		iso.free = iso.free[:n-1]
		iso.cells[ref-1] = c
		return ref
	}
	iso.cells = append(iso.cells, c)
	return Ref(len(iso.cells))
}

// cellAt returns the live cell for ref. Use of a dead or zero ref is a
// rooting bug in the caller, not a recoverable condition.
func (iso *Isolate) cellAt(ref Ref) *cell {
	if ref == 0 || int(ref) > len(iso.cells) {
		panic("isolate: invalid heap reference")
	}
	c := &iso.cells[ref-1]
	if !c.alive {
		panic("isolate: use of collected value; missing root or scope already closed")
	}
	return c
}

// LiveCount returns the number of live heap cells. Runtime thread only.
func (iso *Isolate) LiveCount() int {
	n := 0
	for i := range iso.cells {
		if iso.cells[i].alive {
			n++
		}
	}
	return n
}

// CollectGarbage runs a full mark/sweep pass over the heap. Roots are
// the locals of every open scope, every strong persistent handle, and
// every realm global. Weak persistent handles do not root their target;
// when the target dies the handle slot is cleared and the registered
// finalizer fires, on this thread, before CollectGarbage returns.
//
// Collection is always explicit. Nothing in the bridge assumes it runs
// at any particular time.
func (iso *Isolate) CollectGarbage() {
	for i := range iso.cells {
		iso.cells[i].marked = false
	}

	var stack []Ref
	mark := func(ref Ref) {
		if ref != 0 {
			stack = append(stack, ref)
		}
	}

	for _, s := range iso.scopes {
		for _, ref := range s.locals {
			mark(ref)
		}
	}
	for i := range iso.persist {
		e := &iso.persist[i]
		if e.valid && !e.weak {
			mark(e.ref)
		}
	}
	for _, r := range iso.realms {
		mark(r.global)
	}

	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := &iso.cells[ref-1]
		if !c.alive || c.marked {
			continue
		}
		c.marked = true
		mark(c.proto)
		for _, v := range c.props {
			mark(v)
		}
		for _, v := range c.elems {
			mark(v)
		}
	}

	swept := 0
	for i := range iso.cells {
		c := &iso.cells[i]
		if c.alive && !c.marked {
			*c = cell{}
			iso.free = append(iso.free, Ref(i+1))
			swept++
		}
	}

	// Weak handles whose targets died: clear the slot, then fire the
	// finalizer. The slot is cleared first so a finalizer observing the
	// handle sees it empty.
	var finalizers []func()
	for i := range iso.persist {
		e := &iso.persist[i]
		if e.valid && e.weak && e.ref != 0 && !iso.cells[e.ref-1].alive {
			e.ref = 0
			if e.finalizer != nil {
				finalizers = append(finalizers, e.finalizer)
				e.finalizer = nil
			}
		}
	}
	for _, fin := range finalizers {
		fin()
	}

	iso.log.Debug("collection finished",
		zap.Int("swept", swept),
		zap.Int("finalized", len(finalizers)),
		zap.Int("live", iso.LiveCount()))
}
