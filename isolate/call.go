package isolate

import (
	"github.com/wippyai/script-bridge/errors"
)

// FunctionCall carries the arguments of one invocation across the
// boundary into a Go callback. Scope is the rooting scope the bridge
// opened for this invocation; everything in the call is rooted there
// and dies when the invocation returns.
type FunctionCall struct {
	Scope       *Scope
	Data        any
	This        Local
	Callee      Local
	Args        []Local
	IsConstruct bool
}

// Arg returns the i-th argument, or undefined when absent.
func (c *FunctionCall) Arg(i int) Local {
	if i < 0 || i >= len(c.Args) {
		return c.Scope.Undefined()
	}
	return c.Args[i]
}

// Isolate returns the isolate servicing this call.
func (c *FunctionCall) Isolate() *Isolate {
	return c.Scope.iso
}

// Call invokes a function value. A fresh scope is opened around the
// callee and closed on every exit path; the result is escaped into the
// scope that was innermost at the call site. A thrown script value
// propagates as a KindThrown error.
func (l Local) Call(self Local, args ...Local) (Local, error) {
	c := l.cell()
	if c.tag != TagFunction {
		return Local{}, errors.NotCallable(c.tag.String())
	}
	iso := l.scope.iso

	inner := iso.OpenEscapableScope()
	defer inner.Close()

	call := &FunctionCall{
		Scope:  inner,
		Data:   c.data,
		Callee: inner.adopt(l.ref),
		Args:   adoptAll(inner, args),
	}
	if self.ref != 0 {
		call.This = inner.adopt(self.ref)
	} else {
		call.This = inner.Undefined()
	}

	ret, err := c.fn(call)
	if err != nil {
		return Local{}, err
	}
	if ret.IsEmpty() {
		ret = inner.Undefined()
	}
	return inner.Escape(ret)
}

// Construct invokes a function value as a constructor: a new object is
// allocated with the function's prototype, the callback runs with
// IsConstruct set, and the new object (or the callback's object result,
// if it returned one) is escaped to the caller.
func (l Local) Construct(args ...Local) (Local, error) {
	c := l.cell()
	if c.tag != TagFunction {
		return Local{}, errors.NotCallable(c.tag.String())
	}
	iso := l.scope.iso

	inner := iso.OpenEscapableScope()
	defer inner.Close()

	instance := inner.adopt(iso.alloc(cell{
		tag:   TagObject,
		props: make(map[string]Ref),
		proto: c.props["prototype"],
	}))

	// alloc may have grown the heap; re-resolve the callee cell.
	c = iso.cellAt(l.ref)

	call := &FunctionCall{
		Scope:       inner,
		Data:        c.data,
		Callee:      inner.adopt(l.ref),
		This:        instance,
		Args:        adoptAll(inner, args),
		IsConstruct: true,
	}

	ret, err := c.fn(call)
	if err != nil {
		return Local{}, err
	}
	result := instance
	if !ret.IsEmpty() && ret.IsObject() {
		result = ret
	}
	return inner.Escape(result)
}

// SetPrototype rewires the object a value inherits from.
func (l Local) SetPrototype(proto Local) error {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return errors.TypeMismatch(errors.PhaseConvert, TagObject.String(), c.tag.String())
	}
	if proto.ref != 0 {
		proto.scope.checkActive()
	}
	c.proto = proto.ref
	return nil
}

// Prototype returns the object a value inherits from, or an empty Local.
func (l Local) Prototype() Local {
	c := l.cell()
	if c.proto == 0 {
		return Local{scope: l.scope}
	}
	return l.scope.adopt(c.proto)
}

// InstanceOf walks the prototype chain of l looking for the prototype
// object of constructor.
func (l Local) InstanceOf(constructor Local) (bool, error) {
	cc := constructor.cell()
	if cc.tag != TagFunction {
		return false, errors.NotCallable(cc.tag.String())
	}
	protoRef := cc.props["prototype"]
	if protoRef == 0 {
		return false, nil
	}
	iso := l.scope.iso
	for ref := l.cell().proto; ref != 0; ref = iso.cellAt(ref).proto {
		if ref == protoRef {
			return true, nil
		}
	}
	return false, nil
}

// Internal returns the value stored in the object's reserved internal
// slot, nil when unset or when the value carries no slot.
func (l Local) Internal() any {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return nil
	}
	return c.internal
}

// SetInternal writes the object's reserved internal slot.
func (l Local) SetInternal(v any) error {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return errors.TypeMismatch(errors.PhaseInstance, TagObject.String(), c.tag.String())
	}
	c.internal = v
	return nil
}

func adoptAll(s *Scope, args []Local) []Local {
	out := make([]Local, len(args))
	for i, a := range args {
		if a.ref == 0 {
			out[i] = s.Undefined()
			continue
		}
		a.scope.checkActive()
		out[i] = s.adopt(a.ref)
	}
	return out
}

// ThrowValue wraps a script value into an error that travels up Go call
// frames until a delivery site unwraps it. The value is promoted to a
// persistent handle so it survives scope teardown along the way;
// CaughtValue releases it.
func (s *Scope) ThrowValue(v Local) error {
	s.checkActive()
	return errors.Thrown(s.iso.Persist(v))
}

// CaughtValue extracts a thrown script value from err into s, releasing
// the carrier handle. The second result is false when err is not a
// thrown value (e.g. an ordinary Go error).
func CaughtValue(err error, s *Scope) (Local, bool) {
	raw, ok := errors.IsThrown(err)
	if !ok {
		return Local{}, false
	}
	p, ok := raw.(Persistent)
	if !ok {
		return Local{}, false
	}
	v, loaded := p.Load(s)
	p.Dispose()
	if !loaded {
		return Local{}, false
	}
	return v, true
}
