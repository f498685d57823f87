package class

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/isolate"
)

// AllocateFunc produces the opaque internals for a new instance. A nil
// result with a nil error is treated as an allocation failure.
type AllocateFunc func(call *isolate.FunctionCall) (any, error)

// ConstructFunc runs after allocation with the instance wired up as
// call.This. A non-nil error fails the construction as a whole.
type ConstructFunc func(call *isolate.FunctionCall) error

// CallFunc handles the constructor invoked as a plain function, without
// new. When absent, plain calls fail.
type CallFunc func(call *isolate.FunctionCall) (isolate.Local, error)

// DropFunc releases the internals produced by AllocateFunc. It runs
// exactly once per instance, on the runtime thread, either when the
// instance is collected or at isolate shutdown.
type DropFunc func(internals any)

// MethodFunc is a method body. The receiver's internals arrive already
// checked against the method's class.
type MethodFunc func(call *isolate.FunctionCall, internals any) (isolate.Local, error)

// Config bundles the kernels of a class. Allocate is required for base
// classes and forbidden for derived ones; the rest are optional.
type Config struct {
	Allocate  AllocateFunc
	Construct ConstructFunc
	Call      CallFunc
	Drop      DropFunc
}

// Metadata describes one registered class: its kernels, its place in
// the parent chain, and a weak reference to the constructor template.
// The error values for the two hot failure paths are prebuilt when the
// name is set, so the failure paths allocate nothing.
//
// Metadata methods are runtime thread only.
type Metadata struct {
	iso    *isolate.Isolate
	reg    *registry
	parent *Metadata

	name    string
	callErr *errors.Error
	thisErr *errors.Error

	allocate  AllocateFunc
	construct ConstructFunc
	call      CallFunc
	drop      DropFunc

	template isolate.Persistent
	id       ID
	finished bool
}

// CreateBase registers a root class and returns its metadata. The
// constructor template is rooted in s; keep a persistent or publish it
// on a global before the scope closes, or the class is collected.
func CreateBase(s *isolate.Scope, name string, cfg Config) (*Metadata, error) {
	if cfg.Allocate == nil {
		return nil, errors.InvalidInput(errors.PhaseClass, "base class requires an allocate kernel")
	}
	return register(s, name, nil, cfg)
}

// CreateDerived registers a class chained onto parent. The base
// allocator and drop kernel are shared down the chain, so derived
// configs must not carry their own.
func CreateDerived(s *isolate.Scope, name string, parent *Metadata, cfg Config) (*Metadata, error) {
	if parent == nil {
		return nil, errors.InvalidInput(errors.PhaseClass, "derived class requires a parent")
	}
	if cfg.Allocate != nil || cfg.Drop != nil {
		return nil, errors.InvalidInput(errors.PhaseClass, "derived class cannot override allocate or drop")
	}
	m, err := register(s, name, parent, cfg)
	if err != nil {
		return nil, err
	}

	// Chain the prototypes so instanceof sees the parent class.
	tmpl, _ := m.template.Load(s)
	parentTmpl, ok := parent.template.Load(s)
	if !ok {
		return nil, errors.Disposed("parent class template")
	}
	childProto, err := tmpl.Get("prototype")
	if err != nil {
		return nil, err
	}
	parentProto, err := parentTmpl.Get("prototype")
	if err != nil {
		return nil, err
	}
	if err := childProto.SetPrototype(parentProto); err != nil {
		return nil, err
	}
	return m, nil
}

func register(s *isolate.Scope, name string, parent *Metadata, cfg Config) (*Metadata, error) {
	iso := s.Isolate()
	m := &Metadata{
		iso:       iso,
		parent:    parent,
		allocate:  cfg.Allocate,
		construct: cfg.Construct,
		call:      cfg.Call,
		drop:      cfg.Drop,
	}
	if err := m.SetName(name); err != nil {
		return nil, err
	}

	m.reg = registryFor(iso)
	m.id = m.reg.add(m)

	fn := s.FunctionWithData(name, constructTrampoline, m)
	m.template = iso.Persist(fn)
	m.template.SetWeak(m.finish)

	isolate.Logger().Debug("class registered",
		zap.String("class", name),
		zap.Uint32("id", uint32(m.id)))
	return m, nil
}

// finish runs when the constructor template is collected or the isolate
// shuts down: the class leaves the registry and its handle is released.
func (m *Metadata) finish() {
	if m.finished {
		return
	}
	m.finished = true
	m.reg.remove(m.id)
	m.template.Dispose()
}

// SetName renames the class and rebuilds the precomputed error values
// that quote it.
func (m *Metadata) SetName(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseClass, "class name must not be empty")
	}
	if !utf8.ValidString(name) {
		return errors.InvalidUTF8(errors.PhaseClass, []byte(name))
	}
	m.name = name
	m.callErr = errors.WithoutNew(name)
	m.thisErr = errors.NotObjectOfType(name)
	return nil
}

// Name returns the class name.
func (m *Metadata) Name() string {
	return m.name
}

// ID returns the class's registry ID.
func (m *Metadata) ID() ID {
	return m.id
}

// Parent returns the parent class, nil for base classes.
func (m *Metadata) Parent() *Metadata {
	return m.parent
}

// Constructor loads the class's constructor template into s. Fails once
// the template has been collected.
func (m *Metadata) Constructor(s *isolate.Scope) (isolate.Local, error) {
	if m.finished {
		return isolate.Local{}, errors.Disposed("class " + m.name)
	}
	fn, ok := m.template.Load(s)
	if !ok {
		return isolate.Local{}, errors.Disposed("class " + m.name)
	}
	return fn, nil
}

// AddMethod installs a method on the class's prototype. Instances of
// derived classes see it through the prototype chain.
func (m *Metadata) AddMethod(s *isolate.Scope, name string, fn MethodFunc) error {
	if !utf8.ValidString(name) {
		return errors.InvalidUTF8(errors.PhaseClass, []byte(name))
	}
	tmpl, err := m.Constructor(s)
	if err != nil {
		return err
	}
	proto, err := tmpl.Get("prototype")
	if err != nil {
		return err
	}
	method := s.FunctionWithData(name, methodTrampoline, &methodData{meta: m, fn: fn})
	_, err = proto.Set(name, method)
	return err
}

// HasInstance reports whether v is an instance of this class or of a
// class derived from it. The check is structural, against the instance
// record, so reparented prototypes cannot forge membership.
func (m *Metadata) HasInstance(v isolate.Local) bool {
	if v.IsEmpty() {
		return false
	}
	rec, ok := v.Internal().(*InstanceRecord)
	if !ok {
		return false
	}
	return rec.meta.derivesFrom(m)
}

// Internals returns the foreign internals of v after checking that v is
// an instance of this class. The type-check failure reuses the
// precomputed error.
func (m *Metadata) Internals(v isolate.Local) (any, error) {
	if v.IsEmpty() {
		return nil, m.thisErr
	}
	rec, ok := v.Internal().(*InstanceRecord)
	if !ok || rec.dropped || !rec.meta.derivesFrom(m) {
		return nil, m.thisErr
	}
	return rec.internals, nil
}

func (m *Metadata) derivesFrom(target *Metadata) bool {
	for c := m; c != nil; c = c.parent {
		if c == target {
			return true
		}
	}
	return false
}

// base walks to the root of the parent chain, which owns allocate and
// drop.
func (m *Metadata) base() *Metadata {
	b := m
	for b.parent != nil {
		b = b.parent
	}
	return b
}

// runConstruct runs the construct kernels parent first. The first
// failure short-circuits the chain.
func (m *Metadata) runConstruct(call *isolate.FunctionCall) error {
	if m.parent != nil {
		if err := m.parent.runConstruct(call); err != nil {
			return err
		}
	}
	if m.construct != nil {
		return m.construct(call)
	}
	return nil
}

// constructTrampoline is the single native entry point behind every
// constructor template. It dispatches on the metadata attached to the
// callee.
func constructTrampoline(call *isolate.FunctionCall) (isolate.Local, error) {
	m := call.Data.(*Metadata)

	if !call.IsConstruct {
		if m.call != nil {
			return m.call(call)
		}
		return isolate.Local{}, m.callErr
	}

	base := m.base()
	internals, err := base.allocate(call)
	if err != nil {
		return isolate.Local{}, errors.ConstructionFailed(m.name, err)
	}
	if internals == nil {
		return isolate.Local{}, errors.New(errors.PhaseConstruct, errors.KindConstruction).
			Class(m.name).Detail("allocate returned no internals").Build()
	}

	// The record owns the internals from here on. If the construct
	// chain fails, the instance becomes garbage and the record's
	// finalizer still drops them.
	if _, err := newInstanceRecord(call.This, m, internals, base.drop); err != nil {
		base.dropNow(internals)
		return isolate.Local{}, err
	}

	if err := m.runConstruct(call); err != nil {
		if _, thrown := errors.IsThrown(err); thrown {
			return isolate.Local{}, err
		}
		return isolate.Local{}, errors.ConstructionFailed(m.name, err)
	}
	return call.This, nil
}

func (m *Metadata) dropNow(internals any) {
	if m.drop != nil {
		m.drop(internals)
	}
}

type methodData struct {
	meta *Metadata
	fn   MethodFunc
}

// methodTrampoline is the shared entry point behind every method. The
// receiver must carry an instance record of the method's class or one
// derived from it.
func methodTrampoline(call *isolate.FunctionCall) (isolate.Local, error) {
	md := call.Data.(*methodData)
	internals, err := md.meta.Internals(call.This)
	if err != nil {
		return isolate.Local{}, err
	}
	return md.fn(call, internals)
}
