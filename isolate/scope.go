package isolate

import (
	"github.com/wippyai/script-bridge/errors"
)

// Scope is a dynamic rooting region. Locals created inside a scope stay
// alive until the scope closes; after Close they are invalid unless
// escaped to the enclosing scope or promoted to a persistent handle.
//
// Scopes close in strict LIFO order. Closing out of order, or closing
// twice, is a programmer error and panics.
type Scope struct {
	iso       *Isolate
	parent    *Scope
	locals    []Ref
	active    bool
	escapable bool
}

// OpenScope pushes a new rooting scope. Runtime thread only.
func (iso *Isolate) OpenScope() *Scope {
	s := &Scope{iso: iso, active: true}
	if n := len(iso.scopes); n > 0 {
		s.parent = iso.scopes[n-1]
	}
	iso.scopes = append(iso.scopes, s)
	return s
}

// OpenEscapableScope pushes a scope whose Escape method can thread one
// or more values out into the parent scope.
func (iso *Isolate) OpenEscapableScope() *Scope {
	s := iso.OpenScope()
	s.escapable = true
	return s
}

// Close pops the scope. All locals rooted here become invalid.
func (s *Scope) Close() {
	if !s.active {
		panic("isolate: scope closed twice")
	}
	n := len(s.iso.scopes)
	if n == 0 || s.iso.scopes[n-1] != s {
		panic("isolate: scope closed out of order")
	}
	s.active = false
	s.locals = nil
	s.iso.scopes = s.iso.scopes[:n-1]
}

// Escape re-roots v in the parent scope so it survives this scope's
// Close. Only escapable scopes with a parent may escape.
func (s *Scope) Escape(v Local) (Local, error) {
	if !s.active {
		panic("isolate: escape from closed scope")
	}
	if !s.escapable {
		return Local{}, errors.New(errors.PhaseScope, errors.KindScopeEscaped).
			Detail("scope is not escapable").Build()
	}
	if s.parent == nil || !s.parent.active {
		return Local{}, errors.New(errors.PhaseScope, errors.KindScopeEscaped).
			Detail("no enclosing scope to escape into").Build()
	}
	if v.ref == 0 {
		return Local{scope: s.parent}, nil
	}
	return s.parent.adopt(v.ref), nil
}

// Nested opens a scope, runs fn, and closes the scope on every exit
// path. Nothing created inside survives; use Chained to thread a value
// out.
func (iso *Isolate) Nested(fn func(*Scope) error) error {
	s := iso.OpenScope()
	defer s.Close()
	return fn(s)
}

// Chained opens an escapable scope, runs fn, and escapes its result
// into the enclosing scope. It requires an open enclosing scope.
func (iso *Isolate) Chained(fn func(*Scope) (Local, error)) (Local, error) {
	if len(iso.scopes) == 0 {
		return Local{}, errors.InvalidInput(errors.PhaseScope, "chained scope requires an enclosing scope")
	}
	s := iso.OpenEscapableScope()
	defer s.Close()

	v, err := fn(s)
	if err != nil {
		return Local{}, err
	}
	return s.Escape(v)
}

// adopt roots ref in this scope and hands out a Local for it.
func (s *Scope) adopt(ref Ref) Local {
	s.locals = append(s.locals, ref)
	return Local{scope: s, ref: ref}
}

func (s *Scope) checkActive() {
	if !s.active {
		panic("isolate: local used outside its scope")
	}
}

// Isolate returns the isolate that owns this scope.
func (s *Scope) Isolate() *Isolate {
	return s.iso
}

// innermost returns the currently open innermost scope, or nil.
func (iso *Isolate) innermost() *Scope {
	if n := len(iso.scopes); n > 0 {
		return iso.scopes[n-1]
	}
	return nil
}
