package isolate

// Persistent is a durable handle: a reference to a runtime value that
// stays valid across scope boundaries until explicitly disposed.
// Persistents are the only references Go code may store across boundary
// crossings.
//
// The zero Persistent is invalid. All methods are runtime thread only.
type Persistent struct {
	iso *Isolate
	id  uint32 // index+1 into iso.persist; 0 invalid
}

type persistEntry struct {
	finalizer func()
	ref       Ref
	weak      bool
	valid     bool
}

// NewPersistent allocates an empty persistent handle.
func (iso *Isolate) NewPersistent() Persistent {
	for i := range iso.persist {
		if !iso.persist[i].valid {
			iso.persist[i] = persistEntry{valid: true}
			return Persistent{iso: iso, id: uint32(i + 1)}
		}
	}
	iso.persist = append(iso.persist, persistEntry{valid: true})
	return Persistent{iso: iso, id: uint32(len(iso.persist))}
}

// Persist allocates a persistent handle already pointing at v.
func (iso *Isolate) Persist(v Local) Persistent {
	p := iso.NewPersistent()
	p.Reset(v)
	return p
}

func (p Persistent) entry() *persistEntry {
	if p.id == 0 {
		panic("isolate: use of zero persistent handle")
	}
	e := &p.iso.persist[p.id-1]
	if !e.valid {
		panic("isolate: use of disposed persistent handle")
	}
	return e
}

// Reset repoints the handle at v, dropping any weak registration.
func (p Persistent) Reset(v Local) {
	if v.ref != 0 {
		v.scope.checkActive()
	}
	e := p.entry()
	e.ref = v.ref
	e.weak = false
	e.finalizer = nil
}

// Clear empties the handle without disposing it.
func (p Persistent) Clear() {
	e := p.entry()
	e.ref = 0
	e.weak = false
	e.finalizer = nil
}

// Load reads the handle into an open scope. Returns false if the handle
// is empty, including a weak handle whose target has been collected.
func (p Persistent) Load(s *Scope) (Local, bool) {
	s.checkActive()
	e := p.entry()
	if e.ref == 0 {
		return Local{scope: s}, false
	}
	return s.adopt(e.ref), true
}

// Clone allocates an independent handle to the same value. The clone
// is strong regardless of the source's weakness.
func (p Persistent) Clone() Persistent {
	ref := p.entry().ref
	c := p.iso.NewPersistent()
	p.iso.persist[c.id-1].ref = ref
	return c
}

// Dispose releases the handle. Disposing twice is a programmer error
// and panics; the entry guards against silent reuse.
func (p Persistent) Dispose() {
	if p.id == 0 {
		panic("isolate: dispose of zero persistent handle")
	}
	e := &p.iso.persist[p.id-1]
	if !e.valid {
		panic("isolate: persistent handle disposed twice")
	}
	*e = persistEntry{}
}

// SetWeak makes the handle non-rooting and registers finalizer to fire
// when the collector determines the target is unreachable. The slot is
// cleared before the finalizer runs, and the finalizer fires at most
// once. The handle itself still requires an eventual Dispose.
func (p Persistent) SetWeak(finalizer func()) {
	e := p.entry()
	e.weak = true
	e.finalizer = finalizer
}

// IsEmpty reports whether the handle currently points at nothing.
func (p Persistent) IsEmpty() bool {
	return p.entry().ref == 0
}

// Same reports handle identity: whether a and b currently reference the
// same heap value. Structurally identical but distinct values compare
// false. Empty handles never compare equal to anything, including each
// other.
func Same(a, b Persistent) bool {
	ea, eb := a.entry(), b.entry()
	if ea.ref == 0 || eb.ref == 0 {
		return false
	}
	return ea.ref == eb.ref
}
