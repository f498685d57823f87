package isolate

// Realm is a global execution environment within an isolate. Callbacks
// delivered after an asynchronous gap must re-enter the realm that was
// current when they were captured; the runtime thread's current realm is
// not implicitly preserved across that gap.
type Realm struct {
	iso    *Isolate
	name   string
	global Ref
}

// NewRealm creates a realm with a fresh global object. Runtime thread
// only (New calls it once for the default realm before the loop starts).
func (iso *Isolate) NewRealm(name string) *Realm {
	r := &Realm{
		iso:  iso,
		name: name,
		global: iso.alloc(cell{
			tag:   TagObject,
			props: make(map[string]Ref),
		}),
	}
	iso.realms = append(iso.realms, r)
	return r
}

// Name returns the realm's debug name.
func (r *Realm) Name() string {
	return r.name
}

// CurrentRealm returns the realm active on the runtime thread.
func (iso *Isolate) CurrentRealm() *Realm {
	return iso.current
}

// EnterRealm makes r current and returns the previously current realm
// so the caller can restore it:
//
//	prev := iso.EnterRealm(saved)
//	defer iso.EnterRealm(prev)
func (iso *Isolate) EnterRealm(r *Realm) *Realm {
	prev := iso.current
	iso.current = r
	return prev
}

// Global returns the current realm's global object rooted in s.
func (s *Scope) Global() Local {
	s.checkActive()
	return s.adopt(s.iso.current.global)
}
