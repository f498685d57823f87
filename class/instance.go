package class

import (
	"github.com/wippyai/script-bridge/errors"
	"github.com/wippyai/script-bridge/isolate"
)

// InstanceRecord ties one constructed instance to its foreign
// internals. It lives in the instance's internal slot and holds a weak
// handle back to the instance, so collection of the object fires the
// drop kernel exactly once. Outstanding records are finalized at
// isolate shutdown through the same path.
type InstanceRecord struct {
	internals any
	drop      DropFunc
	meta      *Metadata
	object    isolate.Persistent
	dropped   bool
}

func newInstanceRecord(this isolate.Local, m *Metadata, internals any, drop DropFunc) (*InstanceRecord, error) {
	rec := &InstanceRecord{internals: internals, drop: drop, meta: m}
	if err := this.SetInternal(rec); err != nil {
		return nil, err
	}
	rec.object = m.iso.Persist(this)
	rec.object.SetWeak(rec.finalize)
	return rec, nil
}

// finalize fires when the instance is collected. Dropping twice would
// mean the collector resurrected a dead object, which is a bug, not a
// recoverable condition.
func (r *InstanceRecord) finalize() {
	if r.dropped {
		panic("class: instance internals dropped twice")
	}
	r.dropped = true
	if r.drop != nil {
		r.drop(r.internals)
	}
	r.internals = nil
	r.object.Dispose()
}

// Class returns the metadata of the class this record was constructed
// by.
func (r *InstanceRecord) Class() *Metadata {
	return r.meta
}

// Internals returns the foreign internals of v without a class check.
// Use Metadata.Internals when the expected class is known.
func Internals(v isolate.Local) (any, error) {
	if v.IsEmpty() {
		return nil, errors.InvalidInput(errors.PhaseInstance, "empty value carries no internals")
	}
	rec, ok := v.Internal().(*InstanceRecord)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseInstance, "value carries no instance record")
	}
	if rec.dropped {
		return nil, errors.Disposed("instance internals")
	}
	return rec.internals, nil
}
