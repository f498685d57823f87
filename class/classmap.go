package class

import (
	"github.com/wippyai/script-bridge/isolate"
)

// MapSlot is the isolate data slot reserved for the per-isolate class
// registry.
const MapSlot uint32 = 2

// ID identifies a class within one isolate's registry.
type ID uint32

type registry struct {
	classes map[ID]*Metadata
	nextID  ID
}

// registryFor returns the isolate's class registry, creating and
// installing it on first use. Runtime thread only.
func registryFor(iso *isolate.Isolate) *registry {
	if v, ok := iso.Slot(MapSlot); ok {
		return v.(*registry)
	}
	r := &registry{classes: make(map[ID]*Metadata)}
	iso.SetSlot(MapSlot, r, func(v any) error {
		reg := v.(*registry)
		reg.classes = nil
		return nil
	})
	return r
}

func (r *registry) add(m *Metadata) ID {
	r.nextID++
	r.classes[r.nextID] = m
	return r.nextID
}

func (r *registry) remove(id ID) {
	delete(r.classes, id)
}

func (r *registry) lookup(id ID) (*Metadata, bool) {
	m, ok := r.classes[id]
	return m, ok
}

// Lookup resolves a class ID against the isolate's registry. Returns
// false for unknown or already finalized classes.
func Lookup(iso *isolate.Isolate, id ID) (*Metadata, bool) {
	return registryFor(iso).lookup(id)
}
