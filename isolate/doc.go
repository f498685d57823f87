// Package isolate implements the runtime instance the rest of the
// bridge hangs off: a single-threaded value heap with explicit
// mark/sweep collection, the rooting scopes and persistent handles that
// keep values alive across boundary crossings, realms, data slots, and
// the job loop that serializes cross-thread work onto the one runtime
// goroutine.
//
// # Scopes and handles
//
// Every boundary-crossing entry point opens exactly one Scope and
// closes it on every exit path. Locals belong to their scope; the only
// way to keep a value past a scope's close is Escape (into the parent
// scope) or a Persistent handle. Weak persistent handles pair a
// non-rooting reference with a finalizer; the collector clears the
// handle slot and fires the finalizer on the runtime thread.
//
// # The runtime thread
//
// Run turns its goroutine into the runtime thread. Post and Exec are
// the only safe cross-thread entry points; they are the wakeup
// primitive the task scheduler and event handler build on. Collection
// is explicit via CollectGarbage; the bridge never assumes collector
// timing.
package isolate
