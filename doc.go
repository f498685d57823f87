// Package scriptbridge is the boundary layer between native Go code and an
// embedded, single-threaded, garbage-collected scripting runtime.
//
// The bridge lets Go code register callable classes and functions that the
// runtime can invoke, hand long-running work to background goroutines without
// touching the runtime's heap from those goroutines, and keep runtime-visible
// handles to Go-owned memory correctly scoped, rooted, and finalized so
// neither side leaks or frees memory the other side still needs.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	scriptbridge/    Root package with the umbrella documentation
//	├── isolate/     Runtime instance: job loop, value heap, scopes,
//	│                persistent handles, realms, simulated collection
//	├── class/       Class registration, construction protocol, and
//	│                GC-synchronized teardown of instance internals
//	├── task/        Background work scheduling with completion delivery
//	│                back onto the runtime thread
//	├── event/       Many-writer, single-consumer event delivery into
//	│                the runtime thread
//	└── errors/      Structured error types for debugging
//
// # Quick Start
//
// Create an isolate, run its loop on a dedicated goroutine, and register a
// class:
//
//	iso := isolate.New()
//	go iso.Run()
//	defer iso.Close()
//
//	iso.Exec(func() error {
//	    s := iso.OpenScope()
//	    defer s.Close()
//	    meta, err := class.CreateBase(s, "Counter", class.Config{
//	        Allocate: func(call *isolate.FunctionCall) (any, error) {
//	            return &counter{}, nil
//	        },
//	        Drop: func(internals any) { /* release */ },
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    ctor, err := meta.Constructor(s)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = s.Global().Set("Counter", ctor)
//	    return err
//	})
//
// # Thread Safety
//
// One dedicated goroutine (the one that calls Isolate.Run) executes all code
// that touches runtime values, scopes, and handles. Isolate.Post, Isolate.Exec,
// task scheduling results, and event.Handler.Schedule/Close are the only
// operations safe to use from other goroutines.
//
// # Memory Model
//
// Runtime-local references (isolate.Local) are valid only inside the scope
// that produced them. Persistent handles are the only references Go code may
// store across boundary crossings; weak persistent handles pair a
// non-rooting reference with a finalizer fired when the collector determines
// the value is unreachable. Collection is explicit (Isolate.CollectGarbage);
// the bridge never assumes collector timing.
package scriptbridge
