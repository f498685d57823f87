// Package class binds foreign-backed classes into a runtime instance:
// constructor templates whose instances carry an opaque internals
// pointer owned by Go code, released exactly once when the instance is
// collected or the isolate shuts down.
//
// A class is described by Metadata. CreateBase builds a root class from
// allocate/construct/call/drop kernels; CreateDerived chains a child
// class onto an existing one, sharing the base allocator and running
// construct kernels parent first. All entry points funnel through one
// trampoline that dispatches on the metadata attached to the callee, so
// a single native function serves every class in the registry.
package class
