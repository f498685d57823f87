// Package event delivers callbacks scheduled from arbitrary goroutines
// onto the runtime thread. A Handler pins a receiver and a callback
// function for its whole lifetime; Schedule is safe from any thread and
// coalesces wakeups, and Close releases the pinned handles only after
// every item scheduled before it has run.
package event
