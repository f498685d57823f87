// Package task runs foreign work off the runtime thread and delivers
// the outcome back through a script callback: perform executes on a
// worker goroutine without touching runtime values, complete converts
// the raw result on the runtime thread, and the callback receives
// either (null, value) or (error, undefined). Each task owns its
// callback handle for exactly one delivery.
package task
