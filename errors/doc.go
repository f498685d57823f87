// Package errors provides structured error types for the bridge.
//
// Errors carry a Phase (where in the bridge the failure happened) and a Kind
// (what went wrong), so callers can match on category with errors.Is without
// string comparison. Conversion and construction failures are ordinary error
// returns recovered by the immediate caller; thrown script values travel as
// KindThrown errors and are unwrapped at delivery sites.
package errors
