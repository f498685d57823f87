package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseScope     Phase = "scope"     // rooting scope management
	PhaseHandle    Phase = "handle"    // persistent handle operations
	PhaseConvert   Phase = "convert"   // value construction/conversion
	PhaseClass     Phase = "class"     // class registration
	PhaseConstruct Phase = "construct" // instance construction
	PhaseInstance  Phase = "instance"  // instance internals access
	PhaseTask      Phase = "task"      // background task scheduling
	PhaseEvent     Phase = "event"     // cross-thread event delivery
	PhaseIsolate   Phase = "isolate"   // isolate lifecycle
	PhaseModule    Phase = "module"    // module initialization
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch    Kind = "type_mismatch"
	KindInvalidUTF8     Kind = "invalid_utf8"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindWithoutNew      Kind = "without_new"
	KindNotObjectOfType Kind = "not_object_of_type"
	KindConstruction    Kind = "construction_failed"
	KindThrown          Kind = "thrown"
	KindDisposed        Kind = "disposed"
	KindClosed          Kind = "closed"
	KindTerminated      Kind = "terminated"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindNotCallable     Kind = "not_callable"
	KindScopeEscaped    Kind = "scope_escaped"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" class ")
		b.WriteString(e.Class)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the class name involved in the error
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Value sets the offending or thrown value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidUTF8 creates an invalid UTF-8 conversion error
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// WithoutNew creates the error for a constructor invoked as a plain call.
// The message matches the precomputed string cached on the class metadata.
func WithoutNew(className string) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindWithoutNew,
		Class:  className,
		Detail: className + " constructor called without new.",
	}
}

// NotObjectOfType creates the error for an internals access on the wrong
// receiver. The message matches the precomputed string on the metadata.
func NotObjectOfType(className string) *Error {
	return &Error{
		Phase:  PhaseInstance,
		Kind:   KindNotObjectOfType,
		Class:  className,
		Detail: "this is not an object of type " + className + ".",
	}
}

// ConstructionFailed wraps a failure signaled by an allocate or construct
// callback
func ConstructionFailed(className string, cause error) *Error {
	return &Error{
		Phase: PhaseConstruct,
		Kind:  KindConstruction,
		Class: className,
		Cause: cause,
	}
}

// Thrown carries a script-level thrown value across Go call frames.
// The value is a runtime reference; delivery sites unwrap it into the
// callback's error argument instead of letting it propagate.
func Thrown(value any) *Error {
	return &Error{
		Phase: PhaseConvert,
		Kind:  KindThrown,
		Value: value,
	}
}

// Disposed creates an error for use of a disposed handle
func Disposed(what string) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindDisposed,
		Detail: what + " has been disposed",
	}
}

// Closed creates an error for an operation on a closed component
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Terminated creates an error for an operation on a terminated isolate
func Terminated() *Error {
	return &Error{
		Phase:  PhaseIsolate,
		Kind:   KindTerminated,
		Detail: "isolate has been terminated",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotCallable creates an error for invoking a non-function value
func NotCallable(got string) *Error {
	return &Error{
		Phase:  PhaseConvert,
		Kind:   KindNotCallable,
		Detail: fmt.Sprintf("value of type %s is not callable", got),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsThrown reports whether err carries a script-thrown value and returns it.
func IsThrown(err error) (any, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == KindThrown {
			return e.Value, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
