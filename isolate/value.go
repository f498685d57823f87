package isolate

import (
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/script-bridge/errors"
)

// maxBufferSize caps a single buffer allocation.
const maxBufferSize = 1 << 30

// Local is a runtime-local reference, valid only while the scope that
// produced it is open. Go code must never cache a Local past its
// scope's Close; promote to a Persistent instead. The zero Local is
// empty.
type Local struct {
	scope *Scope
	ref   Ref
}

// IsEmpty reports whether the local references nothing.
func (l Local) IsEmpty() bool {
	return l.ref == 0
}

func (l Local) cell() *cell {
	if l.ref == 0 {
		panic("isolate: use of empty local")
	}
	l.scope.checkActive()
	return l.scope.iso.cellAt(l.ref)
}

// Value constructors. Each roots its result in the receiver scope.

// Undefined returns a fresh undefined value.
func (s *Scope) Undefined() Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagUndefined}))
}

// Null returns a fresh null value.
func (s *Scope) Null() Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagNull}))
}

// Boolean creates a boolean value.
func (s *Scope) Boolean(b bool) Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagBoolean, boolVal: b}))
}

// Number creates a number value.
func (s *Scope) Number(f float64) Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagNumber, num: f}))
}

// String creates a string value. The bytes must be valid UTF-8; invalid
// input is a conversion failure, not a panic.
func (s *Scope) String(str string) (Local, error) {
	s.checkActive()
	if !utf8.ValidString(str) {
		return Local{}, errors.InvalidUTF8(errors.PhaseConvert, []byte(str))
	}
	return s.adopt(s.iso.alloc(cell{tag: TagString, str: str})), nil
}

// Object creates an empty object.
func (s *Scope) Object() Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagObject, props: make(map[string]Ref)}))
}

// Array creates an array of the given length, every element undefined.
func (s *Scope) Array(length uint32) Local {
	s.checkActive()
	return s.adopt(s.iso.alloc(cell{tag: TagArray, elems: make([]Ref, length)}))
}

// Buffer creates a zero-filled byte buffer.
func (s *Scope) Buffer(size uint32) (Local, error) {
	s.checkActive()
	if size > maxBufferSize {
		return Local{}, errors.New(errors.PhaseConvert, errors.KindAllocation).
			Detail("buffer of %d bytes exceeds limit", size).Build()
	}
	return s.adopt(s.iso.alloc(cell{tag: TagBuffer, buf: make([]byte, size)})), nil
}

// Error creates an error value with the given message.
func (s *Scope) Error(message string) Local {
	return s.newError("Error", message)
}

// TypeError creates a TypeError value.
func (s *Scope) TypeError(message string) Local {
	return s.newError("TypeError", message)
}

// RangeError creates a RangeError value.
func (s *Scope) RangeError(message string) Local {
	return s.newError("RangeError", message)
}

func (s *Scope) newError(name, message string) Local {
	s.checkActive()
	iso := s.iso
	nameRef := iso.alloc(cell{tag: TagString, str: name})
	msgRef := iso.alloc(cell{tag: TagString, str: message})
	return s.adopt(iso.alloc(cell{
		tag:   TagError,
		props: map[string]Ref{"name": nameRef, "message": msgRef},
		keys:  []string{"name", "message"},
	}))
}

// Function creates a callable value backed by cb. Every function gets a
// fresh prototype object wired to it through the usual
// prototype/constructor pair.
func (s *Scope) Function(name string, cb Callback) Local {
	return s.FunctionWithData(name, cb, nil)
}

// FunctionWithData creates a callable value carrying an opaque payload
// retrievable inside the callback via FunctionCall.Data. A single
// shared callback with per-function data is how one native entry point
// serves an unbounded number of logical functions.
func (s *Scope) FunctionWithData(name string, cb Callback, data any) Local {
	s.checkActive()
	iso := s.iso
	fnRef := iso.alloc(cell{
		tag:   TagFunction,
		str:   name,
		fn:    cb,
		data:  data,
		props: make(map[string]Ref),
		keys:  nil,
	})
	protoRef := iso.alloc(cell{
		tag:   TagObject,
		props: map[string]Ref{"constructor": fnRef},
		keys:  []string{"constructor"},
	})
	c := iso.cellAt(fnRef)
	c.props["prototype"] = protoRef
	c.keys = append(c.keys, "prototype")
	return s.adopt(fnRef)
}

// Accessors.

// TypeOf returns the value's type tag.
func (l Local) TypeOf() Tag {
	return l.cell().tag
}

// IsObject reports whether the value carries properties (objects,
// arrays, functions, and errors all do).
func (l Local) IsObject() bool {
	return isObjectLike(l.cell().tag)
}

// IsFunction reports whether the value is callable.
func (l Local) IsFunction() bool {
	return l.cell().tag == TagFunction
}

func isObjectLike(t Tag) bool {
	switch t {
	case TagObject, TagArray, TagFunction, TagError, TagBuffer:
		return true
	default:
		return false
	}
}

// BooleanValue extracts a boolean.
func (l Local) BooleanValue() (bool, error) {
	c := l.cell()
	if c.tag != TagBoolean {
		return false, errors.TypeMismatch(errors.PhaseConvert, TagBoolean.String(), c.tag.String())
	}
	return c.boolVal, nil
}

// NumberValue extracts a float64.
func (l Local) NumberValue() (float64, error) {
	c := l.cell()
	if c.tag != TagNumber {
		return 0, errors.TypeMismatch(errors.PhaseConvert, TagNumber.String(), c.tag.String())
	}
	return c.num, nil
}

// StringValue extracts the Go string behind a string value.
func (l Local) StringValue() (string, error) {
	c := l.cell()
	if c.tag != TagString {
		return "", errors.TypeMismatch(errors.PhaseConvert, TagString.String(), c.tag.String())
	}
	return c.str, nil
}

// BufferData returns the live backing bytes of a buffer. The slice
// aliases runtime-owned memory: it is valid under the same rules as the
// Local itself.
func (l Local) BufferData() ([]byte, error) {
	c := l.cell()
	if c.tag != TagBuffer {
		return nil, errors.TypeMismatch(errors.PhaseConvert, TagBuffer.String(), c.tag.String())
	}
	return c.buf, nil
}

// Get reads a property, walking the prototype chain. An own property
// shadows inherited ones; missing properties read as undefined. The
// result is rooted in the receiver's scope.
func (l Local) Get(key string) (Local, error) {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return Local{}, errors.TypeMismatch(errors.PhaseConvert, TagObject.String(), c.tag.String())
	}
	iso := l.scope.iso
	for cur := c; ; cur = iso.cellAt(cur.proto) {
		if ref, ok := cur.props[key]; ok {
			if ref == 0 {
				return l.scope.Undefined(), nil
			}
			return l.scope.adopt(ref), nil
		}
		if cur.proto == 0 {
			return l.scope.Undefined(), nil
		}
	}
}

// Set writes a named property. Returns false without error when the
// receiver cannot carry properties.
func (l Local) Set(key string, v Local) (bool, error) {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return false, nil
	}
	if !utf8.ValidString(key) {
		return false, errors.InvalidUTF8(errors.PhaseConvert, []byte(key))
	}
	if v.ref != 0 {
		v.scope.checkActive()
	}
	if c.props == nil {
		c.props = make(map[string]Ref)
	}
	if _, exists := c.props[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.props[key] = v.ref
	return true, nil
}

// OwnPropertyNames returns the receiver's own property names in
// insertion order.
func (l Local) OwnPropertyNames() ([]string, error) {
	c := l.cell()
	if !isObjectLike(c.tag) {
		return nil, errors.TypeMismatch(errors.PhaseConvert, TagObject.String(), c.tag.String())
	}
	names := make([]string, len(c.keys))
	copy(names, c.keys)
	return names, nil
}

// GetIndex reads an array element.
func (l Local) GetIndex(i uint32) (Local, error) {
	c := l.cell()
	if c.tag != TagArray {
		return Local{}, errors.TypeMismatch(errors.PhaseConvert, TagArray.String(), c.tag.String())
	}
	if int(i) >= len(c.elems) {
		return Local{}, errors.OutOfBounds(errors.PhaseConvert, int(i), len(c.elems))
	}
	if c.elems[i] == 0 {
		return l.scope.Undefined(), nil
	}
	return l.scope.adopt(c.elems[i]), nil
}

// SetIndex writes an array element.
func (l Local) SetIndex(i uint32, v Local) (bool, error) {
	c := l.cell()
	if c.tag != TagArray {
		return false, nil
	}
	if int(i) >= len(c.elems) {
		return false, errors.OutOfBounds(errors.PhaseConvert, int(i), len(c.elems))
	}
	if v.ref != 0 {
		v.scope.checkActive()
	}
	c.elems[i] = v.ref
	return true, nil
}

// Length returns an array's element count or a buffer's byte length.
func (l Local) Length() (uint32, error) {
	c := l.cell()
	switch c.tag {
	case TagArray:
		return uint32(len(c.elems)), nil
	case TagBuffer:
		return uint32(len(c.buf)), nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseConvert, TagArray.String(), c.tag.String())
	}
}

// Data returns the opaque payload attached at function creation, nil
// for non-functions.
func (l Local) Data() any {
	c := l.cell()
	if c.tag != TagFunction {
		return nil
	}
	return c.data
}

// ToString converts the value to a string value in the same scope.
func (l Local) ToString() (Local, error) {
	c := l.cell()
	var str string
	switch c.tag {
	case TagString:
		return l, nil
	case TagUndefined:
		str = "undefined"
	case TagNull:
		str = "null"
	case TagBoolean:
		str = strconv.FormatBool(c.boolVal)
	case TagNumber:
		str = strconv.FormatFloat(c.num, 'g', -1, 64)
	case TagFunction:
		str = "function " + c.str
	case TagError:
		str = l.errorString()
	default:
		str = "[object " + c.tag.String() + "]"
	}
	return l.scope.String(str)
}

func (l Local) errorString() string {
	c := l.cell()
	iso := l.scope.iso
	name, message := "Error", ""
	if ref := c.props["name"]; ref != 0 {
		name = iso.cellAt(ref).str
	}
	if ref := c.props["message"]; ref != 0 {
		message = iso.cellAt(ref).str
	}
	if message == "" {
		return name
	}
	return name + ": " + message
}
