package wasm

import (
	"errors"
	"fmt"
	"math"
)

// ValueType is the type of a value on the operand stack or in a local.
//
// See https://www.w3.org/TR/wasm-core-1/#value-types%E2%91%A2
type ValueType byte

const (
	// ValueTypeNil is the empty block type. It is never a declared parameter or result and never on a stack.
	ValueTypeNil ValueType = 0x40
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// String returns the type name as it appears in the text format, or "nil" for ValueTypeNil.
func (t ValueType) String() string {
	switch t {
	case ValueTypeNil, 0:
		return "nil"
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("unknown(0x%x)", byte(t))
}

// IsNumeric returns true unless the type is ValueTypeNil or unknown.
func (t ValueType) IsNumeric() bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	}
	return false
}

// ErrStackUnderflow is returned when a value is required but none is present.
var ErrStackUnderflow = errors.New("stack underflow")

// TypeMismatchError is returned when a value's type differs from the one required.
type TypeMismatchError struct {
	Expected, Actual ValueType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, actual %s", e.Expected, e.Actual)
}

// Value is a tagged union of the numeric types. The zero value is Nil.
//
// Floats are held as raw bits so NaN payloads pass through unchanged.
type Value struct {
	typ  ValueType
	bits uint64
}

// Nil returns the placeholder value. Pushing it onto an operand stack has no effect.
func Nil() Value { return Value{} }

func I32(v int32) Value { return Value{typ: ValueTypeI32, bits: uint64(uint32(v))} }

func I64(v int64) Value { return Value{typ: ValueTypeI64, bits: uint64(v)} }

func F32(v float32) Value { return Value{typ: ValueTypeF32, bits: uint64(math.Float32bits(v))} }

func F64(v float64) Value { return Value{typ: ValueTypeF64, bits: math.Float64bits(v)} }

// ValueFromBits returns a value of the given type whose payload is the low bits of raw.
func ValueFromBits(t ValueType, raw uint64) Value {
	switch t {
	case ValueTypeI32, ValueTypeF32:
		return Value{typ: t, bits: uint64(uint32(raw))}
	case ValueTypeI64, ValueTypeF64:
		return Value{typ: t, bits: raw}
	}
	return Value{}
}

// ZeroValue returns the zero of the given type, used to initialize declared locals.
func ZeroValue(t ValueType) Value {
	return ValueFromBits(t, 0)
}

// Type returns the type of the value, ValueTypeNil for the zero Value.
func (v Value) Type() ValueType {
	if v.typ == 0 {
		return ValueTypeNil
	}
	return v.typ
}

// IsNil returns true if the value carries no payload.
func (v Value) IsNil() bool {
	return v.typ == 0 || v.typ == ValueTypeNil
}

// Bits returns the raw payload: a zero-extended integer or the IEEE 754 bits of a float.
func (v Value) Bits() uint64 {
	return v.bits
}

// Check returns ErrStackUnderflow if the value is Nil or a TypeMismatchError if it is not of type t.
func (v Value) Check(t ValueType) error {
	if v.IsNil() {
		return ErrStackUnderflow
	}
	if v.typ != t {
		return &TypeMismatchError{Expected: t, Actual: v.typ}
	}
	return nil
}

func (v Value) AsI32() (int32, error) {
	if err := v.Check(ValueTypeI32); err != nil {
		return 0, err
	}
	return int32(uint32(v.bits)), nil
}

func (v Value) AsI64() (int64, error) {
	if err := v.Check(ValueTypeI64); err != nil {
		return 0, err
	}
	return int64(v.bits), nil
}

func (v Value) AsF32() (float32, error) {
	if err := v.Check(ValueTypeF32); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v.bits)), nil
}

func (v Value) AsF64() (float64, error) {
	if err := v.Check(ValueTypeF64); err != nil {
		return 0, err
	}
	return math.Float64frombits(v.bits), nil
}

// String formats the payload in decimal, or "nil".
func (v Value) String() string {
	switch v.typ {
	case ValueTypeI32:
		return fmt.Sprintf("%d", int32(uint32(v.bits)))
	case ValueTypeI64:
		return fmt.Sprintf("%d", int64(v.bits))
	case ValueTypeF32:
		return fmt.Sprintf("%v", math.Float32frombits(uint32(v.bits)))
	case ValueTypeF64:
		return fmt.Sprintf("%v", math.Float64frombits(v.bits))
	}
	return "nil"
}
