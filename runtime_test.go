package warthog

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasm/binary"
	"github.com/warthog-wasm/warthog/internal/wasm/interpreter"
	"github.com/warthog-wasm/warthog/internal/wasmruntime"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
)

// mathWasm exports "add" and "sub" over i32, "trap" which is unreachable and "memory" with "hi" at offset 8.
var mathWasm = binary.EncodeModule(&wasm.Module{
	TypeSection: []*wasm.FunctionType{
		{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
		{},
	},
	FunctionSection: []wasm.Index{0, 0, 1},
	MemorySection:   []*wasm.MemoryType{{Min: 1}},
	ExportSection: []*wasm.Export{
		{Type: wasm.ExternTypeFunc, Name: "add", Index: 0},
		{Type: wasm.ExternTypeFunc, Name: "sub", Index: 1},
		{Type: wasm.ExternTypeFunc, Name: "trap", Index: 2},
		{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0},
	},
	CodeSection: []*wasm.Code{
		{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32Add},
		}},
		{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32Sub},
		}},
		{Body: []wasm.Instruction{{Opcode: wasm.OpcodeUnreachable}}},
	},
	DataSection: []*wasm.DataSegment{
		{OffsetExpression: []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Const: 8}}, Init: []byte("hi")},
	},
	NameSection: &wasm.NameSection{ModuleName: "math"},
})

func TestRuntime_DecodeModule(t *testing.T) {
	r := NewRuntime()

	decoded, err := r.DecodeModule(bytes.NewReader(mathWasm))
	require.NoError(t, err)
	require.Equal(t, "math", decoded.Name())
}

func TestRuntime_DecodeModule_Errors(t *testing.T) {
	r := NewRuntime()

	_, err := r.DecodeModule(nil)
	require.EqualError(t, err, "source == nil")

	_, err = r.DecodeModule(bytes.NewReader([]byte("not wasm")))
	require.Error(t, err)
}

func TestRuntime_InstantiateModule(t *testing.T) {
	r := NewRuntime()

	decoded, err := r.DecodeModule(bytes.NewReader(mathWasm))
	require.NoError(t, err)

	m, err := r.InstantiateModule("calc", decoded)
	require.NoError(t, err)
	require.Equal(t, "calc", m.Name())
	require.Equal(t, m.Addr(), r.Module("calc").Addr())
	require.Nil(t, r.Module("math"))

	// The decoded module can only be instantiated once.
	_, err = r.InstantiateModule("again", decoded)
	require.EqualError(t, err, "module[again] was already instantiated")

	_, err = r.InstantiateModule("nil", nil)
	require.EqualError(t, err, "module == nil")
}

func TestModuleInstance_ExportedFunction(t *testing.T) {
	r := NewRuntime()
	m := instantiateMath(t, r)

	add := m.ExportedFunction("add")
	require.NotNil(t, add)
	require.Equal(t, []ValueType{i32, i32}, add.ParamTypes())
	require.Equal(t, []ValueType{i32}, add.ResultTypes())

	require.Nil(t, m.ExportedFunction("nope"))
	require.Nil(t, m.ExportedFunction("memory"), "memory isn't a function")
}

func TestFunction_Call(t *testing.T) {
	r := NewRuntime()
	m := instantiateMath(t, r)

	results, err := m.ExportedFunction("add").Call(I32(40), I32(2))
	require.NoError(t, err)
	require.Equal(t, []Value{I32(42)}, results)

	// The first argument is the first parameter.
	results, err = m.ExportedFunction("sub").Call(I32(10), I32(3))
	require.NoError(t, err)
	require.Equal(t, []Value{I32(7)}, results)
}

func TestFunction_Call_Errors(t *testing.T) {
	r := NewRuntime()
	m := instantiateMath(t, r)

	_, err := m.ExportedFunction("add").Call(I32(1))
	require.EqualError(t, err, "expected 2 params, but passed 1")

	_, err = m.ExportedFunction("add").Call(I32(1), I64(2))
	var trap *interpreter.Trap
	require.True(t, errors.As(err, &trap))
	var mismatch *wasm.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, &wasm.TypeMismatchError{Expected: i32, Actual: i64}, mismatch)

	_, err = m.ExportedFunction("trap").Call()
	require.True(t, errors.As(err, &trap))
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeUnreachable)
}

func TestModuleInstance_ExportedMemory(t *testing.T) {
	r := NewRuntime()
	m := instantiateMath(t, r)

	mem := m.ExportedMemory("memory")
	require.NotNil(t, mem)
	require.Equal(t, uint64(wasm.PageSize), mem.Size())

	// The exported memory is a fresh instance of the declared type: data segments initialize the internal one.
	b, ok := mem.Read(8, 2)
	require.True(t, ok)
	require.Equal(t, []byte{0, 0}, b)

	require.True(t, mem.Write(8, []byte("yo")))
	b, ok = mem.Read(8, 2)
	require.True(t, ok)
	require.Equal(t, []byte("yo"), b)

	_, ok = mem.Read(wasm.PageSize-1, 2)
	require.False(t, ok)

	require.Nil(t, m.ExportedMemory("add"))
	require.Nil(t, m.ExportedMemory("nope"))
}

func TestRuntime_CallStackCeiling(t *testing.T) {
	recurse := binary.EncodeModule(&wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "recurse", Index: 0}},
		CodeSection:     []*wasm.Code{{Body: []wasm.Instruction{{Opcode: wasm.OpcodeCall, Index: 0}}}},
	})

	r := NewRuntimeWithConfig(NewRuntimeConfig().WithCallStackCeiling(50))
	decoded, err := r.DecodeModule(bytes.NewReader(recurse))
	require.NoError(t, err)
	m, err := r.InstantiateModule("recurse", decoded)
	require.NoError(t, err)

	_, err = m.ExportedFunction("recurse").Call()
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeCallStackOverflow)

	var trap *interpreter.Trap
	require.True(t, errors.As(err, &trap))
	require.Len(t, trap.Trace, 50)
}

func instantiateMath(t *testing.T, r Runtime) *ModuleInstance {
	decoded, err := r.DecodeModule(bytes.NewReader(mathWasm))
	require.NoError(t, err)
	m, err := r.InstantiateModule("math", decoded)
	require.NoError(t, err)
	return m
}
