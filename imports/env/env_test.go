package env

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warthog-wasm/warthog"
	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasm/binary"
	"github.com/warthog-wasm/warthog/internal/wasm/interpreter"
)

func i32Const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpcodeI32Const, Const: uint64(uint32(v))}
}

func call(idx wasm.Index) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpcodeCall, Index: idx}
}

// guestWasm imports abort, print_i64 and print. "print" prints -5 then 42, and "abort" aborts with the message
// "hi" at offset 8.
var guestWasm = binary.EncodeModule(&wasm.Module{
	TypeSection: []*wasm.FunctionType{
		{Params: []wasm.ValueType{i32, i32, i32, i32}},
		{Params: []wasm.ValueType{i64}},
		{Params: []wasm.ValueType{i32}},
		{},
	},
	ImportSection: []*wasm.Import{
		{Type: wasm.ExternTypeFunc, Module: ModuleName, Name: AbortName, DescFunc: 0},
		{Type: wasm.ExternTypeFunc, Module: ModuleName, Name: PrintI64Name, DescFunc: 1},
		{Type: wasm.ExternTypeFunc, Module: ModuleName, Name: PrintName, DescFunc: 2},
	},
	FunctionSection: []wasm.Index{3, 3},
	MemorySection:   []*wasm.MemoryType{{Min: 1}},
	ExportSection: []*wasm.Export{
		{Type: wasm.ExternTypeFunc, Name: "print", Index: 3},
		{Type: wasm.ExternTypeFunc, Name: "abort", Index: 4},
	},
	CodeSection: []*wasm.Code{
		{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeI64Const, Const: uint64(0xfffffffffffffffb)},
			call(1),
			i32Const(42),
			call(2),
		}},
		{Body: []wasm.Instruction{i32Const(8), i32Const(0), i32Const(3), i32Const(7), call(0)}},
	},
	DataSection: []*wasm.DataSegment{
		{OffsetExpression: []wasm.Instruction{i32Const(4)}, Init: []byte{4, 0, 0, 0, 'h', 0, 'i', 0}},
	},
})

func instantiateGuest(t *testing.T, r warthog.Runtime) *warthog.ModuleInstance {
	decoded, err := r.DecodeModule(bytes.NewReader(guestWasm))
	require.NoError(t, err)
	m, err := r.InstantiateModule("guest", decoded)
	require.NoError(t, err)
	return m
}

func TestInstantiate(t *testing.T) {
	r := warthog.NewRuntime()
	var out bytes.Buffer

	env, err := Instantiate(r, &out)
	require.NoError(t, err)
	require.Equal(t, ModuleName, env.Name())

	for _, name := range []string{AbortName, PrintName, PrintI32Name, PrintI64Name, PrintF32Name, PrintF64Name} {
		require.NotNil(t, env.ExportedFunction(name), name)
	}
	require.Equal(t, []warthog.ValueType{i32}, env.ExportedFunction(PrintName).ParamTypes())
}

func TestPrint(t *testing.T) {
	r := warthog.NewRuntime()
	var out bytes.Buffer
	_, err := Instantiate(r, &out)
	require.NoError(t, err)

	_, err = instantiateGuest(t, r).ExportedFunction("print").Call()
	require.NoError(t, err)
	require.Equal(t, "-5\n42\n", out.String())
}

func TestPrint_Floats(t *testing.T) {
	tests := []struct {
		name     string
		arg      warthog.Value
		expected string
	}{
		{name: PrintF32Name, arg: warthog.F32(1.5), expected: "1.5\n"},
		{name: PrintF64Name, arg: warthog.F64(-0.25), expected: "-0.25\n"},
		{name: PrintI32Name, arg: warthog.I32(-1), expected: "-1\n"},
		{name: PrintI64Name, arg: warthog.I64(1 << 40), expected: "1099511627776\n"},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			r := warthog.NewRuntime()
			var out bytes.Buffer
			env, err := Instantiate(r, &out)
			require.NoError(t, err)

			_, err = env.ExportedFunction(tc.name).Call(tc.arg)
			require.NoError(t, err)
			require.Equal(t, tc.expected, out.String())
		})
	}
}

func TestAbort(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := warthog.NewRuntimeWithConfig(warthog.NewRuntimeConfig().WithLogger(zap.New(core)))
	_, err := Instantiate(r, nil)
	require.NoError(t, err)

	_, err = instantiateGuest(t, r).ExportedFunction("abort").Call()
	require.ErrorIs(t, err, ErrAbort)

	var trap *interpreter.Trap
	require.True(t, errors.As(err, &trap))
	require.Equal(t, "abort: hi at <0x00000000>:3:7", trap.Message)

	entries := logs.FilterMessage("env abort").All()
	require.Len(t, entries, 1)
	require.Equal(t, "hi", entries[0].ContextMap()["message"])
}

func TestAbort_NoMemory(t *testing.T) {
	r := warthog.NewRuntime()
	env, err := Instantiate(r, nil)
	require.NoError(t, err)

	// Called directly, the caller is env which has no memory.
	_, err = env.ExportedFunction(AbortName).Call(warthog.I32(8), warthog.I32(16), warthog.I32(1), warthog.I32(2))
	require.ErrorIs(t, err, ErrAbort)
	require.Contains(t, err.Error(), "abort: <0x00000008> at <0x00000010>:1:2")
}
