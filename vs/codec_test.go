package vs

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasm/binary"
)

// example holds every section the encoder writes.
var example = newExample()

// exampleBinary is example encoded in the WebAssembly 1.0 binary format.
var exampleBinary = binary.EncodeModule(example)

func newExample() *wasm.Module {
	three := wasm.Index(3)
	i32 := wasm.ValueTypeI32
	return &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}},
			{},
			{Params: []wasm.ValueType{i32}},
		},
		ImportSection: []*wasm.Import{
			{Type: wasm.ExternTypeFunc, Module: "env", Name: "print_i32", DescFunc: 2},
		},
		FunctionSection: []wasm.Index{1, 1, 0},
		MemorySection:   []*wasm.MemoryType{{Min: 1, Max: &three}},
		ExportSection: []*wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: "AddInt", Index: 3},
			{Type: wasm.ExternTypeMemory, Name: "mem", Index: 0},
			{Type: wasm.ExternTypeFunc, Name: "hello", Index: 1},
		},
		CodeSection: []*wasm.Code{
			{Body: []wasm.Instruction{{Opcode: wasm.OpcodeCall, Index: 2}}},
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Const: 4},
				{Opcode: wasm.OpcodeI32Load, MemArg: wasm.MemArg{Align: 2}},
				{Opcode: wasm.OpcodeCall, Index: 0},
			}},
			{LocalTypes: []wasm.ValueType{i32}, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 1},
				{Opcode: wasm.OpcodeI32Add},
				{Opcode: wasm.OpcodeLocalTee, Index: 2},
				{Opcode: wasm.OpcodeIf, BlockType: i32},
				{Opcode: wasm.OpcodeLocalGet, Index: 2},
				{Opcode: wasm.OpcodeElse},
				{Opcode: wasm.OpcodeI32Const, Const: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
		DataSection: []*wasm.DataSegment{
			{OffsetExpression: []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Const: 4}}, Init: []byte{42, 0, 0, 0}},
		},
		CustomSections: []*wasm.CustomSection{{Name: "warthog.test", Data: []byte{0}}},
		NameSection: &wasm.NameSection{
			ModuleName: "example",
			FunctionNames: wasm.NameMap{
				{Index: 0, Name: "print_i32"},
				{Index: 1, Name: "call_hello"},
				{Index: 2, Name: "hello"},
				{Index: 3, Name: "addInt"},
			},
			LocalNames: wasm.IndirectNameMap{
				{Index: 3, NameMap: wasm.NameMap{
					{Index: 0, Name: "value_1"},
					{Index: 1, Name: "value_2"},
					{Index: 2, Name: "sum"},
				}},
			},
		},
	}
}

// TestExampleBinary_Decode ensures the decoder returns what was encoded, ignoring the block positions it computes.
func TestExampleBinary_Decode(t *testing.T) {
	decoded, err := binary.DecodeModule(bytes.NewReader(exampleBinary), nil)
	require.NoError(t, err)

	if diff := cmp.Diff(example, decoded, cmpopts.IgnoreFields(wasm.Instruction{}, "Else", "End"), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("decoded module mismatch (-want +got):\n%s", diff)
	}
}

// TestExampleBinary_Wazero ensures wazero accepts what the encoder produces.
func TestExampleBinary_Wazero(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, exampleBinary)
	require.NoError(t, err)
	require.Equal(t, "example", compiled.Name())

	exports := compiled.ExportedFunctions()
	require.Contains(t, exports, "AddInt")
	require.Contains(t, exports, "hello")
	require.Contains(t, compiled.ExportedMemories(), "mem")
}

func BenchmarkCodec(b *testing.B) {
	b.Run("binary.DecodeModule", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := binary.DecodeModule(bytes.NewReader(exampleBinary), nil); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("binary.EncodeModule", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = binary.EncodeModule(example)
		}
	})
}
