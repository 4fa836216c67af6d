package warthog

import (
	"fmt"

	"github.com/warthog-wasm/warthog/internal/wasm"
)

// ValueType is the type of a parameter or result.
type ValueType = wasm.ValueType

const (
	ValueTypeI32 = wasm.ValueTypeI32
	ValueTypeI64 = wasm.ValueTypeI64
	ValueTypeF32 = wasm.ValueTypeF32
	ValueTypeF64 = wasm.ValueTypeF64
)

// Value is a typed parameter or result.
type Value = wasm.Value

func I32(v int32) Value { return wasm.I32(v) }

func I64(v int64) Value { return wasm.I64(v) }

func F32(v float32) Value { return wasm.F32(v) }

func F64(v float64) Value { return wasm.F64(v) }

// Module is a WebAssembly 1.0 (20191205) module decoded by Runtime.DecodeModule, ready to be instantiated once.
//
// Note: In WebAssembly language, this is a decoded module. The name "Module" is not reused for instantiated modules
// as the conflation has caused confusion.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#semantic-phases%E2%91%A0
type Module struct {
	module *wasm.Module
	name   string
}

// Name returns the module name from the custom name section, or empty if there was none.
func (m *Module) Name() string {
	return m.name
}

// ModuleInstance is an instantiated module.
type ModuleInstance struct {
	r    *runtime
	addr wasm.ModuleAddr
}

// Name is the name the module was instantiated under.
func (m *ModuleInstance) Name() string {
	return m.instance().Name
}

// Addr is the handle of the module in Runtime.Host.
func (m *ModuleInstance) Addr() wasm.ModuleAddr {
	return m.addr
}

func (m *ModuleInstance) instance() *wasm.ModuleInstance {
	return m.r.host.Module(m.addr)
}

// ExportedFunction returns a function exported from this module or nil if it wasn't.
func (m *ModuleInstance) ExportedFunction(name string) *Function {
	e := m.instance().Export(name)
	if e == nil || e.Type != wasm.ExternTypeFunc {
		return nil
	}
	return &Function{m: m, name: name, addr: e.Function}
}

// ExportedMemory returns a memory exported from this module or nil if it wasn't.
func (m *ModuleInstance) ExportedMemory(name string) *Memory {
	e := m.instance().Export(name)
	if e == nil || e.Type != wasm.ExternTypeMemory {
		return nil
	}
	return &Memory{mem: m.r.host.Memory(e.Memory)}
}

// Function is a WebAssembly 1.0 (20191205) function exported from an instantiated module (ModuleInstance).
type Function struct {
	m    *ModuleInstance
	name string
	addr wasm.FunctionAddr
}

// ParamTypes are the possibly empty sequence of value types accepted by a function with this signature.
func (f *Function) ParamTypes() []ValueType {
	return f.m.r.host.Function(f.addr).Type.Params
}

// ResultTypes are the possibly empty sequence of value types returned by a function with this signature.
func (f *Function) ResultTypes() []ValueType {
	return f.m.r.host.Function(f.addr).Type.Results
}

// Call invokes the function with parameters encoded according to ParamTypes. Up to one result is returned,
// encoded according to ResultTypes. An error is returned for any failure looking up or invoking the function
// including a trap, which can be inspected with errors.As and *interpreter.Trap.
//
// Each call runs on a new thread whose bottom frame is in the module that exported the function.
func (f *Function) Call(params ...Value) ([]Value, error) {
	if expected := len(f.ParamTypes()); expected != len(params) {
		return nil, fmt.Errorf("expected %d params, but passed %d", expected, len(params))
	}

	args := make([][]wasm.Instruction, len(params))
	for i, p := range params {
		args[i] = constExpr(p)
	}
	return f.m.r.newThread(f.m.addr).Call(f.m.addr, f.addr, args...)
}

// constExpr returns an expression that pushes v.
func constExpr(v Value) []wasm.Instruction {
	var op wasm.Opcode
	switch v.Type() {
	case wasm.ValueTypeI32:
		op = wasm.OpcodeI32Const
	case wasm.ValueTypeI64:
		op = wasm.OpcodeI64Const
	case wasm.ValueTypeF32:
		op = wasm.OpcodeF32Const
	case wasm.ValueTypeF64:
		op = wasm.OpcodeF64Const
	default:
		return nil
	}
	return []wasm.Instruction{{Opcode: op, Const: v.Bits()}}
}

// Memory is a linear memory exported from an instantiated module.
type Memory struct {
	mem *wasm.MemoryInstance
}

// Size returns the length in bytes, which is 2^32 for a memory of 65536 pages.
func (m *Memory) Size() uint64 {
	return m.mem.Len()
}

// Read returns a view of byteCount bytes at offset, or false if out of range.
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	return m.mem.Read(offset, byteCount)
}

// Write copies v to offset, or returns false if out of range.
func (m *Memory) Write(offset uint32, v []byte) bool {
	return m.mem.Write(offset, v)
}
