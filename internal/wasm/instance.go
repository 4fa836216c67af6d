package wasm

import "fmt"

// ModuleAddr is the stable handle of a ModuleInstance in a Host. Handles are zero-based and never reused.
type ModuleAddr uint32

// FunctionAddr is the stable handle of a FunctionInstance in a Host.
type FunctionAddr uint32

// MemoryAddr is the stable handle of a MemoryInstance in a Host.
type MemoryAddr uint32

func (a ModuleAddr) String() string   { return fmt.Sprintf("[ModuleAddr]0x%04X", uint32(a)) }
func (a FunctionAddr) String() string { return fmt.Sprintf("[FunctionAddr]0x%04X", uint32(a)) }
func (a MemoryAddr) String() string   { return fmt.Sprintf("[MemoryAddr]0x%04X", uint32(a)) }

// ModuleInstance is a Module linked into a Host: its index namespaces resolved to handles.
// See https://www.w3.org/TR/wasm-core-1/#module-instances%E2%91%A0
type ModuleInstance struct {
	Name string

	// Functions maps the function index namespace to handles: imports first, then locally defined functions.
	Functions []FunctionAddr

	// Memories maps the memory index namespace to handles: imports first, then locally defined memories.
	Memories []MemoryAddr

	// Exports are in declaration order.
	Exports []*ExportInstance

	// Names are the debug names decoded from the module, or nil.
	Names *NameSection
}

// Export returns the export of the given name or nil.
func (m *ModuleInstance) Export(name string) *ExportInstance {
	for _, e := range m.Exports {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Function returns the handle at the given index in the function namespace.
func (m *ModuleInstance) Function(idx Index) (FunctionAddr, bool) {
	if int(idx) >= len(m.Functions) {
		return 0, false
	}
	return m.Functions[idx], true
}

// Memory returns the handle at the given index in the memory namespace.
func (m *ModuleInstance) Memory(idx Index) (MemoryAddr, bool) {
	if int(idx) >= len(m.Memories) {
		return 0, false
	}
	return m.Memories[idx], true
}

// ExportInstance is a named export whose referent is tagged by Type.
// See https://www.w3.org/TR/wasm-core-1/#export-instances%E2%91%A0
type ExportInstance struct {
	Name string
	// Type is either ExternTypeFunc or ExternTypeMemory.
	Type     ExternType
	Function FunctionAddr
	Memory   MemoryAddr
}

// String returns the referent, such as "func [FunctionAddr]0x0001".
func (e *ExportInstance) String() string {
	if e.Type == ExternTypeMemory {
		return fmt.Sprintf("memory %s", e.Memory)
	}
	return fmt.Sprintf("func %s", e.Function)
}

// FunctionKind distinguishes functions decoded from a Module and those implemented by the host.
type FunctionKind byte

const (
	// FunctionKindLocal is a function whose body is a decoded instruction sequence.
	FunctionKindLocal FunctionKind = iota
	// FunctionKindExternal is a function implemented by a HostFunction.
	FunctionKindExternal
)

// FunctionInstance is one callable unit in a Host.
// See https://www.w3.org/TR/wasm-core-1/#function-instances%E2%91%A0
type FunctionInstance struct {
	Type *FunctionType
	Kind FunctionKind

	// Module is the owning module of a FunctionKindLocal. Its namespaces resolve call and memory instructions.
	Module ModuleAddr
	// CodeIndex is the position of Code in the owning Module.CodeSection.
	CodeIndex Index
	Code      *Code

	// Host implements a FunctionKindExternal. One HostFunction may back several exports.
	Host HostFunction
}
