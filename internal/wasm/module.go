package wasm

import (
	"fmt"
	"strings"
)

// Index is the offset in an index namespace, not necessarily an absolute position in a Module section. This is
// because index namespaces are often preceded by a corresponding type in the Module.ImportSection.
type Index = uint32

// Module is the decoded form of a WebAssembly binary, produced once by binary.DecodeModule and consumed by
// Host.Instantiate.
// See https://www.w3.org/TR/wasm-core-1/#modules%E2%91%A8
//
// Differences from the specification:
// * The NameSection is decoded, so not present in CustomSections.
// * Table, global, start and element sections are skipped by the decoder.
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	TypeSection []*FunctionType

	// ImportSection contains imported functions and memories required for instantiation, in declaration order.
	ImportSection []*Import

	// FunctionSection contains the index in TypeSection of each function defined in this module.
	//
	// Note: FunctionSection is index correlated with the CodeSection. If given the same position, ex. 2, a function
	// type is at TypeSection[FunctionSection[2]], while its locals and body are at CodeSection[2].
	FunctionSection []Index

	// MemorySection contains each memory defined in this module.
	//
	// Note: The memory Index namespace begins with imported memories and ends with those defined in this module.
	MemorySection []*MemoryType

	// ExportSection contains each export in declaration order. Names are unique.
	ExportSection []*Export

	// CodeSection is index-correlated with FunctionSection and contains each function's locals and body.
	CodeSection []*Code

	DataSection []*DataSegment

	// NameSection is set when the custom section "name" was decoded.
	// See https://www.w3.org/TR/wasm-core-1/#name-section%E2%91%A0
	NameSection *NameSection

	// CustomSections holds any other custom section, opaque to this runtime.
	CustomSections []*CustomSection
}

// ImportCount returns how many imports of the given type precede the locally defined ones in the index namespace.
func (m *Module) ImportCount(et ExternType) (count uint32) {
	for _, im := range m.ImportSection {
		if im.Type == et {
			count++
		}
	}
	return
}

// SectionElementCount returns the count of elements in a given section ID, for logging and diagnostics.
func (m *Module) SectionElementCount(sectionID SectionID) uint32 {
	switch sectionID {
	case SectionIDCustom:
		count := uint32(len(m.CustomSections))
		if m.NameSection != nil {
			count++
		}
		return count
	case SectionIDType:
		return uint32(len(m.TypeSection))
	case SectionIDImport:
		return uint32(len(m.ImportSection))
	case SectionIDFunction:
		return uint32(len(m.FunctionSection))
	case SectionIDMemory:
		return uint32(len(m.MemorySection))
	case SectionIDExport:
		return uint32(len(m.ExportSection))
	case SectionIDCode:
		return uint32(len(m.CodeSection))
	case SectionIDData:
		return uint32(len(m.DataSection))
	}
	return 0
}

// FunctionType is a possibly empty function signature.
// See https://www.w3.org/TR/wasm-core-1/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	Results []ValueType
}

// String returns a form like "(i32,i32) -> (i64)".
func (t *FunctionType) String() string {
	return fmt.Sprintf("(%s) -> (%s)", joinValueTypes(t.Params), joinValueTypes(t.Results))
}

// EqualsSignature returns true if the params and results are equal in order.
func (t *FunctionType) EqualsSignature(params, results []ValueType) bool {
	return equalValueTypes(t.Params, params) && equalValueTypes(t.Results, results)
}

func joinValueTypes(types []ValueType) string {
	names := make([]string, len(types))
	for i, vt := range types {
		names[i] = vt.String()
	}
	return strings.Join(names, ",")
}

func equalValueTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ExternType classifies imports and exports with their respective types.
// See https://www.w3.org/TR/wasm-core-1/#external-types%E2%91%A0
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the name of the WebAssembly 1.0 (20191205) Text Format field of the given type.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// Import is the binary representation of an import indicated by Type
// See https://www.w3.org/TR/wasm-core-1/#binary-import
type Import struct {
	Type ExternType
	// Module is the possibly empty primary namespace of this import
	Module string
	// Name is the possibly empty secondary namespace of this import
	Name string
	// DescFunc is the index in Module.TypeSection when Type equals ExternTypeFunc
	DescFunc Index
	// DescMem is the inlined MemoryType when Type equals ExternTypeMemory
	DescMem *MemoryType
}

// Export is the binary representation of an export indicated by Type
// See https://www.w3.org/TR/wasm-core-1/#binary-export
type Export struct {
	Type ExternType
	// Name is what the host refers to this definition as.
	Name string
	// Index is the index of the definition to export, the index namespace is by Type
	Index Index
}

// PageSize is the unit of memory length in WebAssembly.
// See https://www.w3.org/TR/wasm-core-1/#page-size
const PageSize uint32 = 65536

// MemoryLimitPages is the maximum number of pages a 32-bit address space can hold.
const MemoryLimitPages uint32 = 65536

// MemoryType describes the limits of a memory, in pages.
// See https://www.w3.org/TR/wasm-core-1/#memory-types%E2%91%A0
type MemoryType struct {
	Min uint32
	Max *uint32
}

// Code is an entry in the Module.CodeSection containing the locals and body of the function.
// See https://www.w3.org/TR/wasm-core-1/#binary-code
type Code struct {
	// LocalTypes are any function-scoped variables in insertion order, following the parameters.
	LocalTypes []ValueType

	// Body is the function body without its terminating end.
	Body []Instruction
}

// DataSegment initializes a range of a memory at instantiation.
// See https://www.w3.org/TR/wasm-core-1/#data-segments%E2%91%A0
type DataSegment struct {
	MemoryIndex Index
	// OffsetExpression is a constant expression without its terminating end. Only a single i32.const is supported.
	OffsetExpression []Instruction
	Init             []byte
}

// NameSection represent the known custom name subsections defined in the WebAssembly Binary Format
//
// Note: This can be nil if no names were decoded for any reason including configuration.
// See https://www.w3.org/TR/wasm-core-1/#name-section%E2%91%A0
type NameSection struct {
	// ModuleName is the symbolic identifier for a module. Ex. math
	//
	// Note: This can be empty for any reason including configuration.
	ModuleName string

	// FunctionNames is an association of a function index to its symbolic identifier. Ex. add
	//
	// * the key (idx) is in the function namespace, where module defined functions are preceded by imported ones.
	// See https://www.w3.org/TR/wasm-core-1/#functions%E2%91%A7
	//
	// Note: NameMap is unique by NameAssoc.Index, but NameAssoc.Name needn't be unique.
	FunctionNames NameMap

	// LocalNames contains symbolic names for function parameters or locals that have one.
	//
	// Note: In the Text Format, function local names can inherit parameter names from their type.
	LocalNames IndirectNameMap
}

// NameMap associates an index with any associated names.
//
// Note: Often the index namespace bridges multiple sections. For example, the function index namespace starts with
// any ExternTypeFunc in the Module.ImportSection followed by the Module.FunctionSection
//
// Note: NameMap is unique by NameAssoc.Index, but NameAssoc.Name needn't be unique.
// Note: When encoding in the Binary format, this must be ordered by NameAssoc.Index
// See https://www.w3.org/TR/wasm-core-1/#binary-namemap
type NameMap []*NameAssoc

type NameAssoc struct {
	Index Index
	Name  string
}

// IndirectNameMap associates an index with an association of names.
//
// Note: IndirectNameMap is unique by NameMapAssoc.Index, but NameMapAssoc.NameMap needn't be unique.
// Note: When encoding in the Binary format, this must be ordered by NameMapAssoc.Index
// https://www.w3.org/TR/wasm-core-1/#binary-indirectnamemap
type IndirectNameMap []*NameMapAssoc

type NameMapAssoc struct {
	Index   Index
	NameMap NameMap
}

// CustomSection is a custom section other than "name", kept opaque.
type CustomSection struct {
	Name string
	Data []byte
}

// SectionID identifies the sections of a Module in the WebAssembly 1.0 (20191205) Binary Format.
//
// Note: these are defined in the wasm package, instead of the binary package, as a key per section is needed regardless
// of format, and deferring to the binary type avoids confusion.
//
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom includes the standard defined NameSection and possibly others not defined in the standard.
	SectionIDCustom SectionID = iota // don't add anything not in https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// SectionIDName returns the canonical name of a module section.
// https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}
