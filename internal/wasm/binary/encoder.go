package binary

import (
	"github.com/warthog-wasm/warthog/internal/wasm"
)

var sizePrefixedName = []byte{4, 'n', 'a', 'm', 'e'}

// EncodeModule implements wasm.EncodeModule for the WebAssembly 1.0 (20191205) Binary Format.
// Sections are written in canonical order, empty ones omitted. Custom sections precede the others and the name
// section comes last.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
func EncodeModule(m *wasm.Module) (bytes []byte) {
	bytes = append(append([]byte{}, Magic...), version...)
	for _, c := range m.CustomSections {
		bytes = append(bytes, encodeCustomSection(c.Name, c.Data)...)
	}
	if len(m.TypeSection) > 0 {
		elements := make([][]byte, len(m.TypeSection))
		for i, t := range m.TypeSection {
			elements[i] = encodeFunctionType(t)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDType, elements)...)
	}
	if len(m.ImportSection) > 0 {
		elements := make([][]byte, len(m.ImportSection))
		for i, im := range m.ImportSection {
			elements[i] = encodeImport(im)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDImport, elements)...)
	}
	if len(m.FunctionSection) > 0 {
		elements := make([][]byte, len(m.FunctionSection))
		for i, typeIndex := range m.FunctionSection {
			elements[i] = encodeIndex(typeIndex)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDFunction, elements)...)
	}
	if len(m.MemorySection) > 0 {
		elements := make([][]byte, len(m.MemorySection))
		for i, mt := range m.MemorySection {
			elements[i] = encodeMemoryType(mt)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDMemory, elements)...)
	}
	if len(m.ExportSection) > 0 {
		elements := make([][]byte, len(m.ExportSection))
		for i, e := range m.ExportSection {
			elements[i] = encodeExport(e)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDExport, elements)...)
	}
	if len(m.CodeSection) > 0 {
		elements := make([][]byte, len(m.CodeSection))
		for i, c := range m.CodeSection {
			elements[i] = encodeCode(c)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDCode, elements)...)
	}
	if len(m.DataSection) > 0 {
		elements := make([][]byte, len(m.DataSection))
		for i, d := range m.DataSection {
			elements[i] = encodeDataSegment(d)
		}
		bytes = append(bytes, encodeVectorSection(wasm.SectionIDData, elements)...)
	}
	if m.NameSection != nil {
		nameSection := append(append([]byte{}, sizePrefixedName...), encodeNameSectionData(m.NameSection)...)
		bytes = append(bytes, encodeSection(wasm.SectionIDCustom, nameSection)...)
	}
	return
}
