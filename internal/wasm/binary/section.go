package binary

import (
	"bytes"
	"fmt"

	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

// decodeVectorSize reads a vector length, rejecting one that cannot fit in the rest of the section as each
// element takes at least one byte.
func decodeVectorSize(r *bytes.Reader) (uint32, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("get size of vector: %w", err)
	}
	if int64(vs) > int64(r.Len()) {
		return 0, fmt.Errorf("vector of size %d exceeds remaining %d bytes", vs, r.Len())
	}
	return vs, nil
}

func decodeTypeSection(r *bytes.Reader) ([]*wasm.FunctionType, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeFunctionType(r); err != nil {
			return nil, fmt.Errorf("read %d-th type: %v", i, err)
		}
	}
	return result, nil
}

// decodeFunctionType decodes a function type, which begins with 0x60.
// See https://www.w3.org/TR/wasm-core-1/#binary-functype
func decodeFunctionType(r *bytes.Reader) (*wasm.FunctionType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}
	if b != 0x60 {
		return nil, fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b)
	}

	params, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("could not read parameter types: %w", err)
	}
	results, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("could not read result types: %w", err)
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func encodeFunctionType(t *wasm.FunctionType) []byte {
	data := append([]byte{0x60}, encodeValueTypes(t.Params)...)
	return append(data, encodeValueTypes(t.Results)...)
}

func decodeImportSection(r *bytes.Reader) ([]*wasm.Import, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.Import, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeImport(r); err != nil {
			return nil, fmt.Errorf("read import: %w", err)
		}
	}
	return result, nil
}

func decodeFunctionSection(r *bytes.Reader) ([]uint32, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]uint32, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("get type index: %w", err)
		}
	}
	return result, err
}

func decodeMemorySection(r *bytes.Reader) ([]*wasm.MemoryType, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.MemoryType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeMemoryType(r); err != nil {
			return nil, fmt.Errorf("read memory type: %w", err)
		}
	}
	return result, nil
}

func decodeExportSection(r *bytes.Reader) ([]*wasm.Export, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	exportNames := make(map[string]struct{}, vs)
	result := make([]*wasm.Export, vs)
	for i := uint32(0); i < vs; i++ {
		export, err := decodeExport(r)
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		if _, ok := exportNames[export.Name]; ok {
			return nil, fmt.Errorf("export[%d] duplicates name %q", i, export.Name)
		}
		exportNames[export.Name] = struct{}{}
		result[i] = export
	}
	return result, nil
}

func decodeCodeSection(r *bytes.Reader) ([]*wasm.Code, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.Code, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeCode(r); err != nil {
			return nil, fmt.Errorf("read %d-th code segment: %v", i, err)
		}
	}
	return result, nil
}

func decodeDataSection(r *bytes.Reader) ([]*wasm.DataSegment, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*wasm.DataSegment, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeDataSegment(r); err != nil {
			return nil, fmt.Errorf("read data segment: %w", err)
		}
	}
	return result, nil
}

// encodeSection encodes the sectionID, the size of its contents in bytes, followed by the contents.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
func encodeSection(sectionID wasm.SectionID, contents []byte) []byte {
	return append([]byte{sectionID}, encodeSizePrefixed(contents)...)
}

// encodeVectorSection encodes a section whose contents are a vector of already encoded elements.
func encodeVectorSection(sectionID wasm.SectionID, elements [][]byte) []byte {
	contents := leb128.EncodeUint32(uint32(len(elements)))
	for _, e := range elements {
		contents = append(contents, e...)
	}
	return encodeSection(sectionID, contents)
}

// encodeCustomSection encodes the opaque bytes for the given name as a SectionIDCustom
// See https://www.w3.org/TR/wasm-core-1/#binary-customsec
func encodeCustomSection(name string, data []byte) []byte {
	return encodeSection(wasm.SectionIDCustom, append(encodeSizePrefixed([]byte(name)), data...))
}

func encodeIndex(i wasm.Index) []byte {
	return leb128.EncodeUint32(i)
}
