package binary

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

// DecodeModule decodes a wasm.Module from the WebAssembly 1.0 (20191205) Binary Format read from r.
//
// Only structural well-formedness is checked. Sections may appear in any order, but a non-custom section may not
// repeat, nor may two custom sections share a name. Table, global, start and element sections are skipped.
//
// Errors from malformed input satisfy errors.Is(err, wasm.ErrInvalidModule). A stream that ends inside a section
// returns io.ErrUnexpectedEOF instead, and other read failures are returned wrapped.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
func DecodeModule(r io.Reader, logger *zap.Logger) (*wasm.Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	br, ok := r.(io.ByteReader)
	if !ok {
		buffered := bufio.NewReader(r)
		r, br = buffered, buffered
	}

	if err := ReadModuleHeader(r); err != nil {
		return nil, err
	}

	m := &wasm.Module{}
	seen := map[wasm.SectionID]struct{}{}
	customNames := map[string]struct{}{}
	for {
		sectionID, err := br.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}

		sectionSize, _, err := leb128.DecodeUint32(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("get size of section %s: %w", wasm.SectionIDName(sectionID), io.ErrUnexpectedEOF)
			} else if errors.Is(err, leb128.ErrOverflow) {
				return nil, fmt.Errorf("get size of section %s: %w", wasm.SectionIDName(sectionID), malformed(err))
			}
			return nil, fmt.Errorf("get size of section %s: %w", wasm.SectionIDName(sectionID), err)
		}

		payload, err := io.ReadAll(io.LimitReader(r, int64(sectionSize)))
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", wasm.SectionIDName(sectionID), err)
		} else if uint32(len(payload)) != sectionSize {
			return nil, fmt.Errorf("section %s: read %d of %d bytes: %w",
				wasm.SectionIDName(sectionID), len(payload), sectionSize, io.ErrUnexpectedEOF)
		}

		if sectionID != wasm.SectionIDCustom {
			if _, dup := seen[sectionID]; dup {
				return nil, fmt.Errorf("%w: section %s repeated", wasm.ErrInvalidModule, wasm.SectionIDName(sectionID))
			}
			seen[sectionID] = struct{}{}
		}

		sr := bytes.NewReader(payload)
		if err = decodeSection(sr, sectionID, m, customNames, logger); err != nil {
			return nil, fmt.Errorf("section %s: %w", wasm.SectionIDName(sectionID), malformed(err))
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%w: section %s has %d unread bytes",
				wasm.ErrInvalidModule, wasm.SectionIDName(sectionID), sr.Len())
		}
		logger.Debug("decoded section",
			zap.String("section", wasm.SectionIDName(sectionID)),
			zap.Uint32("size", sectionSize),
			zap.Uint32("elements", m.SectionElementCount(sectionID)))
	}

	if functionCount, codeCount := len(m.FunctionSection), len(m.CodeSection); functionCount != codeCount {
		return nil, fmt.Errorf("%w: function and code section have inconsistent lengths: %d != %d",
			wasm.ErrInvalidModule, functionCount, codeCount)
	}
	return m, nil
}

func decodeSection(r *bytes.Reader, sectionID wasm.SectionID, m *wasm.Module, customNames map[string]struct{}, logger *zap.Logger) (err error) {
	switch sectionID {
	case wasm.SectionIDCustom:
		name, _, err := decodeUTF8(r, "custom section name")
		if err != nil {
			return err
		}
		if _, dup := customNames[name]; dup {
			return fmt.Errorf("custom section %q repeated", name)
		}
		customNames[name] = struct{}{}

		if name == "name" {
			m.NameSection, err = decodeNameSection(r)
			return err
		}
		data := make([]byte, r.Len())
		_, _ = r.Read(data)
		m.CustomSections = append(m.CustomSections, &wasm.CustomSection{Name: name, Data: data})
	case wasm.SectionIDType:
		m.TypeSection, err = decodeTypeSection(r)
	case wasm.SectionIDImport:
		m.ImportSection, err = decodeImportSection(r)
	case wasm.SectionIDFunction:
		m.FunctionSection, err = decodeFunctionSection(r)
	case wasm.SectionIDMemory:
		m.MemorySection, err = decodeMemorySection(r)
	case wasm.SectionIDExport:
		m.ExportSection, err = decodeExportSection(r)
	case wasm.SectionIDCode:
		m.CodeSection, err = decodeCodeSection(r)
	case wasm.SectionIDData:
		m.DataSection, err = decodeDataSection(r)
	case wasm.SectionIDTable, wasm.SectionIDGlobal, wasm.SectionIDStart, wasm.SectionIDElement:
		logger.Debug("skipping unsupported section",
			zap.String("section", wasm.SectionIDName(sectionID)),
			zap.Int("size", r.Len()))
		_, err = r.Seek(0, io.SeekEnd)
	default:
		err = fmt.Errorf("%w: %#x", ErrInvalidSectionID, sectionID)
	}
	return
}
