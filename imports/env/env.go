// Package env contains Go-defined functions imported by guests under the module name "env".
//
// # Functions
//
//   - "abort" - traps with the message and location passed by the guest.
//   - "print_i32", "print_i64", "print_f32", "print_f64" - write the value and a newline to the configured writer.
//   - "print" - an alias of "print_i32".
//
// Messages passed to "abort" are read as AssemblyScript strings: UTF-16LE with the byte length in the four bytes
// before the pointer. A message that cannot be read is reported as its pointer.
//
// See https://www.assemblyscript.org/concepts.html#special-imports
package env

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/warthog-wasm/warthog"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

// ModuleName is the name guests import these functions from.
const ModuleName = "env"

const (
	AbortName    = "abort"
	PrintName    = "print"
	PrintI32Name = "print_i32"
	PrintI64Name = "print_i64"
	PrintF32Name = "print_f32"
	PrintF64Name = "print_f64"
)

var (
	i32, i64 = wasm.ValueTypeI32, wasm.ValueTypeI64
	f32, f64 = wasm.ValueTypeF32, wasm.ValueTypeF64
)

// ErrAbort is the cause of the trap raised by "abort".
var ErrAbort = errors.New("abort")

// Instantiate registers the "env" module into the runtime, printing to w.
//
// # Notes
//
//   - Instantiate before any module importing from "env".
//   - Failure cases are documented on warthog.HostModuleBuilder Instantiate.
func Instantiate(r warthog.Runtime, w io.Writer) (*warthog.ModuleInstance, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	NewFunctionExporter(w).ExportFunctions(builder)
	return builder.Instantiate()
}

// FunctionExporter configures the functions in the "env" module.
type FunctionExporter interface {
	// ExportFunctions adds the functions to a warthog.HostModuleBuilder named "env".
	ExportFunctions(warthog.HostModuleBuilder)
}

// NewFunctionExporter returns a FunctionExporter printing to w. A nil w discards output.
func NewFunctionExporter(w io.Writer) FunctionExporter {
	if w == nil {
		w = io.Discard
	}
	return &functionExporter{w: w}
}

type functionExporter struct {
	w io.Writer
}

// ExportFunctions implements FunctionExporter.ExportFunctions
func (e *functionExporter) ExportFunctions(builder warthog.HostModuleBuilder) {
	builder.
		ExportFunction(AbortName, []wasm.ValueType{i32, i32, i32, i32}, nil, warthog.HostFunc(abort)).
		ExportFunction(PrintI32Name, []wasm.ValueType{i32}, nil, e.print(PrintI32Name)).
		ExportFunction(PrintI64Name, []wasm.ValueType{i64}, nil, e.print(PrintI64Name)).
		ExportFunction(PrintF32Name, []wasm.ValueType{f32}, nil, e.print(PrintF32Name)).
		ExportFunction(PrintF64Name, []wasm.ValueType{f64}, nil, e.print(PrintF64Name)).
		ExportAlias(PrintName, PrintI32Name)
}

// print writes its only parameter in decimal.
func (e *functionExporter) print(name string) warthog.HostFunc {
	return func(h *wasm.Host, _ warthog.Caller, params []warthog.Value) ([]warthog.Value, error) {
		s := formatValue(params[0])
		h.Logger().Debug("env print", zap.String("func", name), zap.String("value", s))
		if _, err := io.WriteString(e.w, s+"\n"); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, nil
	}
}

func formatValue(v warthog.Value) string {
	switch v.Type() {
	case wasm.ValueTypeF32:
		f, _ := v.AsF32()
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case wasm.ValueTypeF64:
		f, _ := v.AsF64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v.String()
}

// abort is called on unrecoverable errors, typically failed assertions.
//
// Here's the import in a user's module that ends up using this, in WebAssembly 1.0 (MVP) Text Format:
//
//	(import "env" "abort" (func $~lib/builtins/abort (param i32 i32 i32 i32)))
func abort(h *wasm.Host, c warthog.Caller, params []warthog.Value) ([]warthog.Value, error) {
	message, _ := params[0].AsI32()
	fileName, _ := params[1].AsI32()
	lineNumber, _ := params[2].AsI32()
	columnNumber, _ := params[3].AsI32()

	mem := callerMemory(h, c)
	msg := readString(mem, uint32(message))
	fn := readString(mem, uint32(fileName))
	h.Logger().Debug("env abort",
		zap.String("message", msg),
		zap.String("file", fn),
		zap.Int32("line", lineNumber),
		zap.Int32("column", columnNumber))
	return nil, fmt.Errorf("%w: %s at %s:%d:%d", ErrAbort, msg, fn, lineNumber, columnNumber)
}

// callerMemory returns the first memory of the calling module, or nil.
func callerMemory(h *wasm.Host, c warthog.Caller) *wasm.MemoryInstance {
	m := h.Module(c.Module())
	if m == nil {
		return nil
	}
	addr, ok := m.Memory(0)
	if !ok {
		return nil
	}
	return h.Memory(addr)
}

// readString reads a UTF-16 string created by AssemblyScript, or formats the pointer when it cannot.
func readString(mem *wasm.MemoryInstance, offset uint32) string {
	if s, ok := readAssemblyScriptString(mem, offset); ok {
		return s
	}
	return fmt.Sprintf("<0x%08X>", offset)
}

func readAssemblyScriptString(mem *wasm.MemoryInstance, offset uint32) (string, bool) {
	if mem == nil || offset < 4 {
		return "", false
	}
	// Length is four bytes before pointer.
	byteCount, ok := mem.ReadUint32Le(offset - 4)
	if !ok || byteCount%2 != 0 {
		return "", false
	}
	buf, ok := mem.Read(offset, byteCount)
	if !ok {
		return "", false
	}
	return decodeUTF16(buf), true
}

func decodeUTF16(b []byte) string {
	u16s := make([]uint16, len(b)/2)
	for i := 0; i < len(b); i += 2 {
		u16s[i/2] = uint16(b[i]) + (uint16(b[i+1]) << 8)
	}
	return string(utf16.Decode(u16s))
}
