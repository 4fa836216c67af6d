package binary

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/warthog-wasm/warthog/internal/ieee754"
	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

// maximumLocals bounds the declared locals of one function so a small body cannot demand a huge allocation.
const maximumLocals = 50000

func decodeCode(r *bytes.Reader) (*wasm.Code, error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of code: %w", err)
	}
	if int64(ss) > int64(r.Len()) {
		return nil, fmt.Errorf("code of size %d exceeds remaining %d bytes", ss, r.Len())
	}
	body := make([]byte, ss)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	br := bytes.NewReader(body)

	// parse locals
	ls, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("get the size locals: %w", err)
	}

	var localTypes []wasm.ValueType
	var sum uint64
	for i := uint32(0); i < ls; i++ {
		n, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("read n of locals: %w", err)
		}
		if sum += uint64(n); sum > maximumLocals {
			return nil, fmt.Errorf("too many locals: %d", sum)
		}
		vt, err := decodeValueType(br)
		if err != nil {
			return nil, fmt.Errorf("read type of local: %w", err)
		}
		for j := uint32(0); j < n; j++ {
			localTypes = append(localTypes, vt)
		}
	}

	instructions, err := decodeExpr(br)
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%d bytes after the end of the function body", br.Len())
	}
	return &wasm.Code{LocalTypes: localTypes, Body: instructions}, nil
}

// decodeExpr decodes instructions until the OpcodeEnd that closes the expression, which is not included.
// Each block, loop and if is matched with its else and end here, so the interpreter never scans for them.
func decodeExpr(r *bytes.Reader) ([]wasm.Instruction, error) {
	var body []wasm.Instruction
	var open []int // positions of unterminated block, loop and if
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read opcode: %w", err)
		}

		switch op {
		case wasm.OpcodeEnd:
			if len(open) == 0 {
				return body, nil
			}
			body[open[len(open)-1]].End = len(body)
			open = open[:len(open)-1]
			body = append(body, wasm.Instruction{Opcode: op})
			continue
		case wasm.OpcodeElse:
			if len(open) == 0 || body[open[len(open)-1]].Opcode != wasm.OpcodeIf || body[open[len(open)-1]].Else != 0 {
				return nil, fmt.Errorf("else at %d does not follow an if", len(body))
			}
			body[open[len(open)-1]].Else = len(body)
			body = append(body, wasm.Instruction{Opcode: op})
			continue
		}

		in, err := decodeInstruction(r, op)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", wasm.InstructionName(op), len(body), err)
		}
		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			open = append(open, len(body))
		}
		body = append(body, in)
	}
}

// decodeInstruction decodes the immediates of the instruction whose opcode was already read.
func decodeInstruction(r *bytes.Reader, op wasm.Opcode) (in wasm.Instruction, err error) {
	in.Opcode = op
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		b, err := r.ReadByte()
		if err != nil {
			return in, fmt.Errorf("read block type: %w", err)
		}
		switch bt := wasm.ValueType(b); bt {
		case wasm.ValueTypeNil, wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
			in.BlockType = bt
		default:
			return in, fmt.Errorf("%w for block type: %#x", ErrInvalidByte, b)
		}

	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
		wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		if in.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return in, fmt.Errorf("read index: %w", err)
		}

	case wasm.OpcodeBrTable:
		count, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return in, fmt.Errorf("get size of vector: %w", err)
		}
		if int64(count) > int64(r.Len()) {
			return in, fmt.Errorf("%d labels exceed remaining %d bytes", count, r.Len())
		}
		in.Targets = make([]wasm.Index, count)
		for i := range in.Targets {
			if in.Targets[i], _, err = leb128.DecodeUint32(r); err != nil {
				return in, fmt.Errorf("read label: %w", err)
			}
		}
		if in.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return in, fmt.Errorf("read default label: %w", err)
		}

	case wasm.OpcodeCallIndirect:
		if in.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return in, fmt.Errorf("read type index: %w", err)
		}
		if err = readReservedZero(r); err != nil {
			return in, err
		}

	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		if err = readReservedZero(r); err != nil {
			return in, err
		}

	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return in, fmt.Errorf("read immediate: %w", err)
		}
		in.Const = uint64(int64(v))

	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return in, fmt.Errorf("read immediate: %w", err)
		}
		in.Const = uint64(v)

	case wasm.OpcodeF32Const:
		v, err := ieee754.DecodeFloat32(r)
		if err != nil {
			return in, fmt.Errorf("read immediate: %w", err)
		}
		in.Const = uint64(v)

	case wasm.OpcodeF64Const:
		if in.Const, err = ieee754.DecodeFloat64(r); err != nil {
			return in, fmt.Errorf("read immediate: %w", err)
		}

	default:
		if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
			if in.MemArg.Align, _, err = leb128.DecodeUint32(r); err != nil {
				return in, fmt.Errorf("read memory align: %w", err)
			}
			if in.MemArg.Offset, _, err = leb128.DecodeUint32(r); err != nil {
				return in, fmt.Errorf("read memory offset: %w", err)
			}
		} else if !wasm.IsDefinedOpcode(op) {
			return in, fmt.Errorf("%w: invalid opcode: %#x", ErrInvalidByte, op)
		}
	}
	return in, nil
}

func readReservedZero(r *bytes.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read reserved byte: %w", err)
	}
	if b != 0 {
		return fmt.Errorf("%w: reserved byte must be zero: %#x", ErrInvalidByte, b)
	}
	return nil
}

// encodeCode returns the wasm.Code encoded in WebAssembly 1.0 (20191205) Binary Format.
// Runs of equal local types are merged into one local block.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-code
func encodeCode(c *wasm.Code) []byte {
	var blocks [][]byte
	for i := 0; i < len(c.LocalTypes); {
		j := i
		for j < len(c.LocalTypes) && c.LocalTypes[j] == c.LocalTypes[i] {
			j++
		}
		blocks = append(blocks, append(leb128.EncodeUint32(uint32(j-i)), byte(c.LocalTypes[i])))
		i = j
	}

	data := leb128.EncodeUint32(uint32(len(blocks)))
	for _, b := range blocks {
		data = append(data, b...)
	}
	data = append(data, encodeExpr(c.Body)...)
	return encodeSizePrefixed(data)
}

// encodeExpr encodes the instructions followed by the terminating OpcodeEnd.
func encodeExpr(body []wasm.Instruction) (data []byte) {
	for i := range body {
		data = append(data, encodeInstruction(&body[i])...)
	}
	return append(data, wasm.OpcodeEnd)
}

func encodeInstruction(in *wasm.Instruction) []byte {
	data := []byte{in.Opcode}
	switch op := in.Opcode; op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		bt := in.BlockType
		if bt == 0 {
			bt = wasm.ValueTypeNil
		}
		data = append(data, byte(bt))
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
		wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		data = append(data, leb128.EncodeUint32(in.Index)...)
	case wasm.OpcodeBrTable:
		data = append(data, leb128.EncodeUint32(uint32(len(in.Targets)))...)
		for _, l := range in.Targets {
			data = append(data, leb128.EncodeUint32(l)...)
		}
		data = append(data, leb128.EncodeUint32(in.Index)...)
	case wasm.OpcodeCallIndirect:
		data = append(append(data, leb128.EncodeUint32(in.Index)...), 0)
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
		data = append(data, 0)
	case wasm.OpcodeI32Const:
		data = append(data, leb128.EncodeInt32(int32(uint32(in.Const)))...)
	case wasm.OpcodeI64Const:
		data = append(data, leb128.EncodeInt64(int64(in.Const))...)
	case wasm.OpcodeF32Const:
		data = append(data, ieee754.EncodeFloat32(math.Float32frombits(uint32(in.Const)))...)
	case wasm.OpcodeF64Const:
		data = append(data, ieee754.EncodeFloat64(math.Float64frombits(in.Const))...)
	default:
		if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
			data = append(data, leb128.EncodeUint32(in.MemArg.Align)...)
			data = append(data, leb128.EncodeUint32(in.MemArg.Offset)...)
		}
	}
	return data
}
