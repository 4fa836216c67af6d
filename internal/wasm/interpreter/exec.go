package interpreter

import (
	"fmt"
	"math"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasmruntime"
)

// label is an entered block, loop or if.
type label struct {
	// start is the position of the block instruction, end of its matching end.
	start, end int
	// height is the operand stack length on entry.
	height int
	// arity is the count of values a branch to a block or if carries.
	arity int
	loop  bool
}

func blockArity(bt wasm.ValueType) int {
	if bt.IsNumeric() {
		return 1
	}
	return 0
}

// run executes code against f. arity is the count of values a return keeps, or -1 to keep all of them.
func (t *Thread) run(f *Frame, code []wasm.Instruction, arity int) error {
	var labels []label
	for pc := 0; pc < len(code); {
		in := &code[pc]
		switch in.Opcode {
		case wasm.OpcodeUnreachable:
			return t.Throw(wasmruntime.ErrRuntimeUnreachable)
		case wasm.OpcodeNop:
			pc++
		case wasm.OpcodeBlock, wasm.OpcodeLoop:
			labels = append(labels, label{
				start:  pc,
				end:    in.End,
				height: f.Len(),
				arity:  blockArity(in.BlockType),
				loop:   in.Opcode == wasm.OpcodeLoop,
			})
			pc++
		case wasm.OpcodeIf:
			c, err := f.popI32()
			if err != nil {
				return t.Throw(err)
			}
			l := label{start: pc, end: in.End, height: f.Len(), arity: blockArity(in.BlockType)}
			switch {
			case c != 0:
				labels = append(labels, l)
				pc++
			case in.Else != 0:
				labels = append(labels, l)
				pc = in.Else + 1
			default:
				pc = in.End + 1
			}
		case wasm.OpcodeElse:
			// The then arm completed: skip the else arm.
			if len(labels) == 0 {
				return t.Throw(fmt.Errorf("else at %d outside of an if", pc))
			}
			pc = labels[len(labels)-1].end + 1
			labels = labels[:len(labels)-1]
		case wasm.OpcodeEnd:
			if len(labels) > 0 {
				labels = labels[:len(labels)-1]
			}
			pc++
		case wasm.OpcodeBr:
			pc, labels = f.branch(labels, in.Index, arity)
		case wasm.OpcodeBrIf:
			c, err := f.popI32()
			if err != nil {
				return t.Throw(err)
			}
			if c != 0 {
				pc, labels = f.branch(labels, in.Index, arity)
			} else {
				pc++
			}
		case wasm.OpcodeBrTable:
			i, err := f.popI32()
			if err != nil {
				return t.Throw(err)
			}
			depth := in.Index
			if i < uint32(len(in.Targets)) {
				depth = in.Targets[i]
			}
			pc, labels = f.branch(labels, depth, arity)
		case wasm.OpcodeReturn:
			f.unwind(0, arity)
			return nil
		case wasm.OpcodeCall:
			var addr wasm.FunctionAddr
			ok := false
			if m := t.host.Module(f.Module); m != nil {
				addr, ok = m.Function(in.Index)
			}
			if !ok {
				return t.Throw(fmt.Errorf("%w: %d", wasmruntime.ErrRuntimeInvalidFunctionIndex, in.Index))
			}
			results, err := t.Invoke(addr)
			if err != nil {
				return err
			}
			for _, r := range results {
				f.Push(r)
			}
			pc++
		case wasm.OpcodeCallIndirect, wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
			return t.Throw(fmt.Errorf("%w: %s", wasmruntime.ErrRuntimeUnsupportedInstruction, wasm.InstructionName(in.Opcode)))
		default:
			if err := t.execute(f, in); err != nil {
				return t.Throw(err)
			}
			pc++
		}
		if pc < 0 {
			return nil
		}
	}
	return nil
}

// branch unwinds to the label at depth, returning the position to continue at and the labels still entered.
// A depth past the outermost label leaves the body as a return does, signalled by a negative position.
func (f *Frame) branch(labels []label, depth wasm.Index, arity int) (int, []label) {
	if int(depth) >= len(labels) {
		f.unwind(0, arity)
		return -1, nil
	}
	i := len(labels) - 1 - int(depth)
	l := labels[i]
	if l.loop {
		f.unwind(l.height, 0)
		return l.start + 1, labels[:i+1]
	}
	f.unwind(l.height, l.arity)
	return l.end + 1, labels[:i]
}

// execute runs an instruction which does not transfer control.
func (t *Thread) execute(f *Frame, in *wasm.Instruction) error {
	switch op := in.Opcode; {
	case op == wasm.OpcodeDrop:
		if _, ok := f.Pop(); !ok {
			return wasm.ErrStackUnderflow
		}
	case op == wasm.OpcodeSelect:
		c, err := f.popI32()
		if err != nil {
			return err
		}
		v2, ok := f.Pop()
		if !ok {
			return wasm.ErrStackUnderflow
		}
		v1, err := f.popTyped(v2.Type())
		if err != nil {
			return err
		}
		if c != 0 {
			f.Push(v1)
		} else {
			f.Push(v2)
		}
	case op == wasm.OpcodeLocalGet:
		v, ok := f.Local(in.Index)
		if !ok {
			return fmt.Errorf("%w: %d", wasmruntime.ErrRuntimeInvalidLocalIndex, in.Index)
		}
		f.Push(v)
	case op == wasm.OpcodeLocalSet, op == wasm.OpcodeLocalTee:
		old, ok := f.Local(in.Index)
		if !ok {
			return fmt.Errorf("%w: %d", wasmruntime.ErrRuntimeInvalidLocalIndex, in.Index)
		}
		v, err := f.popTyped(old.Type())
		if err != nil {
			return err
		}
		f.locals[in.Index] = v
		if op == wasm.OpcodeLocalTee {
			f.Push(v)
		}
	case op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32,
		op == wasm.OpcodeMemorySize, op == wasm.OpcodeMemoryGrow:
		mem, err := t.memory(f)
		if err != nil {
			return err
		}
		return t.executeMemory(f, mem, in)
	case op == wasm.OpcodeI32Const:
		f.Push(wasm.ValueFromBits(wasm.ValueTypeI32, in.Const))
	case op == wasm.OpcodeI64Const:
		f.Push(wasm.ValueFromBits(wasm.ValueTypeI64, in.Const))
	case op == wasm.OpcodeF32Const:
		f.Push(wasm.ValueFromBits(wasm.ValueTypeF32, in.Const))
	case op == wasm.OpcodeF64Const:
		f.Push(wasm.ValueFromBits(wasm.ValueTypeF64, in.Const))
	case op >= wasm.OpcodeI32Eqz && op <= wasm.OpcodeF64ReinterpretI64:
		return f.numeric(op)
	default:
		return fmt.Errorf("%w: %s", wasmruntime.ErrRuntimeUnsupportedInstruction, wasm.InstructionName(op))
	}
	return nil
}

// memory returns the memory at index zero of the frame's module.
func (t *Thread) memory(f *Frame) (*wasm.MemoryInstance, error) {
	m := t.host.Module(f.Module)
	if m == nil {
		return nil, wasmruntime.ErrRuntimeNoMemory
	}
	addr, ok := m.Memory(0)
	if !ok {
		return nil, wasmruntime.ErrRuntimeNoMemory
	}
	return t.host.Memory(addr), nil
}

func (t *Thread) executeMemory(f *Frame, mem *wasm.MemoryInstance, in *wasm.Instruction) error {
	switch in.Opcode {
	case wasm.OpcodeMemorySize:
		f.pushI32(mem.PageCount())
		return nil
	case wasm.OpcodeMemoryGrow:
		delta, err := f.popI32()
		if err != nil {
			return err
		}
		if prev, ok := mem.Grow(delta, t.host.MemoryMaxPages()); ok {
			f.pushI32(prev)
		} else {
			f.pushI32(math.MaxUint32) // -1
		}
		return nil
	}

	if in.Opcode >= wasm.OpcodeI32Store {
		return store(f, mem, in)
	}
	return load(f, mem, in)
}

// effectiveAddress pops the base address and adds the static offset, failing when the sum exceeds 32 bits.
func (f *Frame) effectiveAddress(offset uint32) (uint32, error) {
	base, err := f.popI32()
	if err != nil {
		return 0, err
	}
	ea := uint64(base) + uint64(offset)
	if ea > math.MaxUint32 {
		return 0, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
	}
	return uint32(ea), nil
}

func load(f *Frame, mem *wasm.MemoryInstance, in *wasm.Instruction) error {
	ea, err := f.effectiveAddress(in.MemArg.Offset)
	if err != nil {
		return err
	}

	ok := false
	switch in.Opcode {
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load:
		var v uint32
		if v, ok = mem.ReadUint32Le(ea); ok {
			vt := wasm.ValueTypeI32
			if in.Opcode == wasm.OpcodeF32Load {
				vt = wasm.ValueTypeF32
			}
			f.Push(wasm.ValueFromBits(vt, uint64(v)))
		}
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load:
		var v uint64
		if v, ok = mem.ReadUint64Le(ea); ok {
			vt := wasm.ValueTypeI64
			if in.Opcode == wasm.OpcodeF64Load {
				vt = wasm.ValueTypeF64
			}
			f.Push(wasm.ValueFromBits(vt, v))
		}
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U:
		var v byte
		if v, ok = mem.ReadUint8(ea); ok {
			switch in.Opcode {
			case wasm.OpcodeI32Load8S:
				f.pushI32(uint32(int8(v)))
			case wasm.OpcodeI32Load8U:
				f.pushI32(uint32(v))
			case wasm.OpcodeI64Load8S:
				f.pushI64(uint64(int8(v)))
			default:
				f.pushI64(uint64(v))
			}
		}
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U:
		var v uint16
		if v, ok = mem.ReadUint16Le(ea); ok {
			switch in.Opcode {
			case wasm.OpcodeI32Load16S:
				f.pushI32(uint32(int16(v)))
			case wasm.OpcodeI32Load16U:
				f.pushI32(uint32(v))
			case wasm.OpcodeI64Load16S:
				f.pushI64(uint64(int16(v)))
			default:
				f.pushI64(uint64(v))
			}
		}
	case wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
		var v uint32
		if v, ok = mem.ReadUint32Le(ea); ok {
			if in.Opcode == wasm.OpcodeI64Load32S {
				f.pushI64(uint64(int32(v)))
			} else {
				f.pushI64(uint64(v))
			}
		}
	}
	if !ok {
		return wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
	}
	return nil
}

func store(f *Frame, mem *wasm.MemoryInstance, in *wasm.Instruction) error {
	var vt wasm.ValueType
	switch in.Opcode {
	case wasm.OpcodeI32Store, wasm.OpcodeI32Store8, wasm.OpcodeI32Store16:
		vt = wasm.ValueTypeI32
	case wasm.OpcodeF32Store:
		vt = wasm.ValueTypeF32
	case wasm.OpcodeF64Store:
		vt = wasm.ValueTypeF64
	default:
		vt = wasm.ValueTypeI64
	}
	v, err := f.popTyped(vt)
	if err != nil {
		return err
	}
	ea, err := f.effectiveAddress(in.MemArg.Offset)
	if err != nil {
		return err
	}

	var ok bool
	switch bits := v.Bits(); in.Opcode {
	case wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
		ok = mem.WriteUint32Le(ea, uint32(bits))
	case wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		ok = mem.WriteUint64Le(ea, bits)
	case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		ok = mem.WriteUint8(ea, byte(bits))
	case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		ok = mem.WriteUint16Le(ea, uint16(bits))
	}
	if !ok {
		return wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
	}
	return nil
}
