package interpreter

import (
	"math"
	"math/bits"

	"github.com/warthog-wasm/warthog/internal/moremath"
	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasmruntime"
)

func (f *Frame) popI32() (uint32, error) {
	v, err := f.popTyped(wasm.ValueTypeI32)
	return uint32(v.Bits()), err
}

func (f *Frame) popI64() (uint64, error) {
	v, err := f.popTyped(wasm.ValueTypeI64)
	return v.Bits(), err
}

func (f *Frame) popF32() (float32, error) {
	v, err := f.popTyped(wasm.ValueTypeF32)
	return math.Float32frombits(uint32(v.Bits())), err
}

func (f *Frame) popF64() (float64, error) {
	v, err := f.popTyped(wasm.ValueTypeF64)
	return math.Float64frombits(v.Bits()), err
}

func (f *Frame) pushI32(v uint32) {
	f.values = append(f.values, wasm.ValueFromBits(wasm.ValueTypeI32, uint64(v)))
}

func (f *Frame) pushI64(v uint64) {
	f.values = append(f.values, wasm.ValueFromBits(wasm.ValueTypeI64, v))
}

func (f *Frame) pushF32(v float32) {
	f.values = append(f.values, wasm.ValueFromBits(wasm.ValueTypeF32, uint64(math.Float32bits(v))))
}

func (f *Frame) pushF64(v float64) {
	f.values = append(f.values, wasm.ValueFromBits(wasm.ValueTypeF64, math.Float64bits(v)))
}

func (f *Frame) pushBool(b bool) {
	if b {
		f.pushI32(1)
	} else {
		f.pushI32(0)
	}
}

// numeric executes the comparison, arithmetic and conversion instructions, opcodes 0x45 through 0xbf.
func (f *Frame) numeric(op wasm.Opcode) error {
	switch {
	case op == wasm.OpcodeI32Eqz:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		f.pushBool(v == 0)
	case op >= wasm.OpcodeI32Eq && op <= wasm.OpcodeI32GeU:
		a, b, err := f.popI32Pair()
		if err != nil {
			return err
		}
		f.pushBool(i32Compare(op, a, b))
	case op == wasm.OpcodeI64Eqz:
		v, err := f.popI64()
		if err != nil {
			return err
		}
		f.pushBool(v == 0)
	case op >= wasm.OpcodeI64Eq && op <= wasm.OpcodeI64GeU:
		a, b, err := f.popI64Pair()
		if err != nil {
			return err
		}
		f.pushBool(i64Compare(op, a, b))
	case op >= wasm.OpcodeF32Eq && op <= wasm.OpcodeF32Ge:
		b, err := f.popF32()
		if err != nil {
			return err
		}
		a, err := f.popF32()
		if err != nil {
			return err
		}
		f.pushBool(floatCompare(op-wasm.OpcodeF32Eq, float64(a), float64(b)))
	case op >= wasm.OpcodeF64Eq && op <= wasm.OpcodeF64Ge:
		b, err := f.popF64()
		if err != nil {
			return err
		}
		a, err := f.popF64()
		if err != nil {
			return err
		}
		f.pushBool(floatCompare(op-wasm.OpcodeF64Eq, a, b))
	case op >= wasm.OpcodeI32Clz && op <= wasm.OpcodeI32Popcnt:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpcodeI32Clz:
			f.pushI32(uint32(bits.LeadingZeros32(v)))
		case wasm.OpcodeI32Ctz:
			f.pushI32(uint32(bits.TrailingZeros32(v)))
		default:
			f.pushI32(uint32(bits.OnesCount32(v)))
		}
	case op >= wasm.OpcodeI32Add && op <= wasm.OpcodeI32Rotr:
		a, b, err := f.popI32Pair()
		if err != nil {
			return err
		}
		v, err := i32Binary(op, a, b)
		if err != nil {
			return err
		}
		f.pushI32(v)
	case op >= wasm.OpcodeI64Clz && op <= wasm.OpcodeI64Popcnt:
		v, err := f.popI64()
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpcodeI64Clz:
			f.pushI64(uint64(bits.LeadingZeros64(v)))
		case wasm.OpcodeI64Ctz:
			f.pushI64(uint64(bits.TrailingZeros64(v)))
		default:
			f.pushI64(uint64(bits.OnesCount64(v)))
		}
	case op >= wasm.OpcodeI64Add && op <= wasm.OpcodeI64Rotr:
		a, b, err := f.popI64Pair()
		if err != nil {
			return err
		}
		v, err := i64Binary(op, a, b)
		if err != nil {
			return err
		}
		f.pushI64(v)
	case op >= wasm.OpcodeF32Abs && op <= wasm.OpcodeF32Sqrt:
		v, err := f.popF32()
		if err != nil {
			return err
		}
		f.pushF32(f32Unary(op, v))
	case op >= wasm.OpcodeF32Add && op <= wasm.OpcodeF32Copysign:
		b, err := f.popF32()
		if err != nil {
			return err
		}
		a, err := f.popF32()
		if err != nil {
			return err
		}
		f.pushF32(f32Binary(op, a, b))
	case op >= wasm.OpcodeF64Abs && op <= wasm.OpcodeF64Sqrt:
		v, err := f.popF64()
		if err != nil {
			return err
		}
		f.pushF64(f64Unary(op, v))
	case op >= wasm.OpcodeF64Add && op <= wasm.OpcodeF64Copysign:
		b, err := f.popF64()
		if err != nil {
			return err
		}
		a, err := f.popF64()
		if err != nil {
			return err
		}
		f.pushF64(f64Binary(op, a, b))
	default:
		return f.convert(op)
	}
	return nil
}

// popI32Pair pops the operands of a binary instruction, returning them in push order.
func (f *Frame) popI32Pair() (a, b uint32, err error) {
	if b, err = f.popI32(); err != nil {
		return
	}
	a, err = f.popI32()
	return
}

func (f *Frame) popI64Pair() (a, b uint64, err error) {
	if b, err = f.popI64(); err != nil {
		return
	}
	a, err = f.popI64()
	return
}

func i32Compare(op wasm.Opcode, a, b uint32) bool {
	switch op {
	case wasm.OpcodeI32Eq:
		return a == b
	case wasm.OpcodeI32Ne:
		return a != b
	case wasm.OpcodeI32LtS:
		return int32(a) < int32(b)
	case wasm.OpcodeI32LtU:
		return a < b
	case wasm.OpcodeI32GtS:
		return int32(a) > int32(b)
	case wasm.OpcodeI32GtU:
		return a > b
	case wasm.OpcodeI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpcodeI32LeU:
		return a <= b
	case wasm.OpcodeI32GeS:
		return int32(a) >= int32(b)
	default: // wasm.OpcodeI32GeU
		return a >= b
	}
}

func i64Compare(op wasm.Opcode, a, b uint64) bool {
	switch op {
	case wasm.OpcodeI64Eq:
		return a == b
	case wasm.OpcodeI64Ne:
		return a != b
	case wasm.OpcodeI64LtS:
		return int64(a) < int64(b)
	case wasm.OpcodeI64LtU:
		return a < b
	case wasm.OpcodeI64GtS:
		return int64(a) > int64(b)
	case wasm.OpcodeI64GtU:
		return a > b
	case wasm.OpcodeI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpcodeI64LeU:
		return a <= b
	case wasm.OpcodeI64GeS:
		return int64(a) >= int64(b)
	default: // wasm.OpcodeI64GeU
		return a >= b
	}
}

// floatCompare evaluates eq, ne, lt, gt, le or ge, selected by rel in that order. Any comparison with NaN is
// false except ne.
func floatCompare(rel byte, a, b float64) bool {
	switch rel {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a > b
	case 4:
		return a <= b
	default:
		return a >= b
	}
}

func i32Binary(op wasm.Opcode, a, b uint32) (uint32, error) {
	switch op {
	case wasm.OpcodeI32Add:
		return a + b, nil
	case wasm.OpcodeI32Sub:
		return a - b, nil
	case wasm.OpcodeI32Mul:
		return a * b, nil
	case wasm.OpcodeI32DivS:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, wasmruntime.ErrRuntimeIntegerOverflow
		}
		return uint32(int32(a) / int32(b)), nil
	case wasm.OpcodeI32DivU:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		return a / b, nil
	case wasm.OpcodeI32RemS:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if int32(b) == -1 {
			return 0, nil
		}
		return uint32(int32(a) % int32(b)), nil
	case wasm.OpcodeI32RemU:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		return a % b, nil
	case wasm.OpcodeI32And:
		return a & b, nil
	case wasm.OpcodeI32Or:
		return a | b, nil
	case wasm.OpcodeI32Xor:
		return a ^ b, nil
	case wasm.OpcodeI32Shl:
		return a << (b % 32), nil
	case wasm.OpcodeI32ShrS:
		return uint32(int32(a) >> (b % 32)), nil
	case wasm.OpcodeI32ShrU:
		return a >> (b % 32), nil
	case wasm.OpcodeI32Rotl:
		return bits.RotateLeft32(a, int(b%32)), nil
	default: // wasm.OpcodeI32Rotr
		return bits.RotateLeft32(a, -int(b%32)), nil
	}
}

func i64Binary(op wasm.Opcode, a, b uint64) (uint64, error) {
	switch op {
	case wasm.OpcodeI64Add:
		return a + b, nil
	case wasm.OpcodeI64Sub:
		return a - b, nil
	case wasm.OpcodeI64Mul:
		return a * b, nil
	case wasm.OpcodeI64DivS:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, wasmruntime.ErrRuntimeIntegerOverflow
		}
		return uint64(int64(a) / int64(b)), nil
	case wasm.OpcodeI64DivU:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		return a / b, nil
	case wasm.OpcodeI64RemS:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if int64(b) == -1 {
			return 0, nil
		}
		return uint64(int64(a) % int64(b)), nil
	case wasm.OpcodeI64RemU:
		if b == 0 {
			return 0, wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		return a % b, nil
	case wasm.OpcodeI64And:
		return a & b, nil
	case wasm.OpcodeI64Or:
		return a | b, nil
	case wasm.OpcodeI64Xor:
		return a ^ b, nil
	case wasm.OpcodeI64Shl:
		return a << (b % 64), nil
	case wasm.OpcodeI64ShrS:
		return uint64(int64(a) >> (b % 64)), nil
	case wasm.OpcodeI64ShrU:
		return a >> (b % 64), nil
	case wasm.OpcodeI64Rotl:
		return bits.RotateLeft64(a, int(b%64)), nil
	default: // wasm.OpcodeI64Rotr
		return bits.RotateLeft64(a, -int(b%64)), nil
	}
}

// f32Unary operates on the bits for abs and neg so NaN payloads are kept.
func f32Unary(op wasm.Opcode, v float32) float32 {
	switch op {
	case wasm.OpcodeF32Abs:
		return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
	case wasm.OpcodeF32Neg:
		return math.Float32frombits(math.Float32bits(v) ^ (1 << 31))
	case wasm.OpcodeF32Ceil:
		return float32(math.Ceil(float64(v)))
	case wasm.OpcodeF32Floor:
		return float32(math.Floor(float64(v)))
	case wasm.OpcodeF32Trunc:
		return float32(math.Trunc(float64(v)))
	case wasm.OpcodeF32Nearest:
		return moremath.WasmCompatNearestF32(v)
	default: // wasm.OpcodeF32Sqrt
		return float32(math.Sqrt(float64(v)))
	}
}

func f32Binary(op wasm.Opcode, a, b float32) float32 {
	switch op {
	case wasm.OpcodeF32Add:
		return a + b
	case wasm.OpcodeF32Sub:
		return a - b
	case wasm.OpcodeF32Mul:
		return a * b
	case wasm.OpcodeF32Div:
		return a / b
	case wasm.OpcodeF32Min:
		return float32(moremath.WasmCompatMin(float64(a), float64(b)))
	case wasm.OpcodeF32Max:
		return float32(moremath.WasmCompatMax(float64(a), float64(b)))
	default: // wasm.OpcodeF32Copysign
		const sign = 1 << 31
		return math.Float32frombits(math.Float32bits(a)&^sign | math.Float32bits(b)&sign)
	}
}

func f64Unary(op wasm.Opcode, v float64) float64 {
	switch op {
	case wasm.OpcodeF64Abs:
		return math.Abs(v)
	case wasm.OpcodeF64Neg:
		return -v
	case wasm.OpcodeF64Ceil:
		return math.Ceil(v)
	case wasm.OpcodeF64Floor:
		return math.Floor(v)
	case wasm.OpcodeF64Trunc:
		return math.Trunc(v)
	case wasm.OpcodeF64Nearest:
		return moremath.WasmCompatNearestF64(v)
	default: // wasm.OpcodeF64Sqrt
		return math.Sqrt(v)
	}
}

func f64Binary(op wasm.Opcode, a, b float64) float64 {
	switch op {
	case wasm.OpcodeF64Add:
		return a + b
	case wasm.OpcodeF64Sub:
		return a - b
	case wasm.OpcodeF64Mul:
		return a * b
	case wasm.OpcodeF64Div:
		return a / b
	case wasm.OpcodeF64Min:
		return moremath.WasmCompatMin(a, b)
	case wasm.OpcodeF64Max:
		return moremath.WasmCompatMax(a, b)
	default: // wasm.OpcodeF64Copysign
		return math.Copysign(a, b)
	}
}

// convert executes the conversion instructions, opcodes 0xa7 through 0xbf.
func (f *Frame) convert(op wasm.Opcode) error {
	switch op {
	case wasm.OpcodeI32WrapI64:
		v, err := f.popI64()
		if err != nil {
			return err
		}
		f.pushI32(uint32(v))
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U:
		v, err := f.popF32()
		if err != nil {
			return err
		}
		return f.truncate(op, float64(v))
	case wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U, wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U:
		v, err := f.popF64()
		if err != nil {
			return err
		}
		return f.truncate(op, v)
	case wasm.OpcodeI64ExtendI32S, wasm.OpcodeI64ExtendI32U:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		if op == wasm.OpcodeI64ExtendI32S {
			f.pushI64(uint64(int32(v)))
		} else {
			f.pushI64(uint64(v))
		}
	case wasm.OpcodeF32ConvertI32S, wasm.OpcodeF32ConvertI32U, wasm.OpcodeF64ConvertI32S, wasm.OpcodeF64ConvertI32U:
		v, err := f.popI32()
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpcodeF32ConvertI32S:
			f.pushF32(float32(int32(v)))
		case wasm.OpcodeF32ConvertI32U:
			f.pushF32(float32(v))
		case wasm.OpcodeF64ConvertI32S:
			f.pushF64(float64(int32(v)))
		default:
			f.pushF64(float64(v))
		}
	case wasm.OpcodeF32ConvertI64S, wasm.OpcodeF32ConvertI64U, wasm.OpcodeF64ConvertI64S, wasm.OpcodeF64ConvertI64U:
		v, err := f.popI64()
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpcodeF32ConvertI64S:
			f.pushF32(float32(int64(v)))
		case wasm.OpcodeF32ConvertI64U:
			f.pushF32(float32(v))
		case wasm.OpcodeF64ConvertI64S:
			f.pushF64(float64(int64(v)))
		default:
			f.pushF64(float64(v))
		}
	case wasm.OpcodeF32DemoteF64:
		v, err := f.popF64()
		if err != nil {
			return err
		}
		f.pushF32(float32(v))
	case wasm.OpcodeF64PromoteF32:
		v, err := f.popF32()
		if err != nil {
			return err
		}
		f.pushF64(float64(v))
	case wasm.OpcodeI32ReinterpretF32:
		v, err := f.popTyped(wasm.ValueTypeF32)
		if err != nil {
			return err
		}
		f.pushI32(uint32(v.Bits()))
	case wasm.OpcodeI64ReinterpretF64:
		v, err := f.popTyped(wasm.ValueTypeF64)
		if err != nil {
			return err
		}
		f.pushI64(v.Bits())
	case wasm.OpcodeF32ReinterpretI32:
		v, err := f.popTyped(wasm.ValueTypeI32)
		if err != nil {
			return err
		}
		f.Push(wasm.ValueFromBits(wasm.ValueTypeF32, v.Bits()))
	default: // wasm.OpcodeF64ReinterpretI64
		v, err := f.popTyped(wasm.ValueTypeI64)
		if err != nil {
			return err
		}
		f.Push(wasm.ValueFromBits(wasm.ValueTypeF64, v.Bits()))
	}
	return nil
}

// truncate converts v toward zero into the integer type of op, trapping on NaN and values out of range.
func (f *Frame) truncate(op wasm.Opcode, v float64) error {
	if math.IsNaN(v) {
		return wasmruntime.ErrRuntimeInvalidConversionToInteger
	}
	v = math.Trunc(v)
	switch op {
	case wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF64S:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.pushI32(uint32(int32(v)))
	case wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64U:
		if v < 0 || v > math.MaxUint32 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.pushI32(uint32(v))
	case wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF64S:
		// 2^63 is the first float64 above math.MaxInt64.
		if v < math.MinInt64 || v >= 9223372036854775808.0 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.pushI64(uint64(int64(v)))
	default: // unsigned i64
		if v < 0 || v >= 18446744073709551616.0 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.pushI64(uint64(v))
	}
	return nil
}
