package interpreter

import (
	"fmt"
	"strings"

	"github.com/warthog-wasm/warthog/internal/wasm"
)

// StackFrame is the source location of a Frame.
type StackFrame struct {
	Module wasm.ModuleAddr
	// Function is nil when the frame evaluates an expression outside any function, such as call arguments.
	Function *wasm.FunctionAddr
}

// String returns the function handle, or the module handle when there is no function.
func (s StackFrame) String() string {
	if s.Function != nil {
		return fmt.Sprintf("0x%08X", uint32(*s.Function))
	}
	return fmt.Sprintf("<module: 0x%08X>", uint32(s.Module))
}

// StackTrace is a snapshot of the frames of an ExecutionStack, innermost first.
type StackTrace []StackFrame

func (t StackTrace) String() string {
	lines := make([]string, len(t))
	for i, f := range t {
		lines[i] = fmt.Sprintf("\t%d: %s", i, f)
	}
	return strings.Join(lines, "\n")
}

// Frame is the state of one call: its operand stack, its locals and where it came from.
type Frame struct {
	StackFrame
	values []wasm.Value
	locals []wasm.Value
}

// Push places v on the operand stack. Nil values are dropped.
func (f *Frame) Push(v wasm.Value) {
	if v.IsNil() {
		return
	}
	f.values = append(f.values, v)
}

// Pop removes the top of the operand stack, returning false when it is empty.
func (f *Frame) Pop() (wasm.Value, bool) {
	n := len(f.values)
	if n == 0 {
		return wasm.Nil(), false
	}
	v := f.values[n-1]
	f.values = f.values[:n-1]
	return v, true
}

// Len returns the count of values on the operand stack.
func (f *Frame) Len() int {
	return len(f.values)
}

// Values returns the operand stack, bottom first.
func (f *Frame) Values() []wasm.Value {
	return f.values
}

// Local returns the local at idx.
func (f *Frame) Local(idx wasm.Index) (wasm.Value, bool) {
	if int(idx) >= len(f.locals) {
		return wasm.Nil(), false
	}
	return f.locals[idx], true
}

// Locals returns the parameters followed by the declared locals.
func (f *Frame) Locals() []wasm.Value {
	return f.locals
}

// popTyped pops a value that must be of type vt.
func (f *Frame) popTyped(vt wasm.ValueType) (wasm.Value, error) {
	v, ok := f.Pop()
	if !ok {
		return v, wasm.ErrStackUnderflow
	}
	if err := v.Check(vt); err != nil {
		return v, err
	}
	return v, nil
}

// popValues pops one value per type, most recent first into the last position.
func (f *Frame) popValues(types []wasm.ValueType) ([]wasm.Value, error) {
	if len(types) == 0 {
		return nil, nil
	}
	ret := make([]wasm.Value, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		v, err := f.popTyped(types[i])
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}

// unwind drops the values above height, except the top arity which are moved down onto it.
// A negative arity keeps everything.
func (f *Frame) unwind(height, arity int) {
	n := len(f.values)
	if arity < 0 || height >= n {
		return
	}
	if arity > n-height {
		arity = n - height
	}
	copy(f.values[height:], f.values[n-arity:])
	f.values = f.values[:height+arity]
}

// ExecutionStack is the call stack of a Thread. It always holds the bottom frame of the Thread's owner.
type ExecutionStack struct {
	frames []*Frame
}

// NewExecutionStack returns a stack holding only a bottom frame in module.
func NewExecutionStack(module wasm.ModuleAddr) *ExecutionStack {
	return &ExecutionStack{frames: []*Frame{{StackFrame: StackFrame{Module: module}}}}
}

// Enter pushes a frame with an empty operand stack and the given locals.
func (s *ExecutionStack) Enter(module wasm.ModuleAddr, function *wasm.FunctionAddr, locals []wasm.Value) *Frame {
	f := &Frame{StackFrame: StackFrame{Module: module, Function: function}, locals: locals}
	s.frames = append(s.frames, f)
	return f
}

// Exit pops the current frame and its values. It panics on the bottom frame, which belongs to the owner of the
// stack and is never exited by execution.
func (s *ExecutionStack) Exit() {
	if len(s.frames) <= 1 {
		panic("BUG: there is no frame to exit")
	}
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
}

// Current returns the top frame.
func (s *ExecutionStack) Current() *Frame {
	return s.frames[len(s.frames)-1]
}

// Depth returns the count of frames including the bottom one.
func (s *ExecutionStack) Depth() int {
	return len(s.frames)
}

// Trace copies the frame locations, innermost first.
func (s *ExecutionStack) Trace() StackTrace {
	ret := make(StackTrace, len(s.frames))
	for i, f := range s.frames {
		sf := f.StackFrame
		if sf.Function != nil {
			fn := *sf.Function
			sf.Function = &fn
		}
		ret[len(s.frames)-1-i] = sf
	}
	return ret
}
