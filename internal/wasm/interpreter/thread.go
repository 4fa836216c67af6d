package interpreter

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasmruntime"
)

// DefaultCallStackCeiling is the maximum count of frames on a Thread's ExecutionStack, including its bottom frame.
const DefaultCallStackCeiling = 2000

// Thread executes functions of a Host on its own ExecutionStack.
//
// A Thread is not safe for concurrent use, and neither is the Host it runs against.
type Thread struct {
	host    *wasm.Host
	stack   *ExecutionStack
	ceiling int
	logger  *zap.Logger
}

var _ wasm.Caller = (*Thread)(nil)

// NewThread returns a Thread whose bottom frame is in module. A callStackCeiling less than one defaults to
// DefaultCallStackCeiling.
func NewThread(host *wasm.Host, module wasm.ModuleAddr, callStackCeiling int) *Thread {
	if callStackCeiling < 1 {
		callStackCeiling = DefaultCallStackCeiling
	}
	return &Thread{
		host:    host,
		stack:   NewExecutionStack(module),
		ceiling: callStackCeiling,
		logger:  host.Logger(),
	}
}

// Host returns the Host this Thread runs against.
func (t *Thread) Host() *wasm.Host {
	return t.host
}

// Stack returns the call stack.
func (t *Thread) Stack() *ExecutionStack {
	return t.stack
}

// Module implements wasm.Caller.Module
func (t *Thread) Module() wasm.ModuleAddr {
	return t.stack.Current().Module
}

// Push implements wasm.Caller.Push
func (t *Thread) Push(v wasm.Value) {
	t.stack.Current().Push(v)
}

// Pop removes the top of the current operand stack, trapping when it is empty.
func (t *Thread) Pop() (wasm.Value, error) {
	v, ok := t.stack.Current().Pop()
	if !ok {
		return v, t.Throw(wasm.ErrStackUnderflow)
	}
	return v, nil
}

// Throw returns a Trap for err carrying the current call stack. A Trap is returned as is, keeping the trace of
// the frame it was raised in.
func (t *Thread) Throw(err error) *Trap {
	var trap *Trap
	if errors.As(err, &trap) {
		return trap
	}
	trap = &Trap{Message: err.Error(), Cause: err, Trace: t.stack.Trace()}
	t.logger.Debug("trap", zap.String("message", trap.Message), zap.Int("depth", len(trap.Trace)))
	return trap
}

// enter pushes a frame unless the stack is at its ceiling.
func (t *Thread) enter(module wasm.ModuleAddr, function *wasm.FunctionAddr, locals []wasm.Value) (*Frame, error) {
	if t.stack.Depth() >= t.ceiling {
		return nil, t.Throw(wasmruntime.ErrRuntimeCallStackOverflow)
	}
	return t.stack.Enter(module, function, locals), nil
}

// Eval evaluates expr in a new frame of module. It must leave exactly one value.
func (t *Thread) Eval(module wasm.ModuleAddr, expr []wasm.Instruction) (wasm.Value, error) {
	f, err := t.enter(module, nil, nil)
	if err != nil {
		return wasm.Nil(), err
	}
	defer t.stack.Exit()

	if err = t.run(f, expr, -1); err != nil {
		return wasm.Nil(), err
	}
	v, ok := f.Pop()
	if !ok {
		return v, t.Throw(wasm.ErrStackUnderflow)
	}
	if f.Len() != 0 {
		return v, t.Throw(wasmruntime.ErrRuntimeStackNotEmpty)
	}
	return v, nil
}

// Call evaluates args in declaration order in a new frame of module, so the first argument lands deepest, then
// invokes the function at addr.
//
// Each argument binds to the parameter at its position. Argument expressions with side effects, such as stores or
// calls, run first to last, so a later argument observes the effects of an earlier one.
func (t *Thread) Call(module wasm.ModuleAddr, addr wasm.FunctionAddr, args ...[]wasm.Instruction) ([]wasm.Value, error) {
	f, err := t.enter(module, nil, nil)
	if err != nil {
		return nil, err
	}
	defer t.stack.Exit()

	for _, arg := range args {
		if err = t.run(f, arg, -1); err != nil {
			return nil, err
		}
	}
	return t.Invoke(addr)
}

// Invoke implements wasm.Caller.Invoke
//
// The parameters are popped from the current operand stack, most recent first, and checked against the function
// type. A FunctionKindLocal runs in a new frame which must hold exactly the results when the body completes.
func (t *Thread) Invoke(addr wasm.FunctionAddr) ([]wasm.Value, error) {
	fn := t.host.Function(addr)
	if fn == nil {
		return nil, t.Throw(fmt.Errorf("%w: %s", wasmruntime.ErrRuntimeInvalidFunctionIndex, addr))
	}

	params, err := t.stack.Current().popValues(fn.Type.Params)
	if err != nil {
		return nil, t.Throw(err)
	}

	if fn.Kind == wasm.FunctionKindExternal {
		return t.callHostFunction(fn, params)
	}

	locals := make([]wasm.Value, 0, len(params)+len(fn.Code.LocalTypes))
	locals = append(locals, params...)
	for _, lt := range fn.Code.LocalTypes {
		locals = append(locals, wasm.ZeroValue(lt))
	}

	f, err := t.enter(fn.Module, &addr, locals)
	if err != nil {
		return nil, err
	}
	defer t.stack.Exit()

	if err = t.run(f, fn.Code.Body, len(fn.Type.Results)); err != nil {
		return nil, err
	}
	results, err := f.popValues(fn.Type.Results)
	if err != nil {
		return nil, t.Throw(err)
	}
	if f.Len() != 0 {
		return nil, t.Throw(wasmruntime.ErrRuntimeStackNotEmpty)
	}
	return results, nil
}

func (t *Thread) callHostFunction(fn *wasm.FunctionInstance, params []wasm.Value) ([]wasm.Value, error) {
	results, err := fn.Host.Call(t.host, t, params)
	if err != nil {
		return nil, t.Throw(err)
	}
	if len(results) != len(fn.Type.Results) {
		return nil, t.Throw(fmt.Errorf("host function %s returned %d results", fn.Type, len(results)))
	}
	for i, r := range results {
		if err = r.Check(fn.Type.Results[i]); err != nil {
			return nil, t.Throw(fmt.Errorf("host function result[%d]: %w", i, err))
		}
	}
	return results, nil
}

// Run executes code against the current frame, stopping at the first trap.
func (t *Thread) Run(code []wasm.Instruction) error {
	f := t.stack.Current()
	arity := -1
	if f.Function != nil {
		arity = len(t.host.Function(*f.Function).Type.Results)
	}
	return t.run(f, code, arity)
}
