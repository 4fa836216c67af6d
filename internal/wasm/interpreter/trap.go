package interpreter

import (
	"fmt"
)

// Trap is a failure during execution. It unwinds every frame entered since the top-level call began.
type Trap struct {
	Message string
	// Cause is the error the trap was raised for, such as a wasmruntime sentinel, wasm.ErrStackUnderflow or an error
	// returned by a host function.
	Cause error
	// Trace is the call stack at the point of failure, innermost first.
	Trace StackTrace
}

func (t *Trap) Error() string {
	if len(t.Trace) == 0 {
		return "wasm trap: " + t.Message
	}
	return fmt.Sprintf("wasm trap: %s\nwasm backtrace:\n%s", t.Message, t.Trace)
}

func (t *Trap) Unwrap() error {
	return t.Cause
}
