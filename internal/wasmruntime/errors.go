// Package wasmruntime contains the sentinel causes of traps raised while executing a function body.
package wasmruntime

import "errors"

// All the errors are raised by the interpreter during execution, and they indicate the running thread's state is
// unrecoverable. Each is wrapped in a trap carrying the call stack at the point of failure.
var (
	// ErrRuntimeStackNotEmpty indicates a function returned with more values on its operand stack than it declares.
	ErrRuntimeStackNotEmpty = errors.New("stack is not empty at end of function invocation")
	// ErrRuntimeCallStackOverflow indicates there are too many nested calls.
	ErrRuntimeCallStackOverflow = errors.New("call stack overflow")
	// ErrRuntimeUnreachable means "unreachable" instruction was executed by the program.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeIntegerDivideByZero indicates an integer div or rem instruction had 0 as the divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeIntegerOverflow indicates an integer arithmetic resulted in an unrepresentable value, for example
	// signed division of the minimum value by -1, or truncation of a float out of the target range.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeInvalidConversionToInteger indicates a trunc instruction was given NaN.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates an access beyond the end of linear memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeNoMemory indicates a memory instruction ran in a module without a memory.
	ErrRuntimeNoMemory = errors.New("module has no memory")
	// ErrRuntimeInvalidFunctionIndex indicates a call to a function index the module does not have.
	ErrRuntimeInvalidFunctionIndex = errors.New("invalid function index")
	// ErrRuntimeInvalidLocalIndex indicates a local instruction referenced a local the frame does not have.
	ErrRuntimeInvalidLocalIndex = errors.New("invalid local index")
	// ErrRuntimeUnsupportedInstruction indicates a decoded instruction the interpreter does not execute.
	ErrRuntimeUnsupportedInstruction = errors.New("unsupported instruction")
)
