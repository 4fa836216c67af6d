package wasm

import (
	"errors"
	"fmt"
)

// ErrInvalidModule is the root of every load or link failure caused by the shape of a module rather than IO.
// Callers test for it with errors.Is.
var ErrInvalidModule = errors.New("invalid module")

// ModuleNotFoundError is returned when an import names a module that was never registered.
type ModuleNotFoundError struct {
	Module string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module[%s] not instantiated", e.Module)
}

// ExportNotFoundError is returned when an import names an export its module does not have.
type ExportNotFoundError struct {
	Module, Name string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("%q is not exported in module %q", e.Name, e.Module)
}

func invalidModule(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidModule, fmt.Sprintf(format, args...))
}
