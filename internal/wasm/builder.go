package wasm

import "fmt"

// Caller is the view of the calling thread given to a HostFunction.
type Caller interface {
	// Module is the module whose code made the call.
	Module() ModuleAddr

	// Push places an argument on the caller's operand stack. Nil values are dropped.
	Push(v Value)

	// Invoke calls f, popping its parameters from the caller's operand stack.
	Invoke(f FunctionAddr) ([]Value, error)
}

// HostFunction implements a FunctionKindExternal.
//
// params are in declared order and already checked against the function type. The returned results are checked
// against the declared result types by the caller.
type HostFunction interface {
	Call(h *Host, c Caller, params []Value) ([]Value, error)
}

// HostFunc adapts an ordinary function to a HostFunction.
type HostFunc func(h *Host, c Caller, params []Value) ([]Value, error)

func (f HostFunc) Call(h *Host, c Caller, params []Value) ([]Value, error) {
	return f(h, c, params)
}

type builderFunction struct {
	typ *FunctionType
	fn  HostFunction
}

type builderExport struct {
	name string
	typ  ExternType
	// index is the position in ModuleBuilder.functions or ModuleBuilder.memories, depending on typ.
	index int
}

// ModuleBuilder declares a module implemented by the host, to be registered with Host.Synthesize, or Host.External
// when it exports memories, before any guest module importing from it is instantiated.
type ModuleBuilder struct {
	name      string
	functions []*builderFunction
	memories  []*MemoryType
	exports   []*builderExport
	err       error
}

// NewModuleBuilder returns a builder for a module registered under the given name.
func NewModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{name: name}
}

// Name returns the name the module is registered under.
func (b *ModuleBuilder) Name() string {
	return b.name
}

// ExportFunction adds an External function and exports it under name.
func (b *ModuleBuilder) ExportFunction(name string, params, results []ValueType, fn HostFunction) *ModuleBuilder {
	if b.err != nil {
		return b
	}
	if b.findExport(name) != nil {
		b.err = fmt.Errorf("export[%s] already exists", name)
		return b
	}
	for _, vt := range append(append([]ValueType{}, params...), results...) {
		if !vt.IsNumeric() {
			b.err = fmt.Errorf("function[%s] has invalid value type %s", name, vt)
			return b
		}
	}
	b.functions = append(b.functions, &builderFunction{typ: &FunctionType{Params: params, Results: results}, fn: fn})
	b.exports = append(b.exports, &builderExport{name: name, typ: ExternTypeFunc, index: len(b.functions) - 1})
	return b
}

// ExportMemory adds a memory of minPages, limited to maxPages unless nil, and exports it under name.
func (b *ModuleBuilder) ExportMemory(name string, minPages uint32, maxPages *uint32) *ModuleBuilder {
	if b.err != nil {
		return b
	}
	if b.findExport(name) != nil {
		b.err = fmt.Errorf("export[%s] already exists", name)
		return b
	}
	b.memories = append(b.memories, &MemoryType{Min: minPages, Max: maxPages})
	b.exports = append(b.exports, &builderExport{name: name, typ: ExternTypeMemory, index: len(b.memories) - 1})
	return b
}

// HasMemories returns true if ExportMemory was called.
func (b *ModuleBuilder) HasMemories() bool {
	return len(b.memories) > 0
}

// ExportAlias exports the function or memory already exported as target under an additional name.
func (b *ModuleBuilder) ExportAlias(alias, target string) *ModuleBuilder {
	if b.err != nil {
		return b
	}
	if b.findExport(alias) != nil {
		b.err = fmt.Errorf("export[%s] already exists", alias)
		return b
	}
	e := b.findExport(target)
	if e == nil {
		b.err = fmt.Errorf("alias[%s] refers to unknown export[%s]", alias, target)
		return b
	}
	b.exports = append(b.exports, &builderExport{name: alias, typ: e.typ, index: e.index})
	return b
}

func (b *ModuleBuilder) findExport(name string) *builderExport {
	for _, e := range b.exports {
		if e.name == name {
			return e
		}
	}
	return nil
}
