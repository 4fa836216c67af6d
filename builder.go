package warthog

import "github.com/warthog-wasm/warthog/internal/wasm"

// HostFunction is a function implemented in Go, called by WebAssembly through a function import.
//
// params are in declared order and already type-checked. Results must match the declared result types.
type HostFunction = wasm.HostFunction

// HostFunc adapts an ordinary Go function to a HostFunction.
type HostFunc = wasm.HostFunc

// Caller is the calling thread as seen by a HostFunction. It allows host code to call back into WebAssembly.
type Caller = wasm.Caller

// HostModuleBuilder is a way to define host functions (in Go), so that a WebAssembly binary (ex. %.wasm file) can
// import and use them.
//
// Ex. Below defines and instantiates a module named "env" with one function:
//
//	hello := func(_ *wasm.Host, _ warthog.Caller, _ []warthog.Value) ([]warthog.Value, error) {
//		fmt.Fprintln(stdout, "hello!")
//		return nil, nil
//	}
//	env, _ := r.NewHostModuleBuilder("env").
//		ExportFunction("hello", nil, nil, warthog.HostFunc(hello)).
//		Instantiate()
//
// Notes:
//   - HostModuleBuilder is mutable: each method returns the same instance for chaining.
//   - The first error from any method is returned by Instantiate, and no module is registered.
//   - Instantiate a host module before any module importing from it.
type HostModuleBuilder interface {
	// ExportFunction adds a function exported under name with the given signature.
	ExportFunction(name string, params, results []ValueType, fn HostFunction) HostModuleBuilder

	// ExportMemory adds a memory of minPages, limited to maxPages unless nil, exported under name. Guests importing
	// it share the memory with the host, which can access it with ModuleInstance.ExportedMemory.
	ExportMemory(name string, minPages uint32, maxPages *uint32) HostModuleBuilder

	// ExportAlias exports the function or memory already exported as target under the name alias as well.
	ExportAlias(alias, target string) HostModuleBuilder

	// Instantiate registers the module with the Runtime, so that it can be imported by name.
	Instantiate() (*ModuleInstance, error)
}

// hostModuleBuilder implements HostModuleBuilder
type hostModuleBuilder struct {
	r *runtime
	b *wasm.ModuleBuilder
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, b: wasm.NewModuleBuilder(moduleName)}
}

// ExportFunction implements HostModuleBuilder.ExportFunction
func (b *hostModuleBuilder) ExportFunction(name string, params, results []ValueType, fn HostFunction) HostModuleBuilder {
	b.b.ExportFunction(name, params, results, fn)
	return b
}

// ExportMemory implements HostModuleBuilder.ExportMemory
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32, maxPages *uint32) HostModuleBuilder {
	b.b.ExportMemory(name, minPages, maxPages)
	return b
}

// ExportAlias implements HostModuleBuilder.ExportAlias
func (b *hostModuleBuilder) ExportAlias(alias, target string) HostModuleBuilder {
	b.b.ExportAlias(alias, target)
	return b
}

// Instantiate implements HostModuleBuilder.Instantiate
func (b *hostModuleBuilder) Instantiate() (*ModuleInstance, error) {
	register := b.r.host.Synthesize
	if b.b.HasMemories() {
		register = b.r.host.External
	}
	addr, err := register(b.b)
	if err != nil {
		return nil, err
	}
	return &ModuleInstance{r: b.r, addr: addr}, nil
}
