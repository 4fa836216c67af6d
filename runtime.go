package warthog

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasm/binary"
	"github.com/warthog-wasm/warthog/internal/wasm/interpreter"
)

// Runtime allows embedding of WebAssembly 1.0 (20191205) modules.
//
// Ex.
//
//	r := warthog.NewRuntime()
//	decoded, _ := r.DecodeModule(file)
//	module, _ := r.InstantiateModule("math", decoded)
//	results, _ := module.ExportedFunction("add").Call(warthog.I32(1), warthog.I32(2))
//
// A Runtime is not safe for concurrent use: calls must be serialized by the caller.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/
type Runtime interface {
	// NewHostModuleBuilder lets you create modules out of functions defined in Go.
	//
	// Ex. Below defines and instantiates a module named "env" with one function:
	//
	//	_, err := r.NewHostModuleBuilder("env").
	//		ExportFunction("double", []ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, double).
	//		Instantiate()
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// Module returns the first module instantiated under the name, or nil if there is none.
	Module(moduleName string) *ModuleInstance

	// DecodeModule decodes the WebAssembly 1.0 (20191205) binary source or errs if invalid.
	//
	// Note: The loader checks the structure of the binary, not every validation rule of the specification.
	DecodeModule(source io.Reader) (*Module, error)

	// InstantiateModule links the module against those already instantiated and registers it under moduleName.
	//
	// Note: The Module is consumed. Instantiating it again errs.
	InstantiateModule(moduleName string, module *Module) (*ModuleInstance, error)

	// Host returns the registry of every instance created by this Runtime.
	Host() *wasm.Host
}

// NewRuntime returns a runtime with a configuration assigned by NewRuntimeConfig.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration, or the defaults when it is nil.
func NewRuntimeWithConfig(rConfig RuntimeConfig) Runtime {
	config, ok := rConfig.(*runtimeConfig)
	if !ok || config == nil {
		config = NewRuntimeConfig().(*runtimeConfig)
	}
	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &runtime{
		host:             wasm.NewHost(logger, config.memoryMaxPages),
		logger:           logger,
		callStackCeiling: config.callStackCeiling,
	}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	host             *wasm.Host
	logger           *zap.Logger
	callStackCeiling int
}

// Module implements Runtime.Module
func (r *runtime) Module(moduleName string) *ModuleInstance {
	addr, ok := r.host.FindModule(moduleName)
	if !ok {
		return nil
	}
	return &ModuleInstance{r: r, addr: addr}
}

// DecodeModule implements Runtime.DecodeModule
func (r *runtime) DecodeModule(source io.Reader) (*Module, error) {
	if source == nil {
		return nil, errors.New("source == nil")
	}

	internal, err := binary.DecodeModule(source, r.logger)
	if err != nil {
		return nil, err
	}

	result := &Module{module: internal}
	if internal.NameSection != nil {
		result.name = internal.NameSection.ModuleName
	}
	return result, nil
}

// InstantiateModule implements Runtime.InstantiateModule
func (r *runtime) InstantiateModule(moduleName string, module *Module) (*ModuleInstance, error) {
	if module == nil {
		return nil, errors.New("module == nil")
	}
	if module.module == nil {
		return nil, fmt.Errorf("module[%s] was already instantiated", moduleName)
	}

	m := module.module
	module.module = nil
	addr, err := r.host.Instantiate(moduleName, m)
	if err != nil {
		return nil, err
	}
	return &ModuleInstance{r: r, addr: addr}, nil
}

// Host implements Runtime.Host
func (r *runtime) Host() *wasm.Host {
	return r.host
}

// newThread returns a Thread whose bottom frame is in module.
func (r *runtime) newThread(module wasm.ModuleAddr) *interpreter.Thread {
	return interpreter.NewThread(r.host, module, r.callStackCeiling)
}
