package warthog

import (
	"go.uber.org/zap"

	"github.com/warthog-wasm/warthog/internal/wasm"
	"github.com/warthog-wasm/warthog/internal/wasm/interpreter"
)

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig
//
// A nil RuntimeConfig means NewRuntimeConfig, and every With method returns a copy:
//
//	rConfig = warthog.NewRuntimeConfig().WithCallStackCeiling(100)
type RuntimeConfig interface {
	// WithLogger sets the logger of the Host and every Thread of the Runtime. Defaults to zap.NewNop.
	WithLogger(*zap.Logger) RuntimeConfig

	// WithCallStackCeiling limits the count of frames on the call stack of one function call, including the frames
	// entered to evaluate its arguments. Exceeding it traps with a "call stack overflow". Defaults to 2000.
	WithCallStackCeiling(int) RuntimeConfig

	// WithMemoryMaxPages reduces the maximum number of pages a memory can have from 65536 pages (4GiB) to a lower
	// value.
	//
	// Notes:
	//   - A memory whose minimum exceeds this fails to instantiate.
	//   - A "memory.grow" instruction that results in a larger value fails, returning -1.
	//
	// See https://www.w3.org/TR/wasm-core-1/#grow-mem
	WithMemoryMaxPages(uint32) RuntimeConfig
}

type runtimeConfig struct {
	logger           *zap.Logger
	callStackCeiling int
	memoryMaxPages   uint32
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &runtimeConfig{
	callStackCeiling: interpreter.DefaultCallStackCeiling,
	memoryMaxPages:   wasm.MemoryLimitPages,
}

// NewRuntimeConfig returns a RuntimeConfig using defaults.
func NewRuntimeConfig() RuntimeConfig {
	ret := engineLessConfig.clone()
	ret.logger = zap.NewNop()
	return ret
}

// clone makes a deep copy of this runtime config.
func (c *runtimeConfig) clone() *runtimeConfig {
	ret := *c
	return &ret
}

// WithLogger implements RuntimeConfig.WithLogger
func (c *runtimeConfig) WithLogger(logger *zap.Logger) RuntimeConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithCallStackCeiling implements RuntimeConfig.WithCallStackCeiling
func (c *runtimeConfig) WithCallStackCeiling(ceiling int) RuntimeConfig {
	ret := c.clone()
	ret.callStackCeiling = ceiling
	return ret
}

// WithMemoryMaxPages implements RuntimeConfig.WithMemoryMaxPages
func (c *runtimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) RuntimeConfig {
	if memoryMaxPages > wasm.MemoryLimitPages {
		memoryMaxPages = wasm.MemoryLimitPages
	}
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}
