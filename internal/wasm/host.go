package wasm

import (
	"fmt"

	"go.uber.org/zap"
)

// Host is the process-wide registry of module, function and memory instances. Each lives in an append-only arena
// addressed by a handle that stays valid for the life of the Host.
//
// Note: A Host is not safe for concurrent use. Callers must serialize instantiation and execution.
// See https://www.w3.org/TR/wasm-core-1/#store%E2%91%A0
type Host struct {
	logger *zap.Logger

	// memoryMaxPages caps the size any memory may be created with or grown to.
	memoryMaxPages uint32

	modules   []*ModuleInstance
	functions []*FunctionInstance
	memories  []*MemoryInstance
}

// NewHost returns an empty registry. A nil logger logs nothing.
func NewHost(logger *zap.Logger, memoryMaxPages uint32) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memoryMaxPages == 0 || memoryMaxPages > MemoryLimitPages {
		memoryMaxPages = MemoryLimitPages
	}
	return &Host{logger: logger, memoryMaxPages: memoryMaxPages}
}

// Logger returns the logger the Host and threads running against it write to.
func (h *Host) Logger() *zap.Logger {
	return h.logger
}

// MemoryMaxPages returns the page ceiling for creating and growing memories.
func (h *Host) MemoryMaxPages() uint32 {
	return h.memoryMaxPages
}

// Module returns the instance for the handle or nil if it was not issued by this Host.
func (h *Host) Module(a ModuleAddr) *ModuleInstance {
	if int(a) >= len(h.modules) {
		return nil
	}
	return h.modules[a]
}

// Function returns the instance for the handle or nil if it was not issued by this Host.
func (h *Host) Function(a FunctionAddr) *FunctionInstance {
	if int(a) >= len(h.functions) {
		return nil
	}
	return h.functions[a]
}

// Memory returns the instance for the handle or nil if it was not issued by this Host.
func (h *Host) Memory(a MemoryAddr) *MemoryInstance {
	if int(a) >= len(h.memories) {
		return nil
	}
	return h.memories[a]
}

// Modules returns the module arena, indexed by ModuleAddr. The result must not be modified.
func (h *Host) Modules() []*ModuleInstance { return h.modules }

// Functions returns the function arena, indexed by FunctionAddr. The result must not be modified.
func (h *Host) Functions() []*FunctionInstance { return h.functions }

// Memories returns the memory arena, indexed by MemoryAddr. The result must not be modified.
func (h *Host) Memories() []*MemoryInstance { return h.memories }

// FindModule returns the first module registered under name.
func (h *Host) FindModule(name string) (ModuleAddr, bool) {
	for i, m := range h.modules {
		if m.Name == name {
			return ModuleAddr(i), true
		}
	}
	return 0, false
}

// ResolveImport returns the export of the given name from the module, or ExportNotFoundError.
func (h *Host) ResolveImport(module ModuleAddr, name string) (*ExportInstance, error) {
	m := h.Module(module)
	if m == nil {
		return nil, fmt.Errorf("unknown module %s", module)
	}
	if e := m.Export(name); e != nil {
		return e, nil
	}
	return nil, &ExportNotFoundError{Module: m.Name, Name: name}
}

func (h *Host) addFunction(f *FunctionInstance) FunctionAddr {
	h.functions = append(h.functions, f)
	return FunctionAddr(len(h.functions) - 1)
}

func (h *Host) addMemory(m *MemoryInstance) MemoryAddr {
	h.memories = append(h.memories, m)
	return MemoryAddr(len(h.memories) - 1)
}

func (h *Host) addModule(m *ModuleInstance) ModuleAddr {
	h.modules = append(h.modules, m)
	return ModuleAddr(len(h.modules) - 1)
}

// Instantiate links the module against those already registered and registers it under name.
//
// Imports are resolved first, so an unregistered import fails before anything is added. Instantiation is not
// transactional: functions and memories added before a later failure stay in their arenas, unreferenced.
//
// Note: A memory export allocates a new memory from its declared type rather than aliasing the memory at its index.
func (h *Host) Instantiate(name string, m *Module) (addr ModuleAddr, err error) {
	functionsBefore, memoriesBefore := len(h.functions), len(h.memories)
	defer func() {
		if err != nil && (len(h.functions) > functionsBefore || len(h.memories) > memoriesBefore) {
			h.logger.Warn("instantiation failed after allocating instances",
				zap.String("module", name),
				zap.Int("functions", len(h.functions)-functionsBefore),
				zap.Int("memories", len(h.memories)-memoriesBefore),
				zap.Error(err))
		}
	}()

	addr = ModuleAddr(len(h.modules))
	inst := &ModuleInstance{Name: name, Names: m.NameSection}

	// memoryTypes is index-correlated with inst.Memories. Exports allocate from these.
	var memoryTypes []*MemoryType

	if memoryTypes, err = h.resolveImports(m, inst); err != nil {
		return 0, err
	}
	if err = h.instantiateFunctions(addr, m, inst); err != nil {
		return 0, err
	}
	if memoryTypes, err = h.instantiateMemories(m, inst, memoryTypes); err != nil {
		return 0, err
	}
	if err = h.instantiateData(m, inst); err != nil {
		return 0, err
	}
	if err = h.exportModule(m, inst, memoryTypes); err != nil {
		return 0, err
	}

	h.addModule(inst)
	h.logger.Debug("instantiated module",
		zap.String("module", name),
		zap.Stringer("addr", addr),
		zap.Int("functions", len(inst.Functions)),
		zap.Uint32("imported_functions", m.ImportCount(ExternTypeFunc)),
		zap.Int("memories", len(inst.Memories)),
		zap.Int("exports", len(inst.Exports)))
	return addr, nil
}

func (h *Host) resolveImports(m *Module, inst *ModuleInstance) (memoryTypes []*MemoryType, err error) {
	for _, im := range m.ImportSection {
		moduleAddr, ok := h.FindModule(im.Module)
		if !ok {
			return nil, &ModuleNotFoundError{Module: im.Module}
		}
		export, err := h.ResolveImport(moduleAddr, im.Name)
		if err != nil {
			return nil, err
		}
		if export.Type != im.Type {
			return nil, invalidModule("import[%s.%s] is a %s, but was exported as a %s",
				im.Module, im.Name, ExternTypeName(im.Type), ExternTypeName(export.Type))
		}

		switch im.Type {
		case ExternTypeFunc:
			if int(im.DescFunc) >= len(m.TypeSection) {
				return nil, invalidModule("import[%s.%s] has unknown type index %d", im.Module, im.Name, im.DescFunc)
			}
			expected := m.TypeSection[im.DescFunc]
			if actual := h.functions[export.Function].Type; !actual.EqualsSignature(expected.Params, expected.Results) {
				return nil, invalidModule("import[%s.%s] signature mismatch: %s != %s", im.Module, im.Name, expected, actual)
			}
			inst.Functions = append(inst.Functions, export.Function)
		case ExternTypeMemory:
			inst.Memories = append(inst.Memories, export.Memory)
			memoryTypes = append(memoryTypes, im.DescMem)
		default:
			return nil, invalidModule("import[%s.%s]: %s imports are not supported",
				im.Module, im.Name, ExternTypeName(im.Type))
		}
		h.logger.Debug("resolved import",
			zap.String("module", im.Module),
			zap.String("name", im.Name),
			zap.Stringer("export", export))
	}
	return memoryTypes, nil
}

func (h *Host) instantiateFunctions(addr ModuleAddr, m *Module, inst *ModuleInstance) error {
	if len(m.FunctionSection) != len(m.CodeSection) {
		return invalidModule("function and code section have inconsistent lengths: %d != %d",
			len(m.FunctionSection), len(m.CodeSection))
	}
	for codeIndex, typeIndex := range m.FunctionSection {
		if int(typeIndex) >= len(m.TypeSection) {
			return invalidModule("function[%d] has unknown type index %d", codeIndex, typeIndex)
		}
		f := h.addFunction(&FunctionInstance{
			Type:      m.TypeSection[typeIndex],
			Kind:      FunctionKindLocal,
			Module:    addr,
			CodeIndex: Index(codeIndex),
			Code:      m.CodeSection[codeIndex],
		})
		inst.Functions = append(inst.Functions, f)
	}
	return nil
}

func (h *Host) instantiateMemories(m *Module, inst *ModuleInstance, memoryTypes []*MemoryType) ([]*MemoryType, error) {
	for i, mt := range m.MemorySection {
		if err := h.checkMemoryType(mt); err != nil {
			return nil, fmt.Errorf("memory[%d]: %w", i, err)
		}
		inst.Memories = append(inst.Memories, h.addMemory(NewMemoryInstance(mt)))
		memoryTypes = append(memoryTypes, mt)
	}
	return memoryTypes, nil
}

func (h *Host) checkMemoryType(mt *MemoryType) error {
	if mt == nil {
		return invalidModule("missing memory type")
	}
	if mt.Min > h.memoryMaxPages {
		return invalidModule("min %d pages over limit of %d pages", mt.Min, h.memoryMaxPages)
	}
	if mt.Max != nil && *mt.Max < mt.Min {
		return invalidModule("min %d pages > max %d pages", mt.Min, *mt.Max)
	}
	return nil
}

// instantiateData validates every segment before copying any, so a failure never partially writes.
func (h *Host) instantiateData(m *Module, inst *ModuleInstance) error {
	offsets := make([]uint32, len(m.DataSection))
	for i, d := range m.DataSection {
		offset, err := dataOffset(d.OffsetExpression)
		if err != nil {
			return fmt.Errorf("data[%d]: %w", i, err)
		}
		memoryAddr, ok := inst.Memory(d.MemoryIndex)
		if !ok {
			return invalidModule("data[%d] has unknown memory index %d", i, d.MemoryIndex)
		}
		if mem := h.memories[memoryAddr]; !mem.hasLen(offset, uint64(len(d.Init))) {
			return invalidModule("data[%d] out of bounds: offset %d, length %d, memory length %d",
				i, offset, len(d.Init), mem.Len())
		}
		offsets[i] = offset
	}
	for i, d := range m.DataSection {
		memoryAddr, _ := inst.Memory(d.MemoryIndex)
		h.memories[memoryAddr].Write(offsets[i], d.Init)
	}
	return nil
}

// dataOffset returns the offset of a data segment, which must be exactly one i32.const.
func dataOffset(expr []Instruction) (uint32, error) {
	if len(expr) != 1 || expr[0].Opcode != OpcodeI32Const {
		return 0, invalidModule("offset is not a constant i32 expression")
	}
	return uint32(expr[0].Const), nil
}

func (h *Host) exportModule(m *Module, inst *ModuleInstance, memoryTypes []*MemoryType) error {
	for _, e := range m.ExportSection {
		switch e.Type {
		case ExternTypeFunc:
			f, ok := inst.Function(e.Index)
			if !ok {
				return invalidModule("export[%s] has unknown function index %d", e.Name, e.Index)
			}
			inst.Exports = append(inst.Exports, &ExportInstance{Name: e.Name, Type: ExternTypeFunc, Function: f})
		case ExternTypeMemory:
			if int(e.Index) >= len(memoryTypes) {
				return invalidModule("export[%s] has unknown memory index %d", e.Name, e.Index)
			}
			mt := memoryTypes[e.Index]
			if err := h.checkMemoryType(mt); err != nil {
				return fmt.Errorf("export[%s]: %w", e.Name, err)
			}
			mem := h.addMemory(NewMemoryInstance(mt))
			inst.Exports = append(inst.Exports, &ExportInstance{Name: e.Name, Type: ExternTypeMemory, Memory: mem})
		default:
			return invalidModule("export[%s]: %s exports are not supported", e.Name, ExternTypeName(e.Type))
		}
	}
	return nil
}

// Synthesize registers the module declared by the builder. Each function becomes a FunctionKindExternal instance.
// A synthesized module has no imports and no memories: use External for a builder with memories.
func (h *Host) Synthesize(b *ModuleBuilder) (ModuleAddr, error) {
	if b.err != nil {
		return 0, fmt.Errorf("module[%s]: %w", b.name, b.err)
	}
	if b.HasMemories() {
		return 0, fmt.Errorf("module[%s]: a synthesized module cannot export memories", b.name)
	}
	return h.register(b), nil
}

// External registers the module declared by the builder like Synthesize, also allocating each memory it declares.
// Memory exports refer to those instances, so guests importing them share the memory with the host.
func (h *Host) External(b *ModuleBuilder) (ModuleAddr, error) {
	if b.err != nil {
		return 0, fmt.Errorf("module[%s]: %w", b.name, b.err)
	}
	for i, mt := range b.memories {
		if err := h.checkMemoryType(mt); err != nil {
			return 0, fmt.Errorf("module[%s]: memory[%d]: %w", b.name, i, err)
		}
	}
	return h.register(b), nil
}

func (h *Host) register(b *ModuleBuilder) ModuleAddr {
	inst := &ModuleInstance{Name: b.name}
	for _, f := range b.functions {
		inst.Functions = append(inst.Functions, h.addFunction(&FunctionInstance{
			Type: f.typ,
			Kind: FunctionKindExternal,
			Host: f.fn,
		}))
	}
	for _, mt := range b.memories {
		inst.Memories = append(inst.Memories, h.addMemory(NewMemoryInstance(mt)))
	}
	for _, e := range b.exports {
		export := &ExportInstance{Name: e.name, Type: e.typ}
		if e.typ == ExternTypeMemory {
			export.Memory = inst.Memories[e.index]
		} else {
			export.Function = inst.Functions[e.index]
		}
		inst.Exports = append(inst.Exports, export)
	}

	addr := h.addModule(inst)
	h.logger.Debug("registered host module",
		zap.String("module", b.name),
		zap.Stringer("addr", addr),
		zap.Int("functions", len(inst.Functions)),
		zap.Int("memories", len(inst.Memories)),
		zap.Int("exports", len(inst.Exports)))
	return addr
}
