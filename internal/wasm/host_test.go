package wasm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	i32_i32 = &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	v_i32   = &FunctionType{Results: []ValueType{ValueTypeI32}}
)

func constI32(v int32) []Instruction {
	return []Instruction{{Opcode: OpcodeI32Const, Const: uint64(v)}}
}

func nopHostFunc(*Host, Caller, []Value) ([]Value, error) { return nil, nil }

func newTestHost() *Host {
	return NewHost(zap.NewNop(), 0)
}

func TestNewHost(t *testing.T) {
	h := NewHost(nil, 0)
	require.NotNil(t, h.Logger())
	require.Equal(t, MemoryLimitPages, h.MemoryMaxPages())
	require.Equal(t, uint32(10), NewHost(nil, 10).MemoryMaxPages())
}

func TestHost_Instantiate_Empty(t *testing.T) {
	h := newTestHost()
	addr, err := h.Instantiate("empty", &Module{})
	require.NoError(t, err)
	require.Equal(t, ModuleAddr(0), addr)

	m := h.Module(addr)
	require.Equal(t, "empty", m.Name)
	require.Empty(t, m.Functions)
	require.Empty(t, m.Memories)
	require.Empty(t, h.Functions())
	require.Empty(t, h.Memories())
}

func TestHost_Instantiate_Functions(t *testing.T) {
	h := newTestHost()
	_, err := h.Synthesize(NewModuleBuilder("env").
		ExportFunction("double", []ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, HostFunc(nopHostFunc)))
	require.NoError(t, err)

	m := &Module{
		TypeSection:     []*FunctionType{i32_i32, v_i32},
		ImportSection:   []*Import{{Type: ExternTypeFunc, Module: "env", Name: "double", DescFunc: 0}},
		FunctionSection: []Index{1},
		CodeSection:     []*Code{{Body: constI32(42)}},
		ExportSection: []*Export{
			{Type: ExternTypeFunc, Name: "answer", Index: 1},
			{Type: ExternTypeFunc, Name: "reexport", Index: 0},
		},
	}
	addr, err := h.Instantiate("guest", m)
	require.NoError(t, err)
	require.Equal(t, ModuleAddr(1), addr)

	inst := h.Module(addr)
	require.Equal(t, []FunctionAddr{0, 1}, inst.Functions, "imports precede local functions")

	local := h.Function(inst.Export("answer").Function)
	require.Equal(t, FunctionKindLocal, local.Kind)
	require.Equal(t, addr, local.Module)
	require.Equal(t, Index(0), local.CodeIndex)
	require.Equal(t, v_i32, local.Type)
	require.Equal(t, m.CodeSection[0], local.Code)

	require.Equal(t, FunctionAddr(0), inst.Export("reexport").Function)
	require.Equal(t, FunctionKindExternal, h.Function(0).Kind)

	// every declared export resolves by name
	for _, e := range m.ExportSection {
		resolved, err := h.ResolveImport(addr, e.Name)
		require.NoError(t, err)
		require.Equal(t, e.Name, resolved.Name)
	}
}

func TestHost_Instantiate_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewHost(zap.New(core), 0)
	_, err := h.Synthesize(NewModuleBuilder("env").
		ExportFunction("f", nil, []ValueType{ValueTypeI32}, HostFunc(nopHostFunc)).
		ExportFunction("g", nil, []ValueType{ValueTypeI32}, HostFunc(nopHostFunc)))
	require.NoError(t, err)

	_, err = h.Instantiate("guest", &Module{
		TypeSection: []*FunctionType{v_i32},
		ImportSection: []*Import{
			{Type: ExternTypeFunc, Module: "env", Name: "f"},
			{Type: ExternTypeFunc, Module: "env", Name: "g"},
		},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: constI32(1)}},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("instantiated module").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "guest", fields["module"])
	require.Equal(t, int64(3), fields["functions"])
	require.Equal(t, uint32(2), fields["imported_functions"])
	require.Equal(t, 2, logs.FilterMessage("resolved import").Len())
}

func TestHost_Instantiate_ModuleNotFound(t *testing.T) {
	h := newTestHost()
	m := &Module{
		TypeSection:     []*FunctionType{v_i32},
		ImportSection:   []*Import{{Type: ExternTypeFunc, Module: "missing", Name: "f"}},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: constI32(1)}},
		MemorySection:   []*MemoryType{{Min: 1}},
	}
	_, err := h.Instantiate("guest", m)

	var notFound *ModuleNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "missing", notFound.Module)
	require.Empty(t, h.Functions(), "no function was instantiated")
	require.Empty(t, h.Memories(), "no memory was instantiated")
	require.Empty(t, h.Modules())
}

func TestHost_Instantiate_ExportNotFound(t *testing.T) {
	h := newTestHost()
	_, err := h.Synthesize(NewModuleBuilder("env"))
	require.NoError(t, err)

	_, err = h.Instantiate("guest", &Module{
		TypeSection:   []*FunctionType{v_i32},
		ImportSection: []*Import{{Type: ExternTypeFunc, Module: "env", Name: "nope"}},
	})
	var notFound *ExportNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, &ExportNotFoundError{Module: "env", Name: "nope"}, notFound)
	require.EqualError(t, err, `"nope" is not exported in module "env"`)
}

func TestHost_Instantiate_Errors(t *testing.T) {
	setup := func(t *testing.T) *Host {
		h := newTestHost()
		_, err := h.Synthesize(NewModuleBuilder("env").
			ExportFunction("f", []ValueType{ValueTypeI32}, []ValueType{ValueTypeI32}, HostFunc(nopHostFunc)))
		require.NoError(t, err)
		return h
	}

	tests := []struct {
		name        string
		module      *Module
		expectedErr string
	}{
		{
			name: "import kind mismatch",
			module: &Module{
				ImportSection: []*Import{{Type: ExternTypeMemory, Module: "env", Name: "f", DescMem: &MemoryType{}}},
			},
			expectedErr: "invalid module: import[env.f] is a memory, but was exported as a func",
		},
		{
			name: "import signature mismatch",
			module: &Module{
				TypeSection:   []*FunctionType{v_i32},
				ImportSection: []*Import{{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 0}},
			},
			expectedErr: "invalid module: import[env.f] signature mismatch: () -> (i32) != (i32) -> (i32)",
		},
		{
			name: "import unknown type",
			module: &Module{
				ImportSection: []*Import{{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 3}},
			},
			expectedErr: "invalid module: import[env.f] has unknown type index 3",
		},
		{
			name: "function and code mismatch",
			module: &Module{
				TypeSection:     []*FunctionType{v_i32},
				FunctionSection: []Index{0},
			},
			expectedErr: "invalid module: function and code section have inconsistent lengths: 1 != 0",
		},
		{
			name: "function unknown type",
			module: &Module{
				FunctionSection: []Index{0},
				CodeSection:     []*Code{{}},
			},
			expectedErr: "invalid module: function[0] has unknown type index 0",
		},
		{
			name: "memory over limit",
			module: &Module{
				MemorySection: []*MemoryType{{Min: MemoryLimitPages + 1}},
			},
			expectedErr: "memory[0]: invalid module: min 65537 pages over limit of 65536 pages",
		},
		{
			name: "export unknown function",
			module: &Module{
				ExportSection: []*Export{{Type: ExternTypeFunc, Name: "f", Index: 0}},
			},
			expectedErr: "invalid module: export[f] has unknown function index 0",
		},
		{
			name: "export unknown memory",
			module: &Module{
				ExportSection: []*Export{{Type: ExternTypeMemory, Name: "mem", Index: 0}},
			},
			expectedErr: "invalid module: export[mem] has unknown memory index 0",
		},
		{
			name: "export global",
			module: &Module{
				ExportSection: []*Export{{Type: ExternTypeGlobal, Name: "g", Index: 0}},
			},
			expectedErr: "invalid module: export[g]: global exports are not supported",
		},
		{
			name: "data offset not constant",
			module: &Module{
				MemorySection: []*MemoryType{{Min: 1}},
				DataSection: []*DataSegment{{
					OffsetExpression: []Instruction{{Opcode: OpcodeGlobalGet}},
					Init:             []byte{1},
				}},
			},
			expectedErr: "data[0]: invalid module: offset is not a constant i32 expression",
		},
		{
			name: "data offset i64",
			module: &Module{
				MemorySection: []*MemoryType{{Min: 1}},
				DataSection: []*DataSegment{{
					OffsetExpression: []Instruction{{Opcode: OpcodeI64Const}},
				}},
			},
			expectedErr: "data[0]: invalid module: offset is not a constant i32 expression",
		},
		{
			name: "data unknown memory",
			module: &Module{
				DataSection: []*DataSegment{{OffsetExpression: constI32(0), Init: []byte{1}}},
			},
			expectedErr: "invalid module: data[0] has unknown memory index 0",
		},
		{
			name: "data offset wraps",
			module: &Module{
				MemorySection: []*MemoryType{{Min: 1}},
				DataSection:   []*DataSegment{{OffsetExpression: constI32(-1), Init: []byte{1, 2}}},
			},
			expectedErr: "invalid module: data[0] out of bounds: offset 4294967295, length 2, memory length 65536",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			h := setup(t)
			_, err := h.Instantiate("guest", tc.module)
			require.ErrorIs(t, err, ErrInvalidModule)
			require.EqualError(t, err, tc.expectedErr)
			require.Len(t, h.Modules(), 1, "failed module must not be registered")
		})
	}
}

func TestHost_Instantiate_DataOutOfBounds(t *testing.T) {
	h := newTestHost()
	mem := h.addMemory(&MemoryInstance{Buffer: make([]byte, 2)})
	h.addModule(&ModuleInstance{
		Name:    "mem",
		Exports: []*ExportInstance{{Name: "memory", Type: ExternTypeMemory, Memory: mem}},
	})

	_, err := h.Instantiate("guest", &Module{
		ImportSection: []*Import{{Type: ExternTypeMemory, Module: "mem", Name: "memory", DescMem: &MemoryType{}}},
		DataSection: []*DataSegment{
			{OffsetExpression: constI32(0), Init: []byte{9}},
			{OffsetExpression: constI32(0), Init: []byte{1, 2, 3}},
		},
	})
	require.ErrorIs(t, err, ErrInvalidModule)
	require.Equal(t, []byte{0, 0}, h.Memory(mem).Buffer, "never partially writes")
}

func TestHost_Instantiate_Data(t *testing.T) {
	h := newTestHost()
	mem := h.addMemory(&MemoryInstance{Buffer: make([]byte, 4)})
	h.addModule(&ModuleInstance{
		Name:    "mem",
		Exports: []*ExportInstance{{Name: "memory", Type: ExternTypeMemory, Memory: mem}},
	})

	addr, err := h.Instantiate("guest", &Module{
		ImportSection: []*Import{{Type: ExternTypeMemory, Module: "mem", Name: "memory", DescMem: &MemoryType{}}},
		DataSection: []*DataSegment{
			{OffsetExpression: constI32(1), Init: []byte{1, 2}},
			{OffsetExpression: constI32(3), Init: []byte{3}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2, 3}, h.Memory(mem).Buffer, "imported memory is written in place")
	require.Equal(t, []MemoryAddr{mem}, h.Module(addr).Memories)
}

// TestHost_Instantiate_MemoryExport pins that a memory export allocates a new memory from its declared type, while
// an import aliases the existing handle.
func TestHost_Instantiate_MemoryExport(t *testing.T) {
	h := newTestHost()
	max := uint32(2)
	addr, err := h.Instantiate("guest", &Module{
		MemorySection: []*MemoryType{{Min: 1, Max: &max}},
		DataSection:   []*DataSegment{{OffsetExpression: constI32(0), Init: []byte{7}}},
		ExportSection: []*Export{{Type: ExternTypeMemory, Name: "memory", Index: 0}},
	})
	require.NoError(t, err)

	inst := h.Module(addr)
	require.Equal(t, []MemoryAddr{0}, inst.Memories)
	exported := inst.Export("memory")
	require.Equal(t, MemoryAddr(1), exported.Memory)
	require.Len(t, h.Memories(), 2)
	require.Equal(t, byte(7), h.Memory(0).Buffer[0])
	require.Equal(t, byte(0), h.Memory(1).Buffer[0], "exported memory is fresh")
	require.Equal(t, &max, h.Memory(1).Max)

	// A module importing the export shares the exported handle.
	importer, err := h.Instantiate("importer", &Module{
		ImportSection: []*Import{{Type: ExternTypeMemory, Module: "guest", Name: "memory", DescMem: &MemoryType{}}},
	})
	require.NoError(t, err)
	require.Equal(t, []MemoryAddr{1}, h.Module(importer).Memories)
	require.Len(t, h.Memories(), 2)
}

func TestHost_Instantiate_NotTransactional(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewHost(zap.New(core), 0)

	_, err := h.Instantiate("guest", &Module{
		TypeSection:     []*FunctionType{v_i32},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{Body: constI32(1)}},
		DataSection:     []*DataSegment{{OffsetExpression: constI32(0), Init: []byte{1}}},
	})
	require.ErrorIs(t, err, ErrInvalidModule)
	require.Len(t, h.Functions(), 1, "functions are not rolled back")
	require.Empty(t, h.Modules())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "instantiation failed after allocating instances", entry.Message)
	require.Equal(t, int64(1), entry.ContextMap()["functions"])
}

func TestHost_Synthesize(t *testing.T) {
	h := newTestHost()
	fn := HostFunc(nopHostFunc)
	addr, err := h.Synthesize(NewModuleBuilder("env").
		ExportFunction("print_i32", []ValueType{ValueTypeI32}, nil, fn).
		ExportFunction("now", nil, []ValueType{ValueTypeI64}, fn).
		ExportAlias("print", "print_i32"))
	require.NoError(t, err)

	m := h.Module(addr)
	require.Equal(t, "env", m.Name)
	require.Empty(t, m.Memories)
	require.Equal(t, []FunctionAddr{0, 1}, m.Functions)
	require.Len(t, m.Exports, 3)
	require.Equal(t, m.Export("print_i32").Function, m.Export("print").Function, "aliases share one instance")

	f := h.Function(0)
	require.Equal(t, FunctionKindExternal, f.Kind)
	require.Equal(t, "(i32) -> ()", f.Type.String())

	found, ok := h.FindModule("env")
	require.True(t, ok)
	require.Equal(t, addr, found)
	_, ok = h.FindModule("other")
	require.False(t, ok)
}

func TestHost_Synthesize_Errors(t *testing.T) {
	tests := []struct {
		name        string
		builder     *ModuleBuilder
		expectedErr string
	}{
		{
			name: "nil param",
			builder: NewModuleBuilder("env").
				ExportFunction("f", []ValueType{ValueTypeNil}, nil, HostFunc(nopHostFunc)),
			expectedErr: "module[env]: function[f] has invalid value type nil",
		},
		{
			name: "nil result",
			builder: NewModuleBuilder("env").
				ExportFunction("f", nil, []ValueType{ValueTypeNil}, HostFunc(nopHostFunc)),
			expectedErr: "module[env]: function[f] has invalid value type nil",
		},
		{
			name: "duplicate export",
			builder: NewModuleBuilder("env").
				ExportFunction("f", nil, nil, HostFunc(nopHostFunc)).
				ExportFunction("f", nil, nil, HostFunc(nopHostFunc)),
			expectedErr: "module[env]: export[f] already exists",
		},
		{
			name: "alias to unknown",
			builder: NewModuleBuilder("env").
				ExportAlias("g", "f"),
			expectedErr: "module[env]: alias[g] refers to unknown export[f]",
		},
		{
			name: "memory",
			builder: NewModuleBuilder("env").
				ExportMemory("memory", 1, nil),
			expectedErr: "module[env]: a synthesized module cannot export memories",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHost()
			_, err := h.Synthesize(tc.builder)
			require.EqualError(t, err, tc.expectedErr)
			require.Empty(t, h.Functions())
			require.Empty(t, h.Modules())
		})
	}
}

func TestHost_External(t *testing.T) {
	h := newTestHost()
	max := uint32(2)
	envAddr, err := h.External(NewModuleBuilder("env").
		ExportFunction("f", nil, nil, HostFunc(nopHostFunc)).
		ExportMemory("memory", 1, &max).
		ExportAlias("mem", "memory"))
	require.NoError(t, err)

	env := h.Module(envAddr)
	require.Equal(t, []FunctionAddr{0}, env.Functions)
	require.Equal(t, []MemoryAddr{0}, env.Memories)
	require.Equal(t, ExternTypeMemory, env.Export("memory").Type)
	require.Equal(t, MemoryAddr(0), env.Export("memory").Memory)
	require.Equal(t, env.Export("memory").Memory, env.Export("mem").Memory)
	require.Equal(t, FunctionAddr(0), env.Export("f").Function)
	require.Equal(t, uint32(1), h.Memory(0).PageCount())
	require.Equal(t, &max, h.Memory(0).Max)

	guestAddr, err := h.Instantiate("guest", &Module{
		ImportSection: []*Import{{Type: ExternTypeMemory, Module: "env", Name: "memory", DescMem: &MemoryType{Min: 1}}},
		DataSection: []*DataSegment{
			{MemoryIndex: 0, OffsetExpression: constI32(16), Init: []byte("hello")},
		},
	})
	require.NoError(t, err)

	guest := h.Module(guestAddr)
	require.Equal(t, []MemoryAddr{0}, guest.Memories, "the import shares the host memory")
	got, ok := h.Memory(0).Read(16, 5)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
	require.Len(t, h.Memories(), 1)
}

func TestHost_External_Errors(t *testing.T) {
	max := uint32(1)
	tests := []struct {
		name        string
		builder     *ModuleBuilder
		expectedErr string
	}{
		{
			name:        "min over max",
			builder:     NewModuleBuilder("env").ExportMemory("memory", 2, &max),
			expectedErr: "module[env]: memory[0]: invalid module: min 2 pages > max 1 pages",
		},
		{
			name:        "over limit",
			builder:     NewModuleBuilder("env").ExportMemory("memory", 5, nil),
			expectedErr: "module[env]: memory[0]: invalid module: min 5 pages over limit of 4 pages",
		},
		{
			name: "duplicate export",
			builder: NewModuleBuilder("env").
				ExportFunction("memory", nil, nil, HostFunc(nopHostFunc)).
				ExportMemory("memory", 1, nil),
			expectedErr: "module[env]: export[memory] already exists",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			h := NewHost(zap.NewNop(), 4)
			_, err := h.External(tc.builder)
			require.EqualError(t, err, tc.expectedErr)
			require.Empty(t, h.Functions())
			require.Empty(t, h.Memories())
			require.Empty(t, h.Modules())
		})
	}
}

func TestHost_Accessors_Unknown(t *testing.T) {
	h := newTestHost()
	require.Nil(t, h.Module(0))
	require.Nil(t, h.Function(0))
	require.Nil(t, h.Memory(0))
	_, err := h.ResolveImport(3, "f")
	require.EqualError(t, err, "unknown module [ModuleAddr]0x0003")
}

func TestAddr_String(t *testing.T) {
	require.Equal(t, "[ModuleAddr]0x0001", ModuleAddr(1).String())
	require.Equal(t, "[FunctionAddr]0x00FF", FunctionAddr(255).String())
	require.Equal(t, "[MemoryAddr]0x0000", MemoryAddr(0).String())
	require.Equal(t, "func [FunctionAddr]0x0002", (&ExportInstance{Type: ExternTypeFunc, Function: 2}).String())
	require.Equal(t, "memory [MemoryAddr]0x0002", (&ExportInstance{Type: ExternTypeMemory, Memory: 2}).String())
}
