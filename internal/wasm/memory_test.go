package wasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMemoryInstance(t *testing.T) {
	max := uint32(3)
	m := NewMemoryInstance(&MemoryType{Min: 1, Max: &max})
	require.Equal(t, uint64(PageSize), m.Len())
	require.Equal(t, uint32(1), m.PageCount())
	require.Equal(t, &max, m.Max)
}

func TestMemoryInstance_Grow(t *testing.T) {
	max := uint32(2)
	m := NewMemoryInstance(&MemoryType{Min: 1, Max: &max})

	previous, ok := m.Grow(1, MemoryLimitPages)
	require.True(t, ok)
	require.Equal(t, uint32(1), previous)
	require.Equal(t, uint64(2*PageSize), m.Len())

	previous, ok = m.Grow(1, MemoryLimitPages)
	require.False(t, ok)
	require.Equal(t, uint32(2), previous)
	require.Equal(t, uint64(2*PageSize), m.Len())

	unbounded := NewMemoryInstance(&MemoryType{})
	_, ok = unbounded.Grow(2, 1)
	require.False(t, ok, "host limit applies without a declared max")
	_, ok = unbounded.Grow(0, 1)
	require.True(t, ok)
}

func TestMemoryInstance_ReadWrite(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}

	require.True(t, m.WriteUint64Le(0, math.MaxUint64))
	v64, ok := m.ReadUint64Le(0)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64), v64)

	require.True(t, m.WriteUint32Le(4, 0x01020304))
	v32, ok := m.ReadUint32Le(4)
	require.True(t, ok)
	require.Equal(t, uint32(0x01020304), v32)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x04, 0x03, 0x02, 0x01}, m.Buffer)

	require.True(t, m.WriteUint16Le(6, 0xbeef))
	v16, ok := m.ReadUint16Le(6)
	require.True(t, ok)
	require.Equal(t, uint16(0xbeef), v16)

	require.True(t, m.WriteUint8(7, 1))
	v8, ok := m.ReadUint8(7)
	require.True(t, ok)
	require.Equal(t, byte(1), v8)
}

func TestMemoryInstance_OutOfBounds(t *testing.T) {
	m := &MemoryInstance{Buffer: make([]byte, 8)}

	_, ok := m.ReadUint64Le(1)
	require.False(t, ok)
	_, ok = m.ReadUint32Le(5)
	require.False(t, ok)
	_, ok = m.ReadUint16Le(7)
	require.False(t, ok)
	_, ok = m.ReadUint8(8)
	require.False(t, ok)
	_, ok = m.ReadUint32Le(math.MaxUint32)
	require.False(t, ok, "offset must not wrap")

	require.False(t, m.WriteUint64Le(1, 0))
	require.False(t, m.Write(6, []byte{1, 2, 3}))
	require.Equal(t, make([]byte, 8), m.Buffer, "failed writes must not partially write")

	_, ok = m.Read(4, 5)
	require.False(t, ok)
	b, ok := m.Read(4, 4)
	require.True(t, ok)
	require.Len(t, b, 4)
}

func TestMemoryInstance_PageLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates 4GiB")
	}
	m := NewMemoryInstance(&MemoryType{Min: MemoryLimitPages})
	defer func() { m.Buffer = nil }()

	require.Equal(t, uint64(1)<<32, m.Len())
	require.Equal(t, MemoryLimitPages, m.PageCount())

	require.True(t, m.WriteUint32Le(math.MaxUint32-3, 0xdeadbeef))
	v32, ok := m.ReadUint32Le(math.MaxUint32 - 3)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v32)

	b, ok := m.Read(math.MaxUint32, 1)
	require.True(t, ok)
	require.Equal(t, []byte{0xde}, b)

	_, ok = m.ReadUint64Le(math.MaxUint32 - 3)
	require.False(t, ok)
	_, ok = m.Read(math.MaxUint32, 2)
	require.False(t, ok)

	_, ok = m.Grow(1, MemoryLimitPages)
	require.False(t, ok)
}

func TestMemoryInstance_InitializedRanges(t *testing.T) {
	tests := []struct {
		name     string
		buffer   []byte
		expected []ByteRange
	}{
		{name: "empty"},
		{name: "zeros", buffer: make([]byte, 4)},
		{
			name:     "one in the middle",
			buffer:   []byte{0, 1, 2, 0},
			expected: []ByteRange{{Start: 1, End: 3}},
		},
		{
			name:     "run to the end",
			buffer:   []byte{0, 0, 7, 7},
			expected: []ByteRange{{Start: 2, End: 4}},
		},
		{
			name:     "several",
			buffer:   []byte{1, 0, 1, 1, 0, 0, 1},
			expected: []ByteRange{{Start: 0, End: 1}, {Start: 2, End: 4}, {Start: 6, End: 7}},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m := &MemoryInstance{Buffer: tc.buffer}
			require.Equal(t, tc.expected, m.InitializedRanges())
		})
	}

	require.Equal(t, uint64(2), ByteRange{Start: 2, End: 4}.Size())
}
