package wasm

import "encoding/binary"

// MemoryInstance is a linear byte store.
// See https://www.w3.org/TR/wasm-core-1/#memory-instances%E2%91%A0
type MemoryInstance struct {
	Buffer []byte
	// Max is the maximum length in pages, or nil when unbounded.
	Max *uint32
}

// NewMemoryInstance allocates a zeroed memory of the minimum size of the type.
func NewMemoryInstance(mt *MemoryType) *MemoryInstance {
	return &MemoryInstance{Buffer: make([]byte, uint64(mt.Min)*uint64(PageSize)), Max: mt.Max}
}

// Len returns the length in bytes. A memory of MemoryLimitPages is 2^32 bytes, so this is wider than an address.
func (m *MemoryInstance) Len() uint64 {
	return uint64(len(m.Buffer))
}

// PageCount returns the length in pages, rounded down.
func (m *MemoryInstance) PageCount() uint32 {
	return uint32(len(m.Buffer) / int(PageSize))
}

// Grow extends the memory by delta pages, returning the previous page count. It fails when the result would
// exceed Max or limitPages.
func (m *MemoryInstance) Grow(delta, limitPages uint32) (previous uint32, ok bool) {
	previous = m.PageCount()
	limit := limitPages
	if m.Max != nil && *m.Max < limit {
		limit = *m.Max
	}
	if uint64(previous)+uint64(delta) > uint64(limit) {
		return previous, false
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*uint64(PageSize))...)
	return previous, true
}

// hasLen returns true if Len is sufficient for byteCount at the given offset.
func (m *MemoryInstance) hasLen(offset uint32, byteCount uint64) bool {
	return uint64(offset)+byteCount <= uint64(len(m.Buffer))
}

// Read returns a view of byteCount bytes at offset, or false if out of range.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.hasLen(offset, uint64(byteCount)) {
		return nil, false
	}
	return m.Buffer[offset : uint64(offset)+uint64(byteCount)], true
}

// Write copies v to offset, or returns false without writing if out of range.
func (m *MemoryInstance) Write(offset uint32, v []byte) bool {
	if !m.hasLen(offset, uint64(len(v))) {
		return false
	}
	copy(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) ReadUint8(offset uint32) (byte, bool) {
	if !m.hasLen(offset, 1) {
		return 0, false
	}
	return m.Buffer[offset], true
}

func (m *MemoryInstance) ReadUint16Le(offset uint32) (uint16, bool) {
	if !m.hasLen(offset, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.Buffer[offset:]), true
}

func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasLen(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset:]), true
}

func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasLen(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset:]), true
}

func (m *MemoryInstance) WriteUint8(offset uint32, v byte) bool {
	if !m.hasLen(offset, 1) {
		return false
	}
	m.Buffer[offset] = v
	return true
}

func (m *MemoryInstance) WriteUint16Le(offset uint32, v uint16) bool {
	if !m.hasLen(offset, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.hasLen(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasLen(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// ByteRange is a run of bytes within a memory, End exclusive. End is 2^32 for a run reaching the end of a full
// memory.
type ByteRange struct {
	Start, End uint64
}

// Size returns the length of the range.
func (r ByteRange) Size() uint64 {
	return r.End - r.Start
}

// InitializedRanges returns the maximal runs of non-zero bytes in ascending order.
func (m *MemoryInstance) InitializedRanges() (ranges []ByteRange) {
	start, in := uint64(0), false
	for i, b := range m.Buffer {
		switch {
		case b != 0 && !in:
			start, in = uint64(i), true
		case b == 0 && in:
			ranges = append(ranges, ByteRange{Start: start, End: uint64(i)})
			in = false
		}
	}
	if in {
		ranges = append(ranges, ByteRange{Start: start, End: uint64(len(m.Buffer))})
	}
	return
}
