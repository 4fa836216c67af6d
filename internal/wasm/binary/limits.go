package binary

import (
	"bytes"
	"fmt"

	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

// decodeLimitsType returns the min and optional max decoded with the WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/wasm-core-1/#limits%E2%91%A6
func decodeLimitsType(r *bytes.Reader) (min uint32, max *uint32, err error) {
	var flag byte
	if flag, err = r.ReadByte(); err != nil {
		err = fmt.Errorf("read leading byte: %w", err)
		return
	}

	switch flag {
	case 0x00:
		min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			err = fmt.Errorf("read min of limit: %w", err)
		}
	case 0x01:
		min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			err = fmt.Errorf("read min of limit: %w", err)
			return
		}
		var m uint32
		if m, _, err = leb128.DecodeUint32(r); err != nil {
			err = fmt.Errorf("read max of limit: %w", err)
		} else {
			max = &m
		}
	default:
		err = fmt.Errorf("%w for limits: %#x != 0x00 or 0x01", ErrInvalidByte, flag)
	}
	return
}

// encodeLimitsType returns the limits encoded in WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/wasm-core-1/#limits%E2%91%A6
func encodeLimitsType(min uint32, max *uint32) []byte {
	if max == nil {
		return append([]byte{0x00}, leb128.EncodeUint32(min)...)
	}
	return append(append([]byte{0x01}, leb128.EncodeUint32(min)...), leb128.EncodeUint32(*max)...)
}

// decodeMemoryType returns the wasm.MemoryType decoded with the WebAssembly 1.0 (20191205) Binary Format.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-memory
func decodeMemoryType(r *bytes.Reader) (*wasm.MemoryType, error) {
	min, max, err := decodeLimitsType(r)
	if err != nil {
		return nil, err
	}
	if min > wasm.MemoryLimitPages {
		return nil, fmt.Errorf("min %d pages over limit of %d pages", min, wasm.MemoryLimitPages)
	}
	if max != nil {
		if *max > wasm.MemoryLimitPages {
			return nil, fmt.Errorf("max %d pages over limit of %d pages", *max, wasm.MemoryLimitPages)
		} else if min > *max {
			return nil, fmt.Errorf("min %d pages > max %d pages", min, *max)
		}
	}
	return &wasm.MemoryType{Min: min, Max: max}, nil
}

func encodeMemoryType(mt *wasm.MemoryType) []byte {
	return encodeLimitsType(mt.Min, mt.Max)
}

// skipTableType consumes a table type, which this runtime does not link.
func skipTableType(r *bytes.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read table element type: %w", err)
	}
	if b != 0x70 {
		return fmt.Errorf("%w: invalid table element type: %#x", ErrInvalidByte, b)
	}
	_, _, err = decodeLimitsType(r)
	return err
}

// skipGlobalType consumes a global type, which this runtime does not link.
func skipGlobalType(r *bytes.Reader) error {
	if _, err := decodeValueType(r); err != nil {
		return err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read global mutability: %w", err)
	}
	if mut > 1 {
		return fmt.Errorf("%w: invalid global mutability: %#x", ErrInvalidByte, mut)
	}
	return nil
}
