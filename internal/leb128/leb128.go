// Package leb128 implements the variable-length integer encoding used for all indices, counts and constant operands
// in the WebAssembly binary format.
//
// See https://www.w3.org/TR/wasm-core-1/#integers%E2%91%A4
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when an encoding is longer than its integer size permits or sets bits beyond it.
var ErrOverflow = errors.New("leb128: overflow")

const (
	continuationBit = 0x80
	signBit         = 0x40
	payloadMask     = 0x7f
)

// DecodeUint32 decodes an unsigned 32-bit integer, returning it and the count of bytes read.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	v, n, err := decodeUnsigned(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 decodes an unsigned 64-bit integer, returning it and the count of bytes read.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 decodes a signed 32-bit integer, returning it and the count of bytes read.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 decodes a signed 64-bit integer, returning it and the count of bytes read.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	return decodeSigned(r, 64)
}

func decodeUnsigned(r io.ByteReader, size uint) (ret uint64, bytesRead uint64, err error) {
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++

		if size-shift < 7 { // last permitted byte: no continuation and no bits past size
			if b&continuationBit != 0 || b>>(size-shift) != 0 {
				return 0, 0, ErrOverflow
			}
			return ret | uint64(b)<<shift, bytesRead, nil
		}

		ret |= uint64(b&payloadMask) << shift
		if b&continuationBit == 0 {
			return ret, bytesRead, nil
		}
	}
}

func decodeSigned(r io.ByteReader, size uint) (ret int64, bytesRead uint64, err error) {
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		bytesRead++

		if remaining := size - shift; remaining < 7 {
			if b&continuationBit != 0 {
				return 0, 0, ErrOverflow
			}
			// The unused high bits must be a sign extension of the last meaningful one.
			v := int64(int8(b<<1) >> 1)
			if v < -(1<<(remaining-1)) || v >= 1<<(remaining-1) {
				return 0, 0, ErrOverflow
			}
			return ret | v<<shift, bytesRead, nil
		}

		ret |= int64(b&payloadMask) << shift
		shift += 7
		if b&continuationBit == 0 {
			if b&signBit != 0 {
				ret |= -1 << shift
			}
			return ret, bytesRead, nil
		}
	}
}

// EncodeUint32 encodes the value in the minimum number of bytes.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes the value in the minimum number of bytes.
func EncodeUint64(v uint64) (buf []byte) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|continuationBit)
	}
}

// EncodeInt32 encodes the value in the minimum number of bytes.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes the value in the minimum number of bytes.
func EncodeInt64(v int64) (buf []byte) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if (v == 0 && b&signBit == 0) || (v == -1 && b&signBit != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|continuationBit)
	}
}
