// Package ieee754 reads and writes the little-endian IEEE 754 operands of f32.const and f64.const.
package ieee754

import (
	"encoding/binary"
	"io"
	"math"
)

// DecodeFloat32 reads four little-endian bytes as a float32, preserving NaN payloads via the raw bits.
func DecodeFloat32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// DecodeFloat64 reads eight little-endian bytes as a float64, preserving NaN payloads via the raw bits.
func DecodeFloat64(r io.Reader) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// EncodeFloat32 encodes v as four little-endian bytes.
func EncodeFloat32(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

// EncodeFloat64 encodes v as eight little-endian bytes.
func EncodeFloat64(v float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
}
