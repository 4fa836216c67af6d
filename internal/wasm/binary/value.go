package binary

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

func decodeValueType(r *bytes.Reader) (wasm.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read value type: %w", err)
	}
	switch vt := wasm.ValueType(b); vt {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return vt, nil
	}
	return 0, fmt.Errorf("%w: invalid value type: %#x", ErrInvalidByte, b)
}

func decodeValueTypes(r *bytes.Reader) ([]wasm.ValueType, error) {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}
	if int64(count) > int64(r.Len()) {
		return nil, fmt.Errorf("vector of %d value types exceeds remaining %d bytes", count, r.Len())
	}
	if count == 0 {
		return nil, nil
	}
	ret := make([]wasm.ValueType, count)
	for i := range ret {
		if ret[i], err = decodeValueType(r); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func encodeValueTypes(vt []wasm.ValueType) []byte {
	data := leb128.EncodeUint32(uint32(len(vt)))
	for _, t := range vt {
		data = append(data, byte(t))
	}
	return data
}

// decodeUTF8 decodes a size prefixed string from the reader, returning it and the count of bytes read.
// contextFormat and contextArgs apply an error format when present
func decodeUTF8(r *bytes.Reader, contextFormat string, contextArgs ...interface{}) (string, uint32, error) {
	size, sizeOfSize, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s size: %w", fmt.Sprintf(contextFormat, contextArgs...), err)
	}
	if int64(size) > int64(r.Len()) {
		return "", 0, fmt.Errorf("%s of size %d exceeds remaining %d bytes",
			fmt.Sprintf(contextFormat, contextArgs...), size, r.Len())
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", fmt.Sprintf(contextFormat, contextArgs...), err)
	}

	if !utf8.Valid(buf) {
		return "", 0, fmt.Errorf("%s is not valid UTF-8", fmt.Sprintf(contextFormat, contextArgs...))
	}

	return string(buf), size + uint32(sizeOfSize), nil
}

// encodeSizePrefixed encodes the data prefixed by its length in bytes.
func encodeSizePrefixed(data []byte) []byte {
	size := leb128.EncodeUint32(uint32(len(data)))
	return append(size, data...)
}
