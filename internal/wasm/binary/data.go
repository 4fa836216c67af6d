package binary

import (
	"bytes"
	"fmt"
	"io"

	"github.com/warthog-wasm/warthog/internal/leb128"
	"github.com/warthog-wasm/warthog/internal/wasm"
)

func decodeDataSegment(r *bytes.Reader) (*wasm.DataSegment, error) {
	d, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read memory index: %w", err)
	}

	expr, err := decodeExpr(r)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %w", err)
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of vector: %w", err)
	}
	if int64(vs) > int64(r.Len()) {
		return nil, fmt.Errorf("data of size %d exceeds remaining %d bytes", vs, r.Len())
	}

	b := make([]byte, vs)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read bytes for init: %w", err)
	}

	return &wasm.DataSegment{
		MemoryIndex:      d,
		OffsetExpression: expr,
		Init:             b,
	}, nil
}

func encodeDataSegment(d *wasm.DataSegment) []byte {
	data := leb128.EncodeUint32(d.MemoryIndex)
	data = append(data, encodeExpr(d.OffsetExpression)...)
	return append(data, encodeSizePrefixed(d.Init)...)
}
