package binary

import (
	"errors"
	"fmt"

	"github.com/warthog-wasm/warthog/internal/wasm"
)

// All these satisfy errors.Is(err, wasm.ErrInvalidModule).
var (
	ErrInvalidMagicNumber = fmt.Errorf("%w: invalid magic number", wasm.ErrInvalidModule)
	ErrInvalidVersion     = fmt.Errorf("%w: invalid version header", wasm.ErrInvalidModule)
	ErrInvalidByte        = fmt.Errorf("%w: invalid byte", wasm.ErrInvalidModule)
	ErrInvalidSectionID   = fmt.Errorf("%w: invalid section id", wasm.ErrInvalidModule)
)

// malformed classifies an error raised while parsing a bounded section payload. Running out of payload bytes is
// the section's fault, not truncation of the stream, so everything here is an invalid module.
func malformed(err error) error {
	if errors.Is(err, wasm.ErrInvalidModule) {
		return err
	}
	return fmt.Errorf("%w: %v", wasm.ErrInvalidModule, err)
}
