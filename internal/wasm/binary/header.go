package binary

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Magic is the 4 byte preamble (literally "\0asm") of the binary format
// See https://www.w3.org/TR/wasm-core-1/#binary-magic
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// version is format version and doesn't change between known specification versions
// See https://www.w3.org/TR/wasm-core-1/#binary-version
var version = []byte{0x01, 0x00, 0x00, 0x00}

// ReadModuleHeader consumes the magic number and version. A header shorter than 8 bytes is an IO failure
// wrapping io.ErrUnexpectedEOF, like truncation inside a section.
func ReadModuleHeader(r io.Reader) error {
	buf := make([]byte, 4)
	if err := readHeaderField(r, buf, "magic number"); err != nil {
		return err
	}
	if !bytes.Equal(buf, Magic) {
		return ErrInvalidMagicNumber
	}

	if err := readHeaderField(r, buf, "version"); err != nil {
		return err
	}
	if !bytes.Equal(buf, version) {
		return fmt.Errorf("%w: %#x", ErrInvalidVersion, buf)
	}
	return nil
}

func readHeaderField(r io.Reader, buf []byte, field string) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %s: %w", field, err)
}
