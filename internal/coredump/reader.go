package coredump

import (
	"encoding/binary"
	"fmt"
)

// reader is a bounds-checked little-endian view over a byte slice. Every
// accessor names what it is reading so truncation errors are actionable.
type reader struct {
	buf []byte
}

func (r reader) check(what string, off, n int) error {
	if off < 0 || n < 0 || off > len(r.buf) || len(r.buf)-off < n {
		return &FormatError{What: what, Offset: off, Need: n, Have: len(r.buf)}
	}
	return nil
}

func (r reader) u16(what string, off int) (uint16, error) {
	if err := r.check(what, off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[off:]), nil
}

func (r reader) u32(what string, off int) (uint32, error) {
	if err := r.check(what, off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[off:]), nil
}

func (r reader) bytes(what string, off, n int) ([]byte, error) {
	if err := r.check(what, off, n); err != nil {
		return nil, err
	}
	return r.buf[off : off+n], nil
}

// u32s reads consecutive words into dst in order, stopping at the first
// error.
func (r reader) u32s(what string, off int, dst ...*uint32) error {
	for i, d := range dst {
		v, err := r.u32(fmt.Sprintf("%s word %d", what, i), off+4*i)
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
