package coredump

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned when a buffer is neither ELF nor a plausible
// flat dump.
var ErrUnknownFormat = errors.New("unrecognized core dump format")

// FormatError reports a structural problem in a core dump image, typically
// a truncated buffer.
type FormatError struct {
	// What names the structure being read (e.g. "program header 2")
	What string
	// Offset is where the read started
	Offset int
	// Need is the number of bytes required at Offset
	Need int
	// Have is the buffer length
	Have int
	// Underlying error if any
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed core dump: %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("malformed core dump: %s truncated (need %d bytes at offset 0x%x, buffer is %d bytes)",
		e.What, e.Need, e.Offset, e.Have)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
