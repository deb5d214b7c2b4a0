// Package panictext extracts registers, fault information and stack data
// from the text an ESP chip prints when it crashes.
//
// Three dialects are recognised:
//
//   - RISC-V register dumps ("Core 0 register dump:" followed by
//     "NAME : 0xHEX" pairs and an optional "Stack memory:" hex dump)
//   - Xtensa "Guru Meditation" output with an inline "Backtrace:" line
//   - ESP8266 "Exception (N):" output with epcN= registers and a raw
//     stack dump
package panictext

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect identifies the shape of a panic text.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectRISCV
	DialectGuruMeditation
	DialectESP8266
)

func (d Dialect) String() string {
	switch d {
	case DialectRISCV:
		return "riscv"
	case DialectGuruMeditation:
		return "guru-meditation"
	case DialectESP8266:
		return "esp8266"
	default:
		return "unknown"
	}
}

var (
	// ErrNoRegisterDumps is returned when a RISC-V panic has no
	// "Core N register dump:" header.
	ErrNoRegisterDumps = errors.New("no register dumps found")

	// ErrMultiCoreDump is returned when more than one core dumped its
	// registers.
	ErrMultiCoreDump = errors.New("handling of multi-core register dumps is not implemented")
)

// StackDumpError is returned when the lines of a "Stack memory:" dump do
// not describe one contiguous block.
type StackDumpError struct {
	Line     int
	Expected uint32
	Got      uint32
}

func (e *StackDumpError) Error() string {
	return fmt.Sprintf("invalid base address on stack dump line %d: expected 0x%08x, got 0x%08x",
		e.Line, e.Expected, e.Got)
}

var (
	coreDumpHeader = regexp.MustCompile(`(?m)^Core\s+(\d+)\s+register dump:`)
	mepcToken      = regexp.MustCompile(`\bMEPC\s*:`)
	guruMarkers    = regexp.MustCompile(`(?m)Guru Meditation|^Backtrace:|EXCCAUSE`)
	esp8266Markers = regexp.MustCompile(`Exception\s+\(\d+\)|epc1=`)
	lineSplit      = regexp.MustCompile(`\r?\n|\r`)
)

// Detect guesses the dialect of text.
func Detect(text string) Dialect {
	switch {
	case coreDumpHeader.MatchString(text) && mepcToken.MatchString(text):
		return DialectRISCV
	case guruMarkers.MatchString(text):
		return DialectGuruMeditation
	case esp8266Markers.MatchString(text):
		return DialectESP8266
	default:
		return DialectUnknown
	}
}

func splitLines(text string) []string {
	return lineSplit.Split(text, -1)
}

func parseHex32(s string) (uint32, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
