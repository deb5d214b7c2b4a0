// Package stackscan guesses return addresses from raw stack memory.
//
// The scan over-approximates: any aligned word that looks like code is a
// candidate. Callers resolve the candidates and treat unresolved ones as
// "??" frames.
package stackscan

import (
	"encoding/binary"

	"github.com/muurk/trbr/internal/target"
)

// Lookback is how far below the stack pointer the scan starts, to catch
// the return address of the frame that faulted.
const Lookback = 32

// IsCode reports whether a word could be an instruction address.
type IsCode func(addr uint32) bool

// DefaultCode accepts the ESP32 instruction address window.
var DefaultCode IsCode = target.IsCodeAddr

// CodeRange accepts addresses in [lo, hi].
func CodeRange(lo, hi uint32) IsCode {
	return func(addr uint32) bool {
		return addr >= lo && addr <= hi
	}
}

// And combines predicates; every one must accept the address.
func And(preds ...IsCode) IsCode {
	return func(addr uint32) bool {
		for _, p := range preds {
			if p != nil && !p(addr) {
				return false
			}
		}
		return true
	}
}

// Scan walks memory, which holds the bytes of [rangeStart, rangeEnd), from
// max(rangeStart, sp-Lookback) to the end of the buffer and returns every
// little-endian word accepted by isCode. A word equal to the previously
// kept one is skipped.
//
// An empty range or a stack pointer outside the range yields an empty
// slice.
func Scan(memory []byte, sp, rangeStart, rangeEnd uint32, isCode IsCode) []uint32 {
	addrs := []uint32{}
	if rangeEnd <= rangeStart || sp < rangeStart || sp >= rangeEnd {
		return addrs
	}
	if isCode == nil {
		isCode = DefaultCode
	}

	start := rangeStart
	if sp-rangeStart > Lookback {
		start = sp - Lookback
	}
	off := int(start - rangeStart)
	off &^= 3

	for ; off+4 <= len(memory); off += 4 {
		w := binary.LittleEndian.Uint32(memory[off:])
		if !isCode(w) {
			continue
		}
		if n := len(addrs); n > 0 && addrs[n-1] == w {
			continue
		}
		addrs = append(addrs, w)
	}
	return addrs
}
