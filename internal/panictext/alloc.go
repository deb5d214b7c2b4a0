package panictext

import (
	"regexp"
	"strconv"
	"strings"
)

// AllocFailure is a failed heap allocation reported before the panic.
type AllocFailure struct {
	Size    uint32
	Addr    uint32
	HasAddr bool
}

var allocFailed = regexp.MustCompile(`(?i)memory allocation of (\d+) bytes failed(?:\s+at\s+(0x[0-9a-fA-F]+))?`)

// ParseAllocFailure finds a "memory allocation of N bytes failed" line.
// Without an explicit "at 0xADDR" suffix the first backtrace address is
// used as the allocation site.
func ParseAllocFailure(text string) *AllocFailure {
	m := allocFailed.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	size, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return nil
	}
	a := &AllocFailure{Size: uint32(size)}
	if m[2] != "" {
		a.Addr, a.HasAddr = parseHex32(m[2])
		return a
	}
	for _, line := range splitLines(text) {
		if !strings.HasPrefix(line, "Backtrace:") {
			continue
		}
		if w := backtraceWord.FindString(line); w != "" {
			a.Addr, a.HasAddr = parseHex32(w)
		}
		break
	}
	return a
}
