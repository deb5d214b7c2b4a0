package decode

import (
	"regexp"
	"strings"

	"github.com/muurk/trbr/internal/crash"
)

// freeRTOSStackEnd marks the end of a FreeRTOS task stack.
const freeRTOSStackEnd = 0xfeefeffe

var drivePath = regexp.MustCompile(`^[a-zA-Z]:\\`)

// Normalize cleans a decode result in place: Windows path separators are
// restored, FreeRTOS end-of-stack and stack pointer frames are dropped, an
// unresolved zero fault address is removed and repeated frames collapse
// into one.
func Normalize(r *crash.DecodeResult) {
	if r == nil {
		return
	}
	for i := range r.Frames {
		fixWindowsPath(&r.Frames[i].Location)
	}
	if r.Fault != nil {
		fixWindowsPath(r.Fault.PC)
		fixWindowsPath(r.Fault.FaultAddr)
		if isNullFaultAddr(r.Fault.FaultAddr) {
			r.Fault.FaultAddr = nil
		}
	}
	if r.Alloc != nil {
		fixWindowsPath(&r.Alloc.Location)
	}
	r.Frames = dedupeFrames(dropStackPointers(dropFreeRTOSEnd(r.Frames)))
}

// fixWindowsPath turns gdb's forward slashes back into backslashes for
// paths that start with a drive letter.
func fixWindowsPath(loc *crash.Location) {
	if loc == nil || !drivePath.MatchString(loc.File) {
		return
	}
	loc.File = strings.ReplaceAll(loc.File, "/", `\`)
}

func dropFreeRTOSEnd(frames []crash.StackFrame) []crash.StackFrame {
	kept := frames[:0:0]
	for _, f := range frames {
		if f.HasAddr && f.Addr == freeRTOSStackEnd && f.Line == crash.UnknownLine {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// dropStackPointers removes unresolved 0x3xxxxxxx words that follow a
// resolved 0x4xxxxxxx frame. Those are saved stack pointers the scan
// picked up, not return addresses.
func dropStackPointers(frames []crash.StackFrame) []crash.StackFrame {
	kept := frames[:0:0]
	for i, f := range frames {
		if i > 0 {
			prev := frames[i-1]
			if prev.Parsed() && prev.HasAddr && prev.Addr>>28 == 0x4 &&
				f.Line == crash.UnknownLine && f.HasAddr && f.Addr>>28 == 0x3 {
				continue
			}
		}
		kept = append(kept, f)
	}
	return kept
}

func dedupeFrames(frames []crash.StackFrame) []crash.StackFrame {
	kept := frames[:0:0]
	for _, f := range frames {
		if n := len(kept); n > 0 && kept[n-1].Equal(f.Location) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func isNullFaultAddr(loc *crash.Location) bool {
	return loc != nil && loc.HasAddr && loc.Addr == 0 && loc.Line == crash.UnknownLine && !loc.Parsed()
}
