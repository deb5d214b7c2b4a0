package crash

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownLine is the placeholder used when an address cannot be attributed
// to a source line.
const UnknownLine = "??"

// Location is an address together with whatever the debugger could tell us
// about it. Three shapes exist:
//
//   - bare address: only Addr is set
//   - address + line or marker: Line is set, Method and File are empty
//   - fully parsed: Method and File are set
type Location struct {
	Addr    uint32     `yaml:"addr" msgpack:"addr"`
	HasAddr bool       `yaml:"-" msgpack:"has_addr"`
	Line    string     `yaml:"line,omitempty" msgpack:"line,omitempty"`
	Method  string     `yaml:"method,omitempty" msgpack:"method,omitempty"`
	File    string     `yaml:"file,omitempty" msgpack:"file,omitempty"`
	Args    []Variable `yaml:"args,omitempty" msgpack:"args,omitempty"`
}

// NewAddr returns a bare address location.
func NewAddr(addr uint32) Location {
	return Location{Addr: addr, HasAddr: true}
}

// Unresolved returns the "??" placeholder location for addr.
func Unresolved(addr uint32) Location {
	return Location{Addr: addr, HasAddr: true, Line: UnknownLine}
}

// RegAddr renders the address as 0x%08x.
func (l Location) RegAddr() string {
	return fmt.Sprintf("0x%08x", l.Addr)
}

// Parsed reports whether the location carries a method and a file.
func (l Location) Parsed() bool {
	return l.Method != "" && l.File != ""
}

// HasLine reports whether the location carries a line number or marker.
func (l Location) HasLine() bool {
	return l.Line != ""
}

// Resolved reports whether the location carries more than "??".
func (l Location) Resolved() bool {
	return l.Parsed() || (l.Line != "" && l.Line != UnknownLine)
}

// Equal compares two locations the way frame deduplication needs:
// parsed locations compare address, line, file and method; the others
// compare address and line.
func (l Location) Equal(o Location) bool {
	if l.Parsed() != o.Parsed() {
		return false
	}
	if l.Addr != o.Addr || l.Line != o.Line {
		return false
	}
	if l.Parsed() {
		return l.File == o.File && l.Method == o.Method
	}
	return true
}

// String renders the location for logs.
func (l Location) String() string {
	switch {
	case l.Parsed():
		return fmt.Sprintf("%s in %s at %s:%s", l.RegAddr(), l.Method, l.File, l.Line)
	case l.HasLine():
		return fmt.Sprintf("%s in %s", l.RegAddr(), l.Line)
	default:
		return l.RegAddr() + " in ?? ()"
	}
}

// ParseAddr parses "0x1234abcd" or "1234abcd".
func ParseAddr(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

// Variable is a frame argument, a local, or a global symbol. Children are
// populated only for expanded compound values.
type Variable struct {
	Name     string     `yaml:"name" msgpack:"name"`
	Type     string     `yaml:"type,omitempty" msgpack:"type,omitempty"`
	Value    string     `yaml:"value,omitempty" msgpack:"value,omitempty"`
	Address  string     `yaml:"address,omitempty" msgpack:"address,omitempty"`
	Scope    string     `yaml:"scope,omitempty" msgpack:"scope,omitempty"`
	Children []Variable `yaml:"children,omitempty" msgpack:"children,omitempty"`
}

// FaultInfo describes the exception that stopped the core.
type FaultInfo struct {
	CoreID    int       `yaml:"core_id" msgpack:"core_id"`
	PC        *Location `yaml:"pc,omitempty" msgpack:"pc,omitempty"`
	FaultAddr *Location `yaml:"fault_addr,omitempty" msgpack:"fault_addr,omitempty"`
	FaultCode *int      `yaml:"fault_code,omitempty" msgpack:"fault_code,omitempty"`
	Message   string    `yaml:"message,omitempty" msgpack:"message,omitempty"`
}

// StackFrame is one backtrace entry.
type StackFrame struct {
	Location `yaml:",inline" msgpack:",inline"`
	Locals   []Variable `yaml:"locals,omitempty" msgpack:"locals,omitempty"`
}

// AllocInfo describes a failed heap allocation.
type AllocInfo struct {
	Location Location `yaml:"location" msgpack:"location"`
	Size     uint32   `yaml:"size" msgpack:"size"`
}

// DecodeResult is the normalized outcome of decoding one panic or one
// core-dump thread.
type DecodeResult struct {
	Fault     *FaultInfo   `yaml:"fault,omitempty" msgpack:"fault,omitempty"`
	Registers RegisterSet  `yaml:"registers,omitempty" msgpack:"registers,omitempty"`
	Frames    []StackFrame `yaml:"frames" msgpack:"frames"`
	Alloc     *AllocInfo   `yaml:"alloc,omitempty" msgpack:"alloc,omitempty"`
	Globals   []Variable   `yaml:"globals,omitempty" msgpack:"globals,omitempty"`
}

// ThreadResult is the decode result of one core-dump thread.
type ThreadResult struct {
	ThreadID string       `yaml:"thread_id" msgpack:"thread_id"`
	TCB      uint32       `yaml:"tcb" msgpack:"tcb"`
	Current  bool         `yaml:"current" msgpack:"current"`
	Result   DecodeResult `yaml:"result" msgpack:"result"`
}

// OverviewRow is one line of the synthesized threads overview.
type OverviewRow struct {
	Current  bool      `yaml:"current" msgpack:"current"`
	ThreadID string    `yaml:"thread_id" msgpack:"thread_id"`
	TCB      uint32    `yaml:"tcb" msgpack:"tcb"`
	Top      *Location `yaml:"top,omitempty" msgpack:"top,omitempty"`
}

// CoreDumpResult holds every decoded thread of a core dump.
type CoreDumpResult struct {
	Threads  []ThreadResult `yaml:"threads" msgpack:"threads"`
	Overview []OverviewRow  `yaml:"overview" msgpack:"overview"`
}

// CoreDumpTask is one thread recorded in a core dump.
type CoreDumpTask struct {
	TCB          uint32
	StackStart   uint32
	StackEnd     uint32
	TCBSize      uint32
	Registers    RegisterSet
	HasRegisters bool
}

// StackBounds returns the task stack as a [lo, hi) range regardless of the
// order the dump stored the bounds in.
func (t CoreDumpTask) StackBounds() (lo, hi uint32) {
	if t.StackStart < t.StackEnd {
		return t.StackStart, t.StackEnd
	}
	return t.StackEnd, t.StackStart
}
