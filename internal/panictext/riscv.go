package panictext

import (
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/target"
)

// RISCVPanic is a parsed RISC-V register dump.
type RISCVPanic struct {
	CoreID    int
	Registers crash.RegisterSet
	// FaultCode is MCAUSE
	FaultCode *int
	// FaultAddr is MTVAL
	FaultAddr *uint32
	// StackBase is the address of Stack[0]
	StackBase uint32
	Stack     []byte
}

var (
	riscvRegPair   = regexp.MustCompile(`([A-Z_0-9/]+)\s*:\s*(0x[0-9a-fA-F]+)`)
	riscvStackLine = regexp.MustCompile(`^([0-9a-fA-F]+):\s*((?:0x[0-9a-fA-F]+\s*)+)`)
)

type stackLine struct {
	base  uint32
	words []uint32
}

// ParseRISCV parses a RISC-V panic. Exactly one register dump is
// supported.
//
// Registers outside the ilp32 gdb register file and registers whose value
// is zero are dropped. MCAUSE and MTVAL become the fault code and fault
// address.
func ParseRISCV(text string) (*RISCVPanic, error) {
	var (
		dumps     int
		p         = &RISCVPanic{}
		raw       = map[string]uint32{}
		inDump    bool
		inStack   bool
		stackRows []stackLine
	)

	for _, line := range splitLines(text) {
		if strings.HasPrefix(line, "Core") {
			if m := coreDumpHeader.FindStringSubmatch(line); m != nil {
				dumps++
				if dumps == 1 {
					p.CoreID, _ = strconv.Atoi(m[1])
				}
				inDump = true
				inStack = false
			}
			continue
		}

		switch {
		case inDump && !inStack:
			for _, m := range riscvRegPair.FindAllStringSubmatch(line, -1) {
				name := m[1]
				v, ok := parseHex32(m[2])
				if !ok {
					continue
				}
				switch {
				case v != 0 && target.IsRISCVGDBRegister(name):
					if dumps == 1 {
						raw[name] = v
					}
				case name == "MCAUSE":
					code := int(v)
					p.FaultCode = &code
				case name == "MTVAL":
					addr := v
					p.FaultAddr = &addr
				}
			}
			if strings.TrimSpace(line) == "Stack memory:" {
				inStack = true
			}
		case inStack:
			m := riscvStackLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			base, ok := parseHex32(m[1])
			if !ok {
				continue
			}
			row := stackLine{base: base}
			for _, w := range strings.Fields(m[2]) {
				if v, ok := parseHex32(w); ok {
					row.words = append(row.words, v)
				}
			}
			if dumps == 1 {
				stackRows = append(stackRows, row)
			}
		}
	}

	if dumps == 0 {
		return nil, ErrNoRegisterDumps
	}
	if dumps > 1 {
		return nil, ErrMultiCoreDump
	}

	p.Registers = crash.NewRegisterSet(target.RISCVGDBRegisters, raw)
	base, data, err := joinStack(stackRows)
	if err != nil {
		return nil, err
	}
	p.StackBase = base
	p.Stack = data
	return p, nil
}

// joinStack concatenates dump rows into one buffer. Every word contributes
// its bytes in the order they are printed, most significant first.
func joinStack(rows []stackLine) (uint32, []byte, error) {
	if len(rows) == 0 {
		return 0, nil, nil
	}
	base := rows[0].base
	next := base
	var data []byte
	for i, row := range rows {
		if i > 0 && row.base != next {
			return 0, nil, &StackDumpError{Line: i + 1, Expected: next, Got: row.base}
		}
		for _, w := range row.words {
			data = binary.BigEndian.AppendUint32(data, w)
		}
		next = row.base + uint32(4*len(row.words))
	}
	return base, data, nil
}
