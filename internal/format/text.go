// Package format renders decode results as plain text.
package format

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/muurk/trbr/internal/crash"
)

const rule = "===================="

// Text writes the fault, the program counter and fault address, the frames
// and the failed allocation of r.
func Text(w io.Writer, r *crash.DecodeResult) error {
	if r == nil {
		return nil
	}
	var b strings.Builder
	writeResult(&b, r)
	_, err := io.WriteString(w, b.String())
	return err
}

// CoreDump writes the threads overview followed by every thread.
func CoreDump(w io.Writer, r *crash.CoreDumpResult) error {
	if r == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s THREADS INFO %s\n", rule, rule)
	fmt.Fprintf(&b, "  %s%s%s\n", pad("ID", 4), pad("Target ID", 20), "Frame")
	for _, row := range r.Overview {
		b.WriteString(OverviewRow(row))
		b.WriteByte('\n')
	}
	for _, t := range r.Threads {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s THREAD %s (TCB: 0x%08x) %s\n", rule, t.ThreadID, t.TCB, rule)
		b.WriteByte('\n')
		writeResult(&b, &t.Result)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// OverviewRow renders one THREADS INFO line: the current marker, the
// thread id, the TCB as gdb's process id and the innermost frame.
func OverviewRow(row crash.OverviewRow) string {
	marker := " "
	if row.Current {
		marker = "*"
	}
	top := ""
	if row.Top != nil {
		top = Location(*row.Top)
	}
	return "  " + marker + pad(row.ThreadID, 3) + "process " + pad(strconv.FormatUint(uint64(row.TCB), 10), 12) + top
}

func writeResult(b *strings.Builder, r *crash.DecodeResult) {
	if f := r.Fault; f != nil {
		if f.FaultCode != nil {
			fmt.Fprintf(b, "%s\n\n", FaultLine(f))
		}
		if f.PC != nil {
			fmt.Fprintf(b, "PC -> %s\n", Location(*f.PC))
		}
		if f.FaultAddr != nil {
			fmt.Fprintf(b, "Fault -> %s\n", Location(*f.FaultAddr))
		}
		if f.PC != nil || f.FaultAddr != nil {
			b.WriteByte('\n')
		}
	}
	for _, frame := range r.Frames {
		b.WriteString(Location(frame.Location))
		b.WriteByte('\n')
	}
	if a := r.Alloc; a != nil {
		fmt.Fprintf(b, "\nMemory allocation of %d bytes failed at %s\n", a.Size, Location(a.Location))
	}
}

// FaultLine renders "<core> | <message> | <code>". The message segment is
// left out for codes outside the tables.
func FaultLine(f *crash.FaultInfo) string {
	line := strconv.Itoa(f.CoreID)
	if f.Message != "" {
		line += " | " + f.Message
	}
	if f.FaultCode != nil {
		line += " | " + strconv.Itoa(*f.FaultCode)
	}
	return line
}

// Location renders a parsed location as
// "0xADDR: method (args) at file:line" and anything else as
// "0xADDR: line". Locations without an address drop the prefix.
func Location(l crash.Location) string {
	var body string
	switch {
	case l.Parsed():
		body = fmt.Sprintf("%s (%s) at %s:%s", l.Method, Args(l.Args), l.File, l.Line)
	case l.HasLine():
		body = l.Line
	default:
		body = crash.UnknownLine
	}
	if !l.HasAddr {
		return body
	}
	return l.RegAddr() + ": " + body
}

// Args renders frame arguments as "a=1, b".
func Args(args []crash.Variable) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		name := a.Name
		if name == "" {
			name = a.Type
		}
		if a.Value != "" {
			parts = append(parts, name+"="+a.Value)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// pad left-aligns s in a column of width cells.
func pad(s string, width int) string {
	if runewidth.StringWidth(s) >= width {
		return s
	}
	return runewidth.FillRight(s, width)
}
