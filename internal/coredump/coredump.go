package coredump

import (
	"bytes"
	"fmt"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/target"
)

// Format identifies the layout of a core dump image.
type Format int

const (
	FormatELF Format = iota
	FormatFlat
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatFlat:
		return "flat"
	default:
		return "unknown"
	}
}

const (
	// maxELFScan is the last offset probed for an ELF magic behind a
	// length-prefixed wrapper. Anything further in parses as a flat dump.
	maxELFScan = 64

	flatHeaderSize = 20
	flatTaskSize   = 16
	// flatLengthPrefixMin is the smallest first word treated as an image
	// length rather than a header version.
	flatLengthPrefixMin = 0x1000

	coreNoteName    = "CORE"
	coreNoteMinDesc = 16
)

// FlatHeader is the 20-byte header of a legacy flat dump.
type FlatHeader struct {
	Version     uint32
	TaskCount   uint32
	TCBSize     uint32
	StackTop    uint32
	StackBottom uint32
	// Length of the image after an optional length prefix was removed
	TotalLength int
}

// Dump is a parsed core dump image.
type Dump struct {
	Format Format
	// Arch decides the register order of CORE notes.
	Arch target.Arch

	// ELF images only
	ELFOffset int
	Header    *ELFHeader
	Programs  []ProgramHeader
	Sections  []SectionHeader
	Notes     []Note

	// Flat images only
	Flat *FlatHeader

	Tasks    []crash.CoreDumpTask
	Segments []crash.MemorySegment

	raw []byte
}

// Parse detects the layout of buf and decodes it. ELF is tried first: at
// offset 0, then every 4 bytes up to offset 64. Anything else is read as a
// flat dump.
func Parse(buf []byte, arch target.Arch) (*Dump, error) {
	if len(buf) == 0 {
		return nil, ErrUnknownFormat
	}
	if off, ok := findELF(buf); ok {
		return parseELF(buf, off, arch)
	}
	return parseFlat(buf, arch)
}

func findELF(buf []byte) (int, bool) {
	for off := 0; off <= maxELFScan; off += 4 {
		if off+len(elfMagic) > len(buf) {
			break
		}
		if bytes.Equal(buf[off:off+len(elfMagic)], elfMagic) {
			return off, true
		}
	}
	return 0, false
}

func parseELF(buf []byte, off int, arch target.Arch) (*Dump, error) {
	image := buf[off:]
	r := reader{buf: image}

	h, err := parseELFHeader(r)
	if err != nil {
		return nil, err
	}
	phs, err := parseProgramHeaders(r, h)
	if err != nil {
		return nil, err
	}
	shs, err := parseSectionHeaders(r, h)
	if err != nil {
		return nil, err
	}

	d := &Dump{
		Format:    FormatELF,
		Arch:      arch,
		ELFOffset: off,
		Header:    h,
		Programs:  phs,
		Sections:  shs,
		raw:       buf,
	}

	for i, ph := range phs {
		switch ph.Type {
		case PTNote:
			data, err := segmentBytes(r, ph, fmt.Sprintf("note segment %d", i))
			if err != nil {
				return nil, err
			}
			notes, err := parseNotes(data, int(ph.Offset))
			if err != nil {
				return nil, err
			}
			d.Notes = append(d.Notes, notes...)
		case PTLoad:
			if ph.FileSize == 0 {
				continue
			}
			data, err := segmentBytes(r, ph, fmt.Sprintf("load segment %d", i))
			if err != nil {
				return nil, err
			}
			d.Segments = crash.AddSegment(d.Segments, crash.MemorySegment{
				Addr:  ph.VAddr,
				Data:  data,
				Flags: ph.Flags,
				Kind:  crash.SegmentLoad,
			})
		}
	}

	for _, sh := range shs {
		if sh.Flags&SHFAlloc == 0 || sh.Type == SHTNoBits || sh.Size == 0 {
			continue
		}
		data, err := sectionBytes(r, sh, "section "+sh.Name)
		if err != nil {
			return nil, err
		}
		d.Segments = crash.AddSegment(d.Segments, crash.MemorySegment{
			Addr:  sh.Addr,
			Data:  data,
			Flags: sh.Flags,
			Kind:  crash.SegmentSection,
			Name:  sh.Name,
		})
	}

	d.Tasks = coreTasks(d.Notes, arch.CoreRegisters())
	return d, nil
}

// coreTasks turns CORE notes into tasks. The descriptor holds tcb,
// stack top, stack end and tcb size followed by registers in core order.
func coreTasks(notes []Note, regNames []string) []crash.CoreDumpTask {
	var tasks []crash.CoreDumpTask
	for _, n := range notes {
		if n.Name != coreNoteName || len(n.Desc) < coreNoteMinDesc {
			continue
		}
		r := reader{buf: n.Desc}
		var t crash.CoreDumpTask
		// Length checked above.
		_ = r.u32s("task header", 0, &t.TCB, &t.StackStart, &t.StackEnd, &t.TCBSize)
		if t.TCB == 0 && t.StackStart == 0 && t.StackEnd == 0 && t.TCBSize == 0 {
			continue
		}

		count := min((len(n.Desc)-coreNoteMinDesc)/4, len(regNames))
		raw := make(map[string]uint32, count)
		for i := 0; i < count; i++ {
			v, _ := r.u32("register", coreNoteMinDesc+4*i)
			raw[regNames[i]] = v
		}
		t.Registers = crash.NewRegisterSet(regNames, raw)
		t.HasRegisters = count > 0
		tasks = append(tasks, t)
	}
	return tasks
}

func parseFlat(buf []byte, arch target.Arch) (*Dump, error) {
	if len(buf) >= 4 {
		n, _ := reader{buf: buf}.u32("image length", 0)
		if n > flatLengthPrefixMin && uint64(n)+4 <= uint64(len(buf)) {
			buf = buf[4 : 4+int(n)]
		}
	}

	r := reader{buf: buf}
	if err := r.check("flat header", 0, flatHeaderSize); err != nil {
		return nil, err
	}
	h := &FlatHeader{TotalLength: len(buf)}
	_ = r.u32s("flat header", 0, &h.Version, &h.TaskCount, &h.TCBSize, &h.StackTop, &h.StackBottom)

	need := uint64(flatHeaderSize) + uint64(h.TaskCount)*flatTaskSize
	if need > uint64(len(buf)) {
		return nil, &FormatError{
			What:   fmt.Sprintf("task table (%d tasks)", h.TaskCount),
			Offset: flatHeaderSize,
			Need:   int(need - flatHeaderSize),
			Have:   len(buf),
		}
	}

	d := &Dump{Format: FormatFlat, Arch: arch, Flat: h, raw: buf}
	for i := 0; i < int(h.TaskCount); i++ {
		off := flatHeaderSize + i*flatTaskSize
		var t crash.CoreDumpTask
		if err := r.u32s(fmt.Sprintf("task record %d", i), off,
			&t.TCB, &t.StackStart, &t.StackEnd, &t.TCBSize); err != nil {
			return nil, err
		}
		if !validFlatTask(t) {
			continue
		}
		d.Tasks = append(d.Tasks, t)
	}
	return d, nil
}

// validFlatTask reports whether a flat task record describes a plausible
// stack: non-zero tcb, both bounds in data RAM, a downward-growing stack
// and a non-zero tcb size.
func validFlatTask(t crash.CoreDumpTask) bool {
	return t.TCB != 0 &&
		target.IsDataAddr(t.StackStart) &&
		target.IsDataAddr(t.StackEnd) &&
		t.StackStart > t.StackEnd &&
		t.TCBSize != 0
}

// EmbeddedELF returns the ELF image inside the dump, from ELFOffset up to
// the furthest byte referenced by its headers.
func (d *Dump) EmbeddedELF() ([]byte, error) {
	if d.Format != FormatELF {
		return nil, fmt.Errorf("%s core dump has no embedded ELF image", d.Format)
	}
	size := imageSize(d.Header, d.Programs, d.Sections)
	have := len(d.raw) - d.ELFOffset
	if size > uint64(have) {
		return nil, &FormatError{What: "embedded ELF image", Offset: d.ELFOffset, Need: int(min(size, uint64(^uint32(0)))), Have: len(d.raw)}
	}
	return d.raw[d.ELFOffset : d.ELFOffset+int(size)], nil
}

// StackOf returns the memory segment holding the task's stack. The lower
// stack bound is looked up first, then the stack pointer when the task
// carries registers.
func (d *Dump) StackOf(t crash.CoreDumpTask) (crash.MemorySegment, bool) {
	lo, _ := t.StackBounds()
	if seg, ok := crash.FindSegment(d.Segments, lo); ok {
		return seg, true
	}
	if t.HasRegisters {
		if sp, ok := t.Registers.Get(d.Arch.StackPointer()); ok {
			return crash.FindSegment(d.Segments, sp)
		}
	}
	return crash.MemorySegment{}, false
}
