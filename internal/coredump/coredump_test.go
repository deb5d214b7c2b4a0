package coredump

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/target"
)

type testNote struct {
	name string
	typ  uint32
	desc []byte
}

type testLoad struct {
	vaddr uint32
	data  []byte
}

func le32(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func encodeNotes(notes []testNote) []byte {
	var out []byte
	for _, n := range notes {
		name := append([]byte(n.name), 0)
		out = append(out, le32(uint32(len(name)), uint32(len(n.desc)), n.typ)...)
		out = append(out, pad4(name)...)
		out = append(out, pad4(append([]byte(nil), n.desc...))...)
	}
	return out
}

// buildELF assembles an ELF32 core image: header, program headers, then
// the note segment and load segments back to back.
func buildELF(notes []testNote, loads []testLoad) []byte {
	noteData := encodeNotes(notes)
	phnum := len(loads)
	if len(notes) > 0 {
		phnum++
	}
	dataOff := elfHeaderSize + phnum*progHeaderSize

	hdr := make([]byte, elfHeaderSize)
	copy(hdr, elfMagic)
	hdr[4] = classELF32
	hdr[5] = dataLittleEndian
	hdr[6] = 1
	binary.LittleEndian.PutUint16(hdr[16:], 4)  // ET_CORE
	binary.LittleEndian.PutUint16(hdr[18:], 94) // EM_XTENSA
	binary.LittleEndian.PutUint32(hdr[20:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], 0x40080000)
	binary.LittleEndian.PutUint32(hdr[28:], elfHeaderSize)
	binary.LittleEndian.PutUint16(hdr[40:], elfHeaderSize)
	binary.LittleEndian.PutUint16(hdr[42:], progHeaderSize)
	binary.LittleEndian.PutUint16(hdr[44:], uint16(phnum))
	binary.LittleEndian.PutUint16(hdr[46:], sectHeaderSize)

	var phs, body []byte
	off := uint32(dataOff)
	if len(notes) > 0 {
		phs = append(phs, le32(PTNote, off, 0, 0, uint32(len(noteData)), 0, 0, 4)...)
		body = append(body, noteData...)
		off += uint32(len(noteData))
	}
	for _, l := range loads {
		phs = append(phs, le32(PTLoad, off, l.vaddr, l.vaddr, uint32(len(l.data)), uint32(len(l.data)), 6, 4)...)
		body = append(body, l.data...)
		off += uint32(len(l.data))
	}

	out := append(hdr, phs...)
	return append(out, body...)
}

func coreDesc(tcb, top, end, size uint32, regs ...uint32) []byte {
	return append(le32(tcb, top, end, size), le32(regs...)...)
}

func TestParseELFHeaderByteExact(t *testing.T) {
	buf := buildELF(nil, []testLoad{{vaddr: 0x3ffb0000, data: make([]byte, 16)}})

	d, err := Parse(buf, target.Xtensa)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Format != FormatELF || d.ELFOffset != 0 {
		t.Fatalf("format = %s at %d, want elf at 0", d.Format, d.ELFOffset)
	}
	h := d.Header
	if string(h.Ident[:4]) != "\x7fELF" {
		t.Errorf("magic = % x", h.Ident[:4])
	}
	if h.Class != 1 || h.Data != 1 || h.Version != 1 {
		t.Errorf("class/data/version = %d/%d/%d", h.Class, h.Data, h.Version)
	}
	if h.Type != 4 || h.Machine != 94 {
		t.Errorf("type/machine = %d/%d", h.Type, h.Machine)
	}
	if h.Entry != 0x40080000 {
		t.Errorf("entry = 0x%x", h.Entry)
	}
	if h.PhOff != 52 || h.PhEntSize != 32 || h.PhNum != 1 {
		t.Errorf("phoff/phentsize/phnum = %d/%d/%d", h.PhOff, h.PhEntSize, h.PhNum)
	}
	if h.ShNum != 0 || h.ShEntSize != 40 {
		t.Errorf("shnum/shentsize = %d/%d", h.ShNum, h.ShEntSize)
	}
	if len(d.Segments) != 1 || d.Segments[0].Addr != 0x3ffb0000 || d.Segments[0].Kind != crash.SegmentLoad {
		t.Errorf("segments = %+v", d.Segments)
	}
}

func TestParseELFRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		patch func([]byte)
	}{
		{"elf64", func(b []byte) { b[4] = 2 }},
		{"big endian", func(b []byte) { b[5] = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := buildELF(nil, nil)
			tt.patch(buf)
			_, err := Parse(buf, target.Xtensa)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %v", err)
			}
		})
	}
}

func TestParseELFCoreNotes(t *testing.T) {
	regs := make([]uint32, len(target.XtensaRegisters))
	for i := range regs {
		regs[i] = uint32(0x100 + i)
	}
	regs[0] = 0x400d129d // PC
	regs[3] = 0x3ffb1f00 // A1

	notes := []testNote{
		// odd name length exercises name padding
		{name: "CORE", typ: 1, desc: coreDesc(0x3ffb2270, 0x3ffb1e00, 0x3ffb2200, 0x15c, regs...)},
		{name: "ESP_CORE_DUMP_INFO", typ: 0x2000, desc: []byte{1, 2, 3}},
		{name: "CORE", typ: 1, desc: coreDesc(0, 0, 0, 0, 1, 2)},
		{name: "CORE", typ: 1, desc: coreDesc(0x3ffb3000, 0x3ffb2f00, 0x3ffb3000, 0x15c)},
	}
	stack := make([]byte, 0x400)
	buf := buildELF(notes, []testLoad{{vaddr: 0x3ffb1e00, data: stack}})

	d, err := Parse(buf, target.Xtensa)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(d.Notes) != 4 {
		t.Fatalf("expected 4 notes, got %d", len(d.Notes))
	}
	if d.Notes[1].Name != "ESP_CORE_DUMP_INFO" || len(d.Notes[1].Desc) != 3 {
		t.Errorf("note 1 = %q (%d bytes)", d.Notes[1].Name, len(d.Notes[1].Desc))
	}
	if len(d.Tasks) != 2 {
		t.Fatalf("expected 2 tasks (all-zero header skipped), got %d", len(d.Tasks))
	}

	first := d.Tasks[0]
	if first.TCB != 0x3ffb2270 || first.TCBSize != 0x15c || !first.HasRegisters {
		t.Errorf("task 0 = %+v", first)
	}
	if pc, _ := first.Registers.Get("PC"); pc != 0x400d129d {
		t.Errorf("PC = 0x%x", pc)
	}
	if len(first.Registers) != len(target.XtensaRegisters) {
		t.Errorf("expected %d registers, got %d", len(target.XtensaRegisters), len(first.Registers))
	}
	if d.Tasks[1].HasRegisters {
		t.Error("header-only note should not carry registers")
	}

	seg, ok := d.StackOf(first)
	if !ok || seg.Addr != 0x3ffb1e00 {
		t.Errorf("StackOf = %+v, %v", seg, ok)
	}
	if _, ok := d.StackOf(d.Tasks[1]); ok {
		t.Error("task outside every segment should have no stack")
	}
}

func TestParseELFBehindLengthPrefix(t *testing.T) {
	image := buildELF(nil, []testLoad{{vaddr: 0x3ffb0000, data: []byte{1, 2, 3, 4}}})
	for _, prefix := range []int{4, 20, 64} {
		buf := append(make([]byte, prefix), image...)
		binary.LittleEndian.PutUint32(buf, uint32(len(image)))
		buf = append(buf, 0xde, 0xad, 0xbe, 0xef)

		d, err := Parse(buf, target.Xtensa)
		if err != nil {
			t.Fatalf("prefix %d: %v", prefix, err)
		}
		if d.ELFOffset != prefix {
			t.Errorf("prefix %d: ELFOffset = %d", prefix, d.ELFOffset)
		}
		elf, err := d.EmbeddedELF()
		if err != nil {
			t.Fatalf("prefix %d: EmbeddedELF: %v", prefix, err)
		}
		if len(elf) != len(image) {
			t.Errorf("prefix %d: embedded ELF is %d bytes, want %d", prefix, len(elf), len(image))
		}
	}
}

func TestParseELFTruncated(t *testing.T) {
	full := buildELF([]testNote{{name: "CORE", desc: coreDesc(1, 2, 3, 4)}},
		[]testLoad{{vaddr: 0x3ffb0000, data: make([]byte, 64)}})

	tests := []struct {
		name string
		n    int
	}{
		{"header", 40},
		{"program headers", elfHeaderSize + 10},
		{"load segment", len(full) - 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(full[:tt.n], target.Xtensa)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %v", err)
			}
			if fe.Have != tt.n {
				t.Errorf("Have = %d, want %d", fe.Have, tt.n)
			}
		})
	}
}

func TestParseNotesAlignment(t *testing.T) {
	data := encodeNotes([]testNote{
		{name: "AB", typ: 7, desc: []byte{0xaa}},
		{name: "CORE", typ: 1, desc: []byte{1, 2, 3, 4, 5, 6}},
	})
	notes, err := parseNotes(data, 0x100)
	if err != nil {
		t.Fatalf("parseNotes failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if notes[0].Name != "AB" || notes[0].Type != 7 || notes[0].Offset != 0x100+16 {
		t.Errorf("note 0 = %+v", notes[0])
	}
	if notes[1].Name != "CORE" || len(notes[1].Desc) != 6 {
		t.Errorf("note 1 = %+v", notes[1])
	}
	// 12 header + 4 name + 4 desc for the first record
	if notes[1].Offset != 0x100+20+12+8 {
		t.Errorf("note 1 offset = 0x%x", notes[1].Offset)
	}
}

func TestParseNotesOversized(t *testing.T) {
	data := le32(4, 0xffff, 1)
	data = append(data, 'C', 'O', 'R', 'E')
	_, err := parseNotes(data, 0)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
}

func flatImage(records ...[4]uint32) []byte {
	buf := le32(1, uint32(len(records)), 0x15c, 0x3ffb4000, 0x3ffb0000)
	for _, r := range records {
		buf = append(buf, le32(r[0], r[1], r[2], r[3])...)
	}
	return buf
}

func TestParseFlatTaskValidity(t *testing.T) {
	tests := []struct {
		name   string
		record [4]uint32
		keep   bool
	}{
		{"valid", [4]uint32{0x3ffb2270, 0x3ffb2200, 0x3ffb1e00, 0x15c}, true},
		{"zero tcb", [4]uint32{0, 0x3ffb2200, 0x3ffb1e00, 0x15c}, false},
		{"start outside data ram", [4]uint32{1, 0x40000000, 0x3ffb1e00, 0x15c}, false},
		{"end outside data ram", [4]uint32{1, 0x3ffb2200, 0x3f7fffff, 0x15c}, false},
		{"start equals end", [4]uint32{1, 0x3ffb2200, 0x3ffb2200, 0x15c}, false},
		{"start below end", [4]uint32{1, 0x3ffb1e00, 0x3ffb2200, 0x15c}, false},
		{"zero tcb size", [4]uint32{1, 0x3ffb2200, 0x3ffb1e00, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(flatImage(tt.record), target.Xtensa)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if d.Format != FormatFlat {
				t.Fatalf("format = %s", d.Format)
			}
			if got := len(d.Tasks) == 1; got != tt.keep {
				t.Errorf("kept = %v, want %v", got, tt.keep)
			}
		})
	}
}

func TestParseFlatAcceptedCountBounded(t *testing.T) {
	buf := flatImage(
		[4]uint32{0x3ffb2270, 0x3ffb2200, 0x3ffb1e00, 0x15c},
		[4]uint32{0, 0, 0, 0},
		[4]uint32{0x3ffb3000, 0x3ffb3400, 0x3ffb3000, 0x15c},
	)
	d, err := Parse(buf, target.Xtensa)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Flat.TaskCount != 3 || len(d.Tasks) != 2 {
		t.Errorf("task count %d, accepted %d", d.Flat.TaskCount, len(d.Tasks))
	}
	if d.Tasks[0].HasRegisters {
		t.Error("flat tasks carry no registers")
	}
	if _, err := d.EmbeddedELF(); err == nil {
		t.Error("flat dump should have no embedded ELF")
	}
}

func TestParseFlatLengthPrefix(t *testing.T) {
	image := flatImage([4]uint32{0x3ffb2270, 0x3ffb2200, 0x3ffb1e00, 0x15c})
	image = append(image, make([]byte, 0x1100)...)
	buf := append(le32(uint32(len(image))), image...)
	buf = append(buf, 0xff, 0xff)

	d, err := Parse(buf, target.Xtensa)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Flat.Version != 1 || d.Flat.TotalLength != len(image) {
		t.Errorf("header = %+v", d.Flat)
	}
	if len(d.Tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(d.Tasks))
	}
}

func TestParseFlatTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"short header", le32(1, 2, 3)},
		{"short task table", flatImage([4]uint32{1, 2, 3, 4})[:30]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.buf, target.Xtensa)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %v", err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(nil, target.Xtensa); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFindELFWindow(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		want   bool
	}{
		{"at start", 0, true},
		{"behind length prefix", 4, true},
		{"behind partition header", 20, true},
		{"last probed offset", maxELFScan, true},
		{"past the window", maxELFScan + 4, false},
		{"unaligned", 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 256)
			copy(buf[tt.offset:], elfMagic)
			off, ok := findELF(buf)
			if ok != tt.want || (ok && off != tt.offset) {
				t.Errorf("findELF() = %d, %v, want %d, %v", off, ok, tt.offset, tt.want)
			}
		})
	}
}
