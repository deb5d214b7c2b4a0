package coredump

import (
	"bytes"
	"fmt"

	"fortio.org/safecast"
)

// ELF constants used by the reader.
const (
	elfHeaderSize    = 52
	progHeaderSize   = 32
	sectHeaderSize   = 40
	noteHeaderSize   = 12
	classELF32       = 1
	dataLittleEndian = 1

	PTLoad = 1
	PTNote = 4

	SHTNoBits = 8
	SHFAlloc  = 0x2
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// ELFHeader is the 52-byte ELF32 file header.
type ELFHeader struct {
	Ident     [16]byte
	Class     uint8
	Data      uint8
	Version   uint8
	OSABI     uint8
	Type      uint16
	Machine   uint16
	EVersion  uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// ProgramHeader is an ELF32 program header.
type ProgramHeader struct {
	Type     uint32
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Flags    uint32
	Align    uint32
}

// SectionHeader is an ELF32 section header with its resolved name.
type SectionHeader struct {
	Name      string
	NameIndex uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

// Note is one record of a PT_NOTE segment.
type Note struct {
	Name string
	Type uint32
	Desc []byte
	// Offset of Desc relative to the start of the ELF image
	Offset int
}

func parseELFHeader(r reader) (*ELFHeader, error) {
	if err := r.check("ELF header", 0, elfHeaderSize); err != nil {
		return nil, err
	}
	h := &ELFHeader{}
	copy(h.Ident[:], r.buf[:16])
	if !bytes.Equal(h.Ident[:4], elfMagic) {
		return nil, &FormatError{What: "ELF header", Err: fmt.Errorf("bad magic % x", h.Ident[:4])}
	}
	h.Class = h.Ident[4]
	h.Data = h.Ident[5]
	h.Version = h.Ident[6]
	h.OSABI = h.Ident[7]
	if h.Class != classELF32 {
		return nil, &FormatError{What: "ELF header", Err: fmt.Errorf("unsupported ELF class %d, want ELF32", h.Class)}
	}
	if h.Data != dataLittleEndian {
		return nil, &FormatError{What: "ELF header", Err: fmt.Errorf("unsupported byte order %d, want little-endian", h.Data)}
	}

	// Offsets are fixed by the ELF32 layout and covered by the check above.
	h.Type, _ = r.u16("e_type", 16)
	h.Machine, _ = r.u16("e_machine", 18)
	h.EVersion, _ = r.u32("e_version", 20)
	h.Entry, _ = r.u32("e_entry", 24)
	h.PhOff, _ = r.u32("e_phoff", 28)
	h.ShOff, _ = r.u32("e_shoff", 32)
	h.Flags, _ = r.u32("e_flags", 36)
	h.EhSize, _ = r.u16("e_ehsize", 40)
	h.PhEntSize, _ = r.u16("e_phentsize", 42)
	h.PhNum, _ = r.u16("e_phnum", 44)
	h.ShEntSize, _ = r.u16("e_shentsize", 46)
	h.ShNum, _ = r.u16("e_shnum", 48)
	h.ShStrNdx, _ = r.u16("e_shstrndx", 50)
	return h, nil
}

func parseProgramHeaders(r reader, h *ELFHeader) ([]ProgramHeader, error) {
	if h.PhNum == 0 {
		return nil, nil
	}
	if int(h.PhEntSize) < progHeaderSize {
		return nil, &FormatError{What: "program header table", Err: fmt.Errorf("entry size %d too small", h.PhEntSize)}
	}
	phoff, err := safecast.Conv[int](h.PhOff)
	if err != nil {
		return nil, &FormatError{What: "program header table", Err: err}
	}

	phs := make([]ProgramHeader, 0, h.PhNum)
	for i := 0; i < int(h.PhNum); i++ {
		off := phoff + i*int(h.PhEntSize)
		what := fmt.Sprintf("program header %d", i)
		if err := r.check(what, off, progHeaderSize); err != nil {
			return nil, err
		}
		var ph ProgramHeader
		if err := r.u32s(what, off, &ph.Type, &ph.Offset, &ph.VAddr, &ph.PAddr,
			&ph.FileSize, &ph.MemSize, &ph.Flags, &ph.Align); err != nil {
			return nil, err
		}
		phs = append(phs, ph)
	}
	return phs, nil
}

func parseSectionHeaders(r reader, h *ELFHeader) ([]SectionHeader, error) {
	if h.ShNum == 0 || h.ShOff == 0 {
		return nil, nil
	}
	if int(h.ShEntSize) < sectHeaderSize {
		return nil, &FormatError{What: "section header table", Err: fmt.Errorf("entry size %d too small", h.ShEntSize)}
	}
	shoff, err := safecast.Conv[int](h.ShOff)
	if err != nil {
		return nil, &FormatError{What: "section header table", Err: err}
	}

	shs := make([]SectionHeader, 0, h.ShNum)
	for i := 0; i < int(h.ShNum); i++ {
		off := shoff + i*int(h.ShEntSize)
		what := fmt.Sprintf("section header %d", i)
		if err := r.check(what, off, sectHeaderSize); err != nil {
			return nil, err
		}
		var sh SectionHeader
		if err := r.u32s(what, off, &sh.NameIndex, &sh.Type, &sh.Flags, &sh.Addr,
			&sh.Offset, &sh.Size, &sh.Link, &sh.Info, &sh.AddrAlign, &sh.EntSize); err != nil {
			return nil, err
		}
		shs = append(shs, sh)
	}

	if int(h.ShStrNdx) < len(shs) {
		strtab := shs[h.ShStrNdx]
		names, err := sectionBytes(r, strtab, "section name table")
		if err != nil {
			return nil, err
		}
		for i := range shs {
			shs[i].Name = cString(names, int(shs[i].NameIndex))
		}
	}
	return shs, nil
}

func sectionBytes(r reader, sh SectionHeader, what string) ([]byte, error) {
	off, err := safecast.Conv[int](sh.Offset)
	if err != nil {
		return nil, &FormatError{What: what, Err: err}
	}
	size, err := safecast.Conv[int](sh.Size)
	if err != nil {
		return nil, &FormatError{What: what, Err: err}
	}
	return r.bytes(what, off, size)
}

func segmentBytes(r reader, ph ProgramHeader, what string) ([]byte, error) {
	off, err := safecast.Conv[int](ph.Offset)
	if err != nil {
		return nil, &FormatError{What: what, Err: err}
	}
	size, err := safecast.Conv[int](ph.FileSize)
	if err != nil {
		return nil, &FormatError{What: what, Err: err}
	}
	return r.bytes(what, off, size)
}

// parseNotes walks (namesz, descsz, type, name, desc) records. Name and
// descriptor are each padded to a 4-byte boundary.
func parseNotes(data []byte, base int) ([]Note, error) {
	r := reader{buf: data}
	var notes []Note
	cursor := 0
	for cursor+noteHeaderSize <= len(data) {
		var namesz, descsz, typ uint32
		if err := r.u32s("note header", cursor, &namesz, &descsz, &typ); err != nil {
			return nil, err
		}
		if uint64(namesz) > uint64(len(data)) || uint64(descsz) > uint64(len(data)) {
			return nil, &FormatError{What: "note record", Offset: base + cursor, Need: int(namesz) + int(descsz), Have: len(data)}
		}
		nameOff := cursor + noteHeaderSize
		name, err := r.bytes("note name", nameOff, int(namesz))
		if err != nil {
			return nil, err
		}
		descOff := nameOff + align4(int(namesz))
		desc, err := r.bytes("note descriptor", descOff, int(descsz))
		if err != nil {
			return nil, err
		}
		notes = append(notes, Note{
			Name:   string(bytes.TrimRight(name, "\x00")),
			Type:   typ,
			Desc:   desc,
			Offset: base + descOff,
		})
		cursor = align4(descOff + int(descsz))
	}
	return notes, nil
}

func cString(b []byte, off int) string {
	if off < 0 || off >= len(b) {
		return ""
	}
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return string(b[off:])
	}
	return string(b[off : off+end])
}

// imageSize returns the furthest byte referenced by the headers.
func imageSize(h *ELFHeader, phs []ProgramHeader, shs []SectionHeader) uint64 {
	end := uint64(elfHeaderSize)
	end = max(end, uint64(h.PhOff)+uint64(h.PhNum)*uint64(h.PhEntSize))
	if h.ShNum > 0 {
		end = max(end, uint64(h.ShOff)+uint64(h.ShNum)*uint64(h.ShEntSize))
	}
	for _, ph := range phs {
		end = max(end, uint64(ph.Offset)+uint64(ph.FileSize))
	}
	for _, sh := range shs {
		if sh.Type != SHTNoBits {
			end = max(end, uint64(sh.Offset)+uint64(sh.Size))
		}
	}
	return end
}
