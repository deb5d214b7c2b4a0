package crash

// SegmentKind tells where a memory segment came from.
type SegmentKind int

const (
	SegmentLoad    SegmentKind = iota // PT_LOAD program header
	SegmentSection                    // SHF_ALLOC section header
	SegmentStack                      // reconstructed stack memory
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLoad:
		return "load"
	case SegmentSection:
		return "section"
	case SegmentStack:
		return "stack"
	default:
		return "unknown"
	}
}

// MemorySegment is a block of target memory at a virtual address.
type MemorySegment struct {
	Addr  uint32
	Data  []byte
	Flags uint32
	Kind  SegmentKind
	Name  string
}

// End returns the first address past the segment.
func (s MemorySegment) End() uint64 {
	return uint64(s.Addr) + uint64(len(s.Data))
}

// Contains reports whether addr falls inside the segment.
func (s MemorySegment) Contains(addr uint32) bool {
	return addr >= s.Addr && uint64(addr) < s.End()
}

// FindSegment returns the first segment containing addr.
func FindSegment(segs []MemorySegment, addr uint32) (MemorySegment, bool) {
	for _, s := range segs {
		if s.Contains(addr) {
			return s, true
		}
	}
	return MemorySegment{}, false
}

// AddSegment appends seg unless a segment starting at the same address was
// already recorded.
func AddSegment(segs []MemorySegment, seg MemorySegment) []MemorySegment {
	for _, s := range segs {
		if s.Addr == seg.Addr {
			return segs
		}
	}
	return append(segs, seg)
}
