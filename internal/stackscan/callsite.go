package stackscan

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/arch/riscv64/riscv64asm"
)

// TextSections are the firmware sections searched for call sites.
var TextSections = []string{".text", ".flash.text", ".iram0.text"}

// CallSiteFilter accepts a candidate return address only when the
// instruction right before it is a linking call: a 4-byte JAL or JALR with
// a non-zero rd ending at the address, or a 2-byte C.JAL or C.JALR. text
// holds the code at base.
func CallSiteFilter(text []byte, base uint32) IsCode {
	end := uint64(base) + uint64(len(text))
	return func(ra uint32) bool {
		if ra < base || uint64(ra) > end {
			return false
		}
		off := int(ra - base)
		if off >= 4 {
			inst, err := riscv64asm.Decode(text[off-4 : off])
			if err == nil && inst.Len == 4 && (inst.Op == riscv64asm.JAL || inst.Op == riscv64asm.JALR) &&
				inst.Args[0] != riscv64asm.X0 {
				return true
			}
		}
		if off >= 2 {
			// c.jal only exists in RV32C; the RV64 decoder reads it as c.addiw
			if isCJAL(binary.LittleEndian.Uint16(text[off-2 : off])) {
				return true
			}
			inst, err := riscv64asm.Decode(text[off-2 : off])
			if err == nil && inst.Len == 2 && inst.Op == riscv64asm.C_JALR {
				return true
			}
		}
		return false
	}
}

func isCJAL(h uint16) bool {
	return h&0xe003 == 0x2001
}

// LoadCallSites reads the code sections of a RISC-V firmware ELF and
// returns a filter accepting addresses preceded by a call in any of them.
func LoadCallSites(elfPath string) (IsCode, error) {
	f, err := elf.Open(elfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("firmware ELF is %s, not RISC-V", f.Machine)
	}

	var filters []IsCode
	for _, name := range TextSections {
		s := f.Section(name)
		if s == nil || s.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", name, err)
		}
		base, err := safecast.Conv[uint32](s.Addr)
		if err != nil {
			return nil, fmt.Errorf("section %s address: %w", name, err)
		}
		filters = append(filters, CallSiteFilter(data, base))
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("firmware ELF has none of the sections %v", TextSections)
	}

	return func(addr uint32) bool {
		for _, f := range filters {
			if f(addr) {
				return true
			}
		}
		return false
	}, nil
}
