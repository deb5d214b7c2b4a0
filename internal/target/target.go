// Package target describes the supported chip families: their keys,
// register layouts, exception tables and address-space predicates.
package target

import (
	"fmt"
	"sort"
	"strings"
)

// Arch is a decode target key.
type Arch string

const (
	Xtensa  Arch = "xtensa"
	ESP32C2 Arch = "esp32c2"
	ESP32C3 Arch = "esp32c3"
	ESP32C6 Arch = "esp32c6"
	ESP32H2 Arch = "esp32h2"
	ESP32H4 Arch = "esp32h4"
	ESP32P4 Arch = "esp32p4"
)

// Default is used when no target is given.
const Default = Xtensa

var riscvArches = map[Arch]bool{
	ESP32C2: true,
	ESP32C3: true,
	ESP32C6: true,
	ESP32H2: true,
	ESP32H4: true,
	ESP32P4: true,
}

// UnsupportedError is returned for an unknown target key.
type UnsupportedError struct {
	Key string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported target %q (supported: %s)", e.Key, strings.Join(Keys(), ", "))
}

// Keys returns every supported key, sorted, default first.
func Keys() []string {
	keys := []string{string(Xtensa)}
	riscv := make([]string, 0, len(riscvArches))
	for a := range riscvArches {
		riscv = append(riscv, string(a))
	}
	sort.Strings(riscv)
	return append(keys, riscv...)
}

// Parse validates s. An empty string selects Default.
func Parse(s string) (Arch, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	a := Arch(s)
	if a == Xtensa || riscvArches[a] {
		return a, nil
	}
	return "", &UnsupportedError{Key: s}
}

// IsRISCV reports whether a is one of the RISC-V chips.
func (a Arch) IsRISCV() bool {
	return riscvArches[a]
}

// CoreRegisters returns the order registers appear in a core-dump note.
func (a Arch) CoreRegisters() []string {
	if a.IsRISCV() {
		return RISCVCoreRegisters
	}
	return XtensaRegisters
}

// StackPointer returns the register holding the stack pointer.
func (a Arch) StackPointer() string {
	if a.IsRISCV() {
		return "SP"
	}
	return "A1"
}

// ProgramCounter returns the register holding the faulting PC.
func (a Arch) ProgramCounter() string {
	if a.IsRISCV() {
		return "MEPC"
	}
	return "PC"
}

func (a Arch) String() string {
	return string(a)
}

// IsDataAddr reports whether addr lies in the internal data RAM window
// used for task stacks.
func IsDataAddr(addr uint32) bool {
	return addr >= 0x3f800000 && addr < 0x40000000
}

// IsCodeAddr reports whether addr could be an instruction address.
func IsCodeAddr(addr uint32) bool {
	return addr >= 0x40000000 && addr <= 0x50000000
}
