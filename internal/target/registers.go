package target

// XtensaRegisters is the register order of an Xtensa core-dump note. Panic
// text registers are filtered against the same list.
var XtensaRegisters = []string{
	"PC", "PS",
	"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7",
	"A8", "A9", "A10", "A11", "A12", "A13", "A14", "A15",
	"SAR", "EXCCAUSE", "EXCVADDR",
	"LBEG", "LEND", "LCOUNT",
	"WINDOWBASE", "WINDOWSTART",
}

// ESP8266Registers are the registers the ESP8266 exception handler prints.
var ESP8266Registers = []string{"EPC1", "EPC2", "EPC3", "EXCVADDR", "DEPC"}

// RISCVCoreRegisters is the register order of a RISC-V core-dump note.
var RISCVCoreRegisters = []string{
	"MEPC", "RA", "SP", "GP", "TP", "T0", "T1", "T2", "S0", "S1",
	"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7",
	"S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9", "S10", "S11",
	"T3", "T4", "T5", "T6",
	"MSTATUS", "MTVEC", "MCAUSE", "MTVAL", "MHARTID",
}

// RISCVGDBRegisters is the ilp32 register file in the order gdb expects in
// a 'g' packet: x0..x31 followed by the pc.
var RISCVGDBRegisters = []string{
	"X0", "RA", "SP", "GP", "TP", "T0", "T1", "T2", "S0/FP", "S1",
	"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7",
	"S2", "S3", "S4", "S5", "S6", "S7", "S8", "S9", "S10", "S11",
	"T3", "T4", "T5", "T6",
	"MEPC",
}

// IsRISCVGDBRegister reports whether name belongs to RISCVGDBRegisters.
func IsRISCVGDBRegister(name string) bool {
	for _, r := range RISCVGDBRegisters {
		if r == name {
			return true
		}
	}
	return false
}
