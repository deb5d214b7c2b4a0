package target

const reserved = "reserved"

// xtensaExceptions is indexed by EXCCAUSE.
var xtensaExceptions = []string{
	"Illegal instruction",
	"SYSCALL instruction",
	"InstructionFetchError: Processor internal physical address or data error during instruction fetch",
	"LoadStoreError: Processor internal physical address or data error during load or store",
	"Level1Interrupt: Level-1 interrupt as indicated by set level-1 bits in the INTERRUPT register",
	"Alloca: MOVSP instruction, if caller's registers are not in the register file",
	"IntegerDivideByZero: QUOS, QUOU, REMS, or REMU divisor operand is zero",
	reserved,
	"Privileged: Attempt to execute a privileged operation when CRING ? 0",
	"LoadStoreAlignmentCause: Load or store to an unaligned address",
	reserved,
	reserved,
	"InstrPIFDataError: PIF data error during instruction fetch",
	"LoadStorePIFDataError: Synchronous PIF data error during LoadStore access",
	"InstrPIFAddrError: PIF address error during instruction fetch",
	"LoadStorePIFAddrError: Synchronous PIF address error during LoadStore access",
	"InstTLBMiss: Error during Instruction TLB refill",
	"InstTLBMultiHit: Multiple instruction TLB entries matched",
	"InstFetchPrivilege: An instruction fetch referenced a virtual address at a ring level less than CRING",
	reserved,
	"InstFetchProhibited: An instruction fetch referenced a page mapped with an attribute that does not permit instruction fetch",
	reserved,
	reserved,
	reserved,
	"LoadStoreTLBMiss: Error during TLB refill for a load or store",
	"LoadStoreTLBMultiHit: Multiple TLB entries matched for a load or store",
	"LoadStorePrivilege: A load or store referenced a virtual address at a ring level less than CRING",
	reserved,
	"LoadProhibited: A load referenced a page mapped with an attribute that does not permit loads",
	"StoreProhibited: A store referenced a page mapped with an attribute that does not permit stores",
}

var riscvExceptions = map[int]string{
	0x0: "Instruction address misaligned",
	0x1: "Instruction access fault",
	0x2: "Illegal instruction",
	0x3: "Breakpoint",
	0x4: "Load address misaligned",
	0x5: "Load access fault",
	0x6: "Store/AMO address misaligned",
	0x7: "Store/AMO access fault",
	0x8: "Environment call from U-mode",
	0x9: "Environment call from S-mode",
	0xb: "Environment call from M-mode",
	0xc: "Instruction page fault",
	0xd: "Load page fault",
	0xf: "Store/AMO page fault",
}

// XtensaException describes an EXCCAUSE value. Unknown codes return "".
func XtensaException(code int) string {
	if code < 0 || code >= len(xtensaExceptions) {
		return ""
	}
	return xtensaExceptions[code]
}

// RISCVException describes an MCAUSE value. Unknown codes return "".
func RISCVException(code int) string {
	return riscvExceptions[code]
}

// ExceptionMessage picks the table matching a.
func (a Arch) ExceptionMessage(code int) string {
	if a.IsRISCV() {
		return RISCVException(code)
	}
	return XtensaException(code)
}
