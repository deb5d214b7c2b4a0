package panictext

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/target"
)

// XtensaPanic is a parsed Xtensa panic in either the Guru Meditation or the
// ESP8266 dialect.
type XtensaPanic struct {
	Dialect   Dialect
	CoreID    int
	Registers crash.RegisterSet
	// Backtrace holds the inline backtrace or, for ESP8266, stack words
	// that look like code addresses.
	Backtrace []uint32
	FaultCode *int
	FaultAddr *uint32
	PC        *uint32
}

var (
	guruCoreID     = regexp.MustCompile(`Guru Meditation Error: Core\s+(\d+)`)
	xtensaRegPair  = regexp.MustCompile(`([A-Z]+[0-9]*)\s*:\s*(0x[0-9a-fA-F]+)`)
	backtraceWord  = regexp.MustCompile(`0x[0-9a-fA-F]{8}`)
	esp8266Cause   = regexp.MustCompile(`Exception\s+\((\d+)\)`)
	esp8266RegPair = regexp.MustCompile(`(epc\d+|excvaddr|depc)=(0x[0-9a-fA-F]{8})`)
	esp8266Stack   = regexp.MustCompile(`(?i)^\s*[0-9a-f]{8}:\s+((?:[0-9a-f]{8}\s*)+)`)
)

// esp8266CodeBit marks instruction addresses in an ESP8266 stack dump.
const esp8266CodeBit = 0x40000000

// ParseXtensa tries the Guru Meditation dialect first and falls back to
// ESP8266 when that found neither registers nor a backtrace.
func ParseXtensa(text string) *XtensaPanic {
	p := ParseGuruMeditation(text)
	if len(p.Registers) == 0 && len(p.Backtrace) == 0 {
		return ParseESP8266(text)
	}
	return p
}

// ParseGuruMeditation parses ESP32 Xtensa panic output.
func ParseGuruMeditation(text string) *XtensaPanic {
	p := &XtensaPanic{Dialect: DialectGuruMeditation}
	if m := guruCoreID.FindStringSubmatch(text); m != nil {
		p.CoreID, _ = strconv.Atoi(m[1])
	}

	raw := map[string]uint32{}
	for _, line := range splitLines(text) {
		for _, m := range xtensaRegPair.FindAllStringSubmatch(line, -1) {
			if v, ok := parseHex32(m[2]); ok {
				raw[m[1]] = v
			}
		}
		if strings.HasPrefix(line, "Backtrace:") {
			for _, w := range backtraceWord.FindAllString(line, -1) {
				if v, ok := parseHex32(w); ok {
					p.Backtrace = append(p.Backtrace, v)
				}
			}
		}
	}

	p.Registers = crash.NewRegisterSet(target.XtensaRegisters, raw)
	if v, ok := p.Registers.Get("EXCCAUSE"); ok {
		code := int(v)
		p.FaultCode = &code
	}
	if v, ok := p.Registers.Get("EXCVADDR"); ok {
		p.FaultAddr = &v
	}
	if v, ok := p.Registers.Get("PC"); ok {
		p.PC = &v
	}
	return p
}

// ParseESP8266 parses ESP8266 exception output.
func ParseESP8266(text string) *XtensaPanic {
	p := &XtensaPanic{Dialect: DialectESP8266}
	if m := esp8266Cause.FindStringSubmatch(text); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			p.FaultCode = &code
		}
	}

	raw := map[string]uint32{}
	for _, line := range splitLines(text) {
		for _, m := range esp8266RegPair.FindAllStringSubmatch(line, -1) {
			if v, ok := parseHex32(m[2]); ok {
				raw[strings.ToUpper(m[1])] = v
			}
		}
		// 3fff10b0:  4021a5d4 00000033 3fff20dc 40201ed3
		if m := esp8266Stack.FindStringSubmatch(line); m != nil {
			for _, w := range strings.Fields(m[1]) {
				if v, ok := parseHex32(w); ok && v&esp8266CodeBit != 0 {
					p.Backtrace = append(p.Backtrace, v)
				}
			}
		}
	}

	p.Registers = crash.NewRegisterSet(target.ESP8266Registers, raw)
	if v, ok := p.Registers.Get("EXCVADDR"); ok {
		p.FaultAddr = &v
	}
	if v, ok := p.Registers.Get("EPC1"); ok {
		p.PC = &v
	}
	return p
}
