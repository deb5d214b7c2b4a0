package scripts

import (
	"regexp"
	"strings"

	"github.com/muurk/trbr/internal/crash"
)

// Parser turns single lines of GDB console output into source locations.
// Patterns are tried in rank order and the first match wins; a line that
// matches nothing is ignored.
type Parser struct {
	frameAddrFile   *regexp.Regexp // #1  0x42000086 in loop () at a.ino:21
	frameFile       *regexp.Regexp // #0  a::geta (this=0x0) at a.ino:11
	isIn            *regexp.Regexp // 0x4200007e is in a::geta() (a.ino:11).
	isAt            *regexp.Regexp // 0x4200007e is at a.ino:11.
	lineStarts      *regexp.Regexp // Line 11 of "a.ino" starts at address 0x42000078 <a::geta()+2> and ...
	lineIsAt        *regexp.Regexp // Line 11 of "a.ino" is at address 0x42000078 <a::geta()+2> but ...
	frameAddrNoFile *regexp.Regexp // #3  0x40081234 in vPortTaskWrapper ()
	symbol          *regexp.Regexp // loop + 8 in section .flash.text
	isInMarker      *regexp.Regexp // 0x40000000 is in some ROM blob
	frameUnknown    *regexp.Regexp // #2  0x4c1c0042 in ?? ()
}

// NewParser creates a new parser with compiled regex patterns.
func NewParser() *Parser {
	return &Parser{
		frameAddrFile:   regexp.MustCompile(`^#\d+\s+0x([0-9a-fA-F]+)\s+in\s+(\S+)\s*\(([^)]*)\)\s+at\s+(\S+):(\d+)`),
		frameFile:       regexp.MustCompile(`^#\d+\s+([\w:~<>]+)\s*\(([^)]*)\)\s+at\s+(\S+):(\d+)`),
		isIn:            regexp.MustCompile(`(?i)^(0x[0-9a-f]{8})\s+is in\s+(\S+)\s+\((.*):(\d+)\)\.$`),
		isAt:            regexp.MustCompile(`(?i)^(0x[0-9a-f]{8}) is at (.+):(\d+)\.?$`),
		lineStarts:      regexp.MustCompile(`^Line (\d+) of "(.+)" starts at address (0x[0-9a-fA-F]+) <([^+>]+)(?:\+\d+)?>`),
		lineIsAt:        regexp.MustCompile(`^Line (\d+) of "(.+)" is at address (0x[0-9a-fA-F]+) <([^+>]+)(?:\+\d+)?>`),
		frameAddrNoFile: regexp.MustCompile(`^#\d+\s+0x([0-9a-fA-F]+)\s+in\s+([^\s?]\S*)\s*\(([^)]*)\)\s*$`),
		symbol:          regexp.MustCompile(`^(\S+)(?: \+ \d+)? in section (\S+)`),
		isInMarker:      regexp.MustCompile(`(?i)^(0x[0-9a-f]{8}) (is in .+)$`),
		frameUnknown:    regexp.MustCompile(`^#\d+\s+0x([0-9a-fA-F]+)\s+in\s+\?\?\s*\(`),
	}
}

var defaultParser = NewParser()

// ParseLine matches one output line against the ranked patterns.
func (p *Parser) ParseLine(line string) (crash.Location, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return crash.Location{}, false
	}

	if m := p.frameAddrFile.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: m[2], Args: parseArgs(m[3]), File: m[4], Line: m[5]}
		setAddr(&loc, m[1])
		return loc, true
	}
	if m := p.frameFile.FindStringSubmatch(line); m != nil {
		return crash.Location{Method: m[1], Args: parseArgs(m[2]), File: m[3], Line: m[4]}, true
	}
	if m := p.isIn.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: m[2], File: m[3], Line: m[4]}
		setAddr(&loc, m[1])
		return loc, true
	}
	if m := p.isAt.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: crash.UnknownLine, File: m[2], Line: m[3]}
		setAddr(&loc, m[1])
		return loc, true
	}
	if m := p.lineStarts.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: m[4], File: m[2], Line: m[1]}
		setAddr(&loc, m[3])
		return loc, true
	}
	if m := p.lineIsAt.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: m[4], File: m[2], Line: m[1]}
		setAddr(&loc, m[3])
		return loc, true
	}
	if m := p.frameAddrNoFile.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Method: m[2], Args: parseArgs(m[3]), Line: crash.UnknownLine}
		setAddr(&loc, m[1])
		return loc, true
	}
	if m := p.symbol.FindStringSubmatch(line); m != nil {
		return crash.Location{Method: m[1], Line: crash.UnknownLine}, true
	}
	if m := p.isInMarker.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Line: m[2]}
		setAddr(&loc, m[1])
		return loc, true
	}
	if m := p.frameUnknown.FindStringSubmatch(line); m != nil {
		loc := crash.Location{Line: crash.UnknownLine}
		setAddr(&loc, m[1])
		return loc, true
	}
	return crash.Location{}, false
}

// ParseLines parses every line of output and returns the matches in order.
func (p *Parser) ParseLines(output string) []crash.Location {
	var locs []crash.Location
	for _, line := range strings.Split(output, "\n") {
		if loc, ok := p.ParseLine(line); ok {
			locs = append(locs, loc)
		}
	}
	return locs
}

func setAddr(loc *crash.Location, hex string) {
	if addr, err := crash.ParseAddr(hex); err == nil {
		loc.Addr = addr
		loc.HasAddr = true
	}
}

// parseArgs splits a frame argument list such as "this=0x0, n=3".
func parseArgs(text string) []crash.Variable {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var args []crash.Variable
	for _, part := range strings.Split(text, ", ") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			args = append(args, crash.Variable{Name: strings.TrimSpace(part)})
			continue
		}
		args = append(args, crash.Variable{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return args
}
