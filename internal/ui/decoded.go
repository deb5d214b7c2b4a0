package ui

import (
	"regexp"
	"strings"
)

var (
	faultLine = regexp.MustCompile(`^\d+ \| `)
	frameAddr = regexp.MustCompile(`^(\s*[ *]\S+\s+process \d+\s+)?(0x[0-9a-f]{8}:)`)
)

// StyleDecoded colours the plain text decode output for a terminal. The
// text itself is unchanged apart from the escape sequences.
func StyleDecoded(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = styleLine(line)
	}
	return strings.Join(lines, "\n")
}

func styleLine(line string) string {
	switch {
	case line == "":
		return line
	case faultLine.MatchString(line):
		return FaultLineStyle.Render(line)
	case strings.HasPrefix(line, "PC -> "), strings.HasPrefix(line, "Fault -> "):
		return RegisterLineStyle.Render(line)
	case strings.HasPrefix(line, "===================="):
		return ThreadRuleStyle.Render(line)
	case strings.HasPrefix(line, "Memory allocation of "):
		return ErrorMessageStyle.Render(line)
	}
	if m := frameAddr.FindStringSubmatchIndex(line); m != nil {
		return line[:m[4]] + FrameAddrStyle.Render(line[m[4]:m[5]]) + line[m[5]:]
	}
	return line
}
