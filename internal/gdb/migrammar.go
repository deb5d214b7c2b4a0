package gdb

import (
	"regexp"
	"strings"
)

// Helpers for the subset of the GDB/MI output grammar the decoder reads.
// Values are returned as raw text: a tuple or list value keeps its
// brackets so callers can descend into it with the same helpers.

var (
	doneRecord  = regexp.MustCompile(`(?m)^\d*\^done(?:,([^\r\n]*))?`)
	errorRecord = regexp.MustCompile(`(?m)^\d*\^error,msg="((?:[^"\\]|\\.)*)"(?:,code="([^"]*)")?`)
	consoleLine = regexp.MustCompile(`^~"(.*)"\s*$`)
)

// ExtractList returns the content between the brackets of key=[...] in
// raw. Nested brackets are balanced.
func ExtractList(raw, key string) (string, bool) {
	idx := strings.Index(raw, key+"=[")
	if idx < 0 {
		return "", false
	}
	start := idx + len(key) + 1
	depth := 0
	inQuotes, escape := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escape:
			escape = false
		case inQuotes && c == '\\':
			escape = true
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return raw[start+1 : i], true
			}
		}
	}
	return "", false
}

// SplitItems splits list or tuple content on top-level commas. Commas
// inside quoted strings and nested {} or [] are kept.
func SplitItems(content string) []string {
	var items []string
	var cur strings.Builder
	depth := 0
	inQuotes, escape := false, false

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			items = append(items, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case escape:
			escape = false
		case inQuotes && c == '\\':
			escape = true
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth = max(0, depth-1)
		case c == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return items
}

// Unescape decodes the C-style escapes of an MI c-string body.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ParseTuple parses name=value pairs. Quoted values are unescaped; list
// and tuple values are returned verbatim.
func ParseTuple(content string) map[string]string {
	fields := make(map[string]string)
	for _, item := range SplitItems(content) {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = Unescape(value[1 : len(value)-1])
		}
		fields[strings.TrimSpace(key)] = value
	}
	return fields
}

// ParseResultRecord parses the fields of the ^done record in raw. A
// missing record or one without results yields an empty map.
func ParseResultRecord(raw string) map[string]string {
	m := doneRecord.FindStringSubmatch(raw)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return map[string]string{}
	}
	return ParseTuple(strings.TrimSpace(m[1]))
}

// StripList removes the brackets around a list value.
func StripList(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '[' && value[len(value)-1] == ']' {
		return value[1 : len(value)-1], true
	}
	return "", false
}

// ParseTupleList parses a list of tuples. With a key, only key={...}
// items are taken; without one, bare {...} items.
func ParseTupleList(list, key string) []map[string]string {
	var tuples []map[string]string
	prefix := "{"
	if key != "" {
		prefix = key + "={"
	}
	for _, item := range SplitItems(list) {
		if !strings.HasPrefix(item, prefix) || !strings.HasSuffix(item, "}") {
			continue
		}
		tuples = append(tuples, ParseTuple(item[len(prefix):len(item)-1]))
	}
	return tuples
}

// ConsoleText concatenates the console stream records (~"...") of raw.
func ConsoleText(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if m := consoleLine.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			b.WriteString(Unescape(m[1]))
		}
	}
	return b.String()
}

// parseErrorRecord returns the ^error record of raw, if any.
func parseErrorRecord(command, raw string) (*MIError, bool) {
	m := errorRecord.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	return &MIError{Command: command, Message: Unescape(m[1]), Code: m[2]}, true
}
