package scripts

import (
	_ "embed"
	"fmt"
	"regexp"

	"github.com/muurk/trbr/internal/crash"
)

//go:embed templates/resolve_addrs.gdb.tmpl
var resolveAddrsTemplate string

// blockMarker separates the output of each address; the trailing END
// marker keeps the last command successful so gdb exits with status 0.
var blockMarker = regexp.MustCompile(`(?m)^>>> (?:ADDR:\s*(0x[0-9a-fA-F]+)|END)\s*$`)

// ResolveAddrsScript maps code addresses to function, file and line using
// info line, info symbol and list for every address.
type ResolveAddrsScript struct {
	addrs  []uint32
	parser *Parser
}

// NewResolveAddrsScript creates an address resolution script. Duplicate
// addresses are dropped; first-seen order is kept.
func NewResolveAddrsScript(addrs []uint32) *ResolveAddrsScript {
	seen := make(map[uint32]bool, len(addrs))
	unique := make([]uint32, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		unique = append(unique, a)
	}
	return &ResolveAddrsScript{addrs: unique, parser: defaultParser}
}

// Addrs returns the unique addresses the script resolves.
func (s *ResolveAddrsScript) Addrs() []uint32 {
	return s.addrs
}

// Name implements Script.Name
func (s *ResolveAddrsScript) Name() string {
	return "resolve_addrs"
}

// Template implements Script.Template
func (s *ResolveAddrsScript) Template() string {
	return resolveAddrsTemplate
}

// Params implements Script.Params
func (s *ResolveAddrsScript) Params() map[string]interface{} {
	hex := make([]string, len(s.addrs))
	for i, a := range s.addrs {
		hex[i] = fmt.Sprintf("0x%08x", a)
	}
	return map[string]interface{}{
		"Addrs": hex,
	}
}

// Parse implements Script.Parse. Every requested address gets a location;
// addresses without a parsed source line become "??".
func (s *ResolveAddrsScript) Parse(output string) (*Result, error) {
	result := NewResult()

	blocks := make(map[uint32]string)
	marks := blockMarker.FindAllStringSubmatchIndex(output, -1)
	for i, m := range marks {
		if m[2] < 0 {
			continue // END
		}
		addr, err := crash.ParseAddr(output[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(output)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		if _, dup := blocks[addr]; !dup {
			blocks[addr] = output[m[1]:end]
		}
	}

	unresolved := 0
	for _, addr := range s.addrs {
		loc, ok := s.resolve(blocks[addr])
		if !ok {
			unresolved++
			result.Locations = append(result.Locations, crash.Unresolved(addr))
			continue
		}
		loc.Addr = addr
		loc.HasAddr = true
		result.Locations = append(result.Locations, loc)
	}

	result.SetData("unresolved", unresolved)
	result.Success = unresolved < len(s.addrs) || len(s.addrs) == 0
	return result, nil
}

func (s *ResolveAddrsScript) resolve(block string) (crash.Location, bool) {
	for _, loc := range s.parser.ParseLines(block) {
		if loc.Parsed() {
			return loc, true
		}
	}
	return crash.Location{}, false
}
