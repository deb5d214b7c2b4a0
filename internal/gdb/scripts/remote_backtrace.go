package scripts

import (
	_ "embed"
	"strings"
)

//go:embed templates/remote_backtrace.gdb.tmpl
var remoteBacktraceTemplate string

const backtraceStopped = "Backtrace stopped:"

// RemoteBacktraceScript connects to a remote target stub and asks gdb to
// unwind the stack.
type RemoteBacktraceScript struct {
	host   string
	port   int
	parser *Parser
}

// NewRemoteBacktraceScript creates a backtrace script for the stub at
// host:port.
func NewRemoteBacktraceScript(host string, port int) *RemoteBacktraceScript {
	return &RemoteBacktraceScript{host: host, port: port, parser: defaultParser}
}

// Name implements Script.Name
func (s *RemoteBacktraceScript) Name() string {
	return "remote_backtrace"
}

// Template implements Script.Template
func (s *RemoteBacktraceScript) Template() string {
	return remoteBacktraceTemplate
}

// Params implements Script.Params
func (s *RemoteBacktraceScript) Params() map[string]interface{} {
	return map[string]interface{}{
		"Host": s.host,
		"Port": s.port,
	}
}

// Parse implements Script.Parse. Only "#N ..." frame lines are kept; the
// source echo gdb prints for the selected frame is ignored.
func (s *RemoteBacktraceScript) Parse(output string) (*Result, error) {
	result := NewResult()
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if reason, ok := strings.CutPrefix(line, backtraceStopped); ok {
			result.SetData("stopped", strings.TrimSpace(reason))
			continue
		}
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if loc, ok := s.parser.ParseLine(line); ok {
			result.Locations = append(result.Locations, loc)
		}
	}
	result.Success = len(result.Locations) > 0
	return result, nil
}
