package scripts

import (
	"time"

	"github.com/muurk/trbr/internal/crash"
)

// Script represents a batch GDB operation that can be executed.
// Address resolution and remote backtraces both implement this interface.
type Script interface {
	// Name returns a human-readable name for this script.
	// Used for logging and error messages.
	// Example: "resolve_addrs", "remote_backtrace"
	Name() string

	// Template returns the GDB command template content.
	// The template uses Go text/template syntax and can access parameters
	// via the map returned by Params(). Every non-empty rendered line is
	// one GDB command.
	Template() string

	// Params returns the parameters to be substituted into the template.
	Params() map[string]interface{}

	// Parse extracts structured results from GDB output.
	// The output parameter contains stdout from the GDB command.
	// Returns an error if parsing fails (use gdb.ParseError semantics).
	Parse(output string) (*Result, error)
}

// Result represents the outcome of executing a GDB script.
type Result struct {
	// Success indicates whether the overall operation succeeded.
	Success bool

	// Duration is how long the GDB script took to execute.
	Duration time.Duration

	// Locations holds the parsed source locations, in script order.
	// For address resolution there is one entry per unique address; for
	// a backtrace one entry per frame.
	Locations []crash.Location

	// Data contains operation-specific parsed data.
	// For example:
	//   - "stopped": "frame did not save the PC" (remote backtrace)
	//   - "unresolved": 3 (address resolution)
	Data map[string]interface{}

	// RawOutput contains the complete stdout from GDB.
	// Useful for debugging parse errors.
	RawOutput string

	// RawStderr contains the complete stderr from GDB.
	RawStderr string
}

// NewResult creates a new Result with default values.
func NewResult() *Result {
	return &Result{
		Success:   false,
		Locations: make([]crash.Location, 0),
		Data:      make(map[string]interface{}),
	}
}

// SetData sets a data value in the result.
func (r *Result) SetData(key string, value interface{}) {
	r.Data[key] = value
}

// GetData gets a data value from the result.
// Returns nil if the key doesn't exist.
func (r *Result) GetData(key string) interface{} {
	return r.Data[key]
}

// GetDataString gets a string data value from the result.
// Returns empty string if the key doesn't exist or value is not a string.
func (r *Result) GetDataString(key string) string {
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

// GetDataInt gets an int data value from the result.
// Returns 0 if the key doesn't exist or value is not an int.
func (r *Result) GetDataInt(key string) int {
	if v, ok := r.Data[key].(int); ok {
		return v
	}
	return 0
}

// Lookup returns the location resolved for addr.
func (r *Result) Lookup(addr uint32) (crash.Location, bool) {
	for _, loc := range r.Locations {
		if loc.HasAddr && loc.Addr == addr {
			return loc, true
		}
	}
	return crash.Location{}, false
}
