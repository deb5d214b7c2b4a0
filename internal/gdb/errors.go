package gdb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muurk/trbr/internal/urls"
)

// ErrAborted is returned when the caller cancels a decode. Match it with
// errors.Is; the cancellation cause stays reachable through errors.Unwrap.
var ErrAborted = errors.New("user abort")

type abortError struct {
	cause error
}

func (e *abortError) Error() string {
	return ErrAborted.Error()
}

func (e *abortError) Is(target error) bool {
	return target == ErrAborted
}

func (e *abortError) Unwrap() error {
	return e.cause
}

// Aborted wraps a cancellation cause (usually ctx.Err()) so that it
// matches both ErrAborted and the cause.
func Aborted(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	if errors.Is(cause, ErrAborted) {
		return cause
	}
	return &abortError{cause: cause}
}

// ExecutionError represents a failure during GDB script execution.
// This occurs when the GDB command itself fails (non-zero exit code, stderr output, etc.).
type ExecutionError struct {
	// Script is the name of the script that failed
	Script string
	// ExitCode is the GDB process exit code
	ExitCode int
	// Stderr is the GDB stderr output
	Stderr string
	// Stdout is the GDB stdout output (for context)
	Stdout string
	// Underlying error if any
	Err error
}

func (e *ExecutionError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if e.Err != nil {
		return fmt.Sprintf("gdb execution failed for script %q (exit code %d): %v\nstderr: %s",
			e.Script, e.ExitCode, e.Err, stderr)
	}
	return fmt.Sprintf("gdb execution failed for script %q (exit code %d)\nstderr: %s",
		e.Script, e.ExitCode, stderr)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ParseError represents a failure to parse GDB output.
// This occurs when the output doesn't match expected format or patterns.
type ParseError struct {
	// Script is the name of the script whose output failed to parse
	Script string
	// Field is the specific field that failed to parse
	Field string
	// Output is the GDB output that failed to parse
	Output string
	// Underlying error
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse GDB output for script %q, field %q: %v\n"+
		"Output: %s",
		e.Script, e.Field, e.Err, e.Output)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PrerequisiteError represents a missing prerequisite (GDB binary, firmware ELF).
type PrerequisiteError struct {
	// Prerequisite is the name of the missing prerequisite
	Prerequisite string
	// Details provides additional context
	Details string
	// Underlying error
	Err error
}

func (e *PrerequisiteError) Error() string {
	msg := fmt.Sprintf("missing prerequisite: %s", e.Prerequisite)
	if e.Details != "" {
		msg += "\n" + e.Details
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\nError: %v", e.Err)
	}
	return msg
}

func (e *PrerequisiteError) Unwrap() error {
	return e.Err
}

// toolNotFound builds the error returned when the debugger cannot be
// launched.
func toolNotFound(path string, err error) *PrerequisiteError {
	return &PrerequisiteError{
		Prerequisite: "gdb",
		Details: fmt.Sprintf("GDB tool not found at %s\n"+
			"Hint: pass --gdb-path or set TRBR_GDB_PATH to the toolchain gdb for your target.\n"+
			"See: %s", path, urls.Toolchain),
		Err: err,
	}
}

// TemplateError represents a template rendering error.
type TemplateError struct {
	// Template is the name of the template that failed to render
	Template string
	// Underlying error
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("failed to render template %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a timeout during GDB operation.
type TimeoutError struct {
	// Script is the name of the script that timed out
	Script string
	// Timeout is the duration that was exceeded
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gdb operation timed out for script %q after %s\n"+
		"Hint: Increase timeout with --timeout flag or check that the ELF matches the firmware",
		e.Script, e.Timeout)
}

// MIError is an ^error result record returned by a machine interface
// command.
type MIError struct {
	// Command is the MI command that failed
	Command string
	// Message is the msg field of the record
	Message string
	// Code is the optional code field (e.g. "undefined-command")
	Code string
}

func (e *MIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gdb/mi command %q failed (%s): %s", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("gdb/mi command %q failed: %s", e.Command, e.Message)
}

// Unsupported reports whether gdb does not know the command.
func (e *MIError) Unsupported() bool {
	return e.Code == "undefined-command"
}
