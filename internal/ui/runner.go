package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// MaxVerboseLines caps the GDB output box shown with --verbose.
const MaxVerboseLines = 400

// RunnerConfig holds configuration for a decode command execution
type RunnerConfig struct {
	Title      string            // Command title (e.g., "Panic Decode")
	Command    string            // Full command (e.g., "trbr decode")
	Params     map[string]string // Parameters to display in header
	TotalSteps int               // Total number of steps (for progress)
	StepNames  []string          // Names for each step
	Verbose    bool              // Whether to show GDB output
	Output     io.Writer         // Output writer (default: os.Stderr)
}

// Runner orchestrates the UI around a decode: header, then progress,
// then result. The decoded text itself is written by the caller.
type Runner struct {
	config    RunnerConfig
	header    *Header
	progress  *Progress
	output    io.Writer
	gdbOutput string
	width     int
}

// NewRunner creates a new runner for a decode command
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	width := GetTerminalWidth()

	header := NewHeader(config.Title, config.Command, config.Params)
	header.SetWidth(width)

	var progress *Progress
	if config.TotalSteps > 0 {
		progress = NewProgress(config.TotalSteps, config.StepNames).SetWidth(width)
	}

	return &Runner{
		config:   config,
		header:   header,
		progress: progress,
		output:   config.Output,
		width:    width,
	}
}

// Operation is the work a Runner wraps. It reports progress through
// onStep and returns the details shown in the success box.
type Operation func(ctx context.Context, onStep StepCallback) (map[string]string, error)

// Run prints the header, executes the operation and prints the result.
func (r *Runner) Run(ctx context.Context, operation Operation) (map[string]string, error) {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := operation(ctx, r.stepCallback())
	duration := time.Since(start)

	if r.progress != nil {
		_, _ = fmt.Fprintln(r.output)
		_, _ = fmt.Fprintln(r.output, r.progress.BarLine())
	}

	if err != nil {
		r.printFailure(err)
	} else {
		r.printSuccess(details, duration)
	}
	return details, err
}

// SetGDBOutput stores GDB output for verbose display
func (r *Runner) SetGDBOutput(output string) {
	r.gdbOutput = output
}

func (r *Runner) stepCallback() StepCallback {
	return func(stepNumber int, name string, status StepStatus, message string) {
		if r.progress == nil {
			return
		}
		step, ok := r.progress.Update(stepNumber, name, status, message)
		if !ok {
			return
		}
		switch {
		case status.finished():
			_, _ = fmt.Fprintln(r.output, r.progress.StepLine(step))
		case status == StepRunning:
			// overwritten when the step finishes
			_, _ = fmt.Fprint(r.output, r.progress.StepLine(step)+"\r")
		}
	}
}

func (r *Runner) printSuccess(details map[string]string, duration time.Duration) {
	_, _ = fmt.Fprintln(r.output)

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = duration.Round(time.Millisecond).String()

	result := NewSuccessResult(r.config.Title+" complete", details)
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
	r.printGDBOutput()
}

func (r *Runner) printFailure(err error) {
	_, _ = fmt.Fprintln(r.output)

	result := NewFailureResult(r.config.Title+" failed", err, DecodeTroubleshooting())
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
	r.printGDBOutput()
}

func (r *Runner) printGDBOutput() {
	if !r.config.Verbose || r.gdbOutput == "" {
		return
	}
	_, _ = fmt.Fprintln(r.output)
	box := NewGDBOutput(r.gdbOutput).
		SetWidth(r.width).
		SetTitle(r.config.Title + ": GDB Output").
		SetMaxLines(MaxVerboseLines)
	_, _ = fmt.Fprintln(r.output, box.Render())
}

// DecodeTroubleshooting returns the tips shown when a decode fails.
func DecodeTroubleshooting() []string {
	return []string{
		"Check --gdb-path points at the toolchain GDB for your target",
		"Try: trbr verify-setup",
		"Make sure the ELF matches the firmware that crashed",
		"Run with --verbose for full GDB output",
	}
}
