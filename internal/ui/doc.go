// Package ui provides terminal UI components for the trbr CLI.
//
// This package uses Bubble Tea and Lipgloss to render polished terminal output
// around a decode. The components follow a "run once and exit" pattern: they
// render output but never wait for user interaction, with the exception of
// Confirm.
//
// # Architecture
//
// The UI package provides four main component types:
//
//   - Header: Command banner showing operation name and parameters
//   - Progress: Progress bar with step list showing real-time status
//   - Result: Success/failure boxes with styled information
//   - GDBOutput: Raw GDB output box for verbose mode
//
// These components are orchestrated by the Runner, which prints the header,
// the progress steps and the result box to stderr. The decoded text goes to
// stdout so it can be piped, coloured by StyleDecoded when stdout is a
// terminal.
//
// # Usage Pattern
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:      "Panic Decode",
//	    Command:    "trbr decode",
//	    Params:     map[string]string{"ELF": "build/app.elf"},
//	    TotalSteps: 3,
//	    Verbose:    verbose,
//	})
//
//	_, err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
//	    onStep(1, "Reading input", ui.StepRunning, "")
//	    // ... do work ...
//	    onStep(1, "Reading input", ui.StepComplete, "")
//	    return map[string]string{"Frames": "12"}, nil
//	})
//
// # Logging Integration
//
// Logging is controlled via the TRBR_LOG_LEVEL environment variable. When
// unset or empty, zap logging is silent so the curated UI output is
// displayed cleanly.
package ui
