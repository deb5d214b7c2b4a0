package gdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/gdb/scripts"
	"github.com/muurk/trbr/internal/logging"
	"github.com/muurk/trbr/internal/target"
)

// Config holds the configuration for GDB execution.
type Config struct {
	// GDBPath is the path to the toolchain gdb binary.
	// Default: "xtensa-esp32-elf-gdb" (searches PATH)
	GDBPath string

	// ELFPath is the firmware image loaded as the symbol file.
	ELFPath string

	// Timeout is the maximum time to wait for one GDB run.
	// Zero disables the limit.
	// Default: 2 minutes
	Timeout time.Duration

	// Echo receives a copy of GDB's stdout and stderr while it runs.
	// Nil keeps the output buffered only.
	Echo io.Writer
}

// DefaultTimeout bounds a single batch GDB run.
const DefaultTimeout = 2 * time.Minute

// DefaultGDBPath returns the conventional toolchain gdb name for arch.
func DefaultGDBPath(arch target.Arch) string {
	if arch.IsRISCV() {
		return "riscv32-esp-elf-gdb"
	}
	return "xtensa-esp32-elf-gdb"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GDBPath: DefaultGDBPath(target.Default),
		Timeout: DefaultTimeout,
	}
}

// Executor runs batch GDB scripts via os/exec.
type Executor struct {
	config Config
	logger *zap.Logger
}

// NewExecutor creates a new GDB executor with the given configuration.
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		config: config,
		logger: logger,
	}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Execute runs a GDB script and returns the parsed result.
//
// Steps:
//  1. Render script template with parameters
//  2. Pass every rendered line to GDB as an -ex command
//  3. Execute GDB in batch mode against the firmware ELF
//  4. Capture stdout/stderr
//  5. Parse output using script.Parse()
//
// Commands are passed with -ex rather than sourced from a file: GDB keeps
// going after a failing -ex command but abandons a sourced file at its
// first error, and a single unknown address must not hide the rest.
func (e *Executor) Execute(ctx context.Context, script scripts.Script) (*scripts.Result, error) {
	startTime := time.Now()

	e.logger.Info("executing GDB script",
		zap.String("script", script.Name()),
		zap.String("gdb_path", e.config.GDBPath),
		zap.String("elf", e.config.ELFPath),
		zap.Duration("timeout", e.config.Timeout),
	)

	rendered, err := e.renderTemplate(script)
	if err != nil {
		return nil, &TemplateError{
			Template: script.Name(),
			Err:      err,
		}
	}

	e.logger.Debug("rendered GDB script template",
		zap.String("script", script.Name()),
		zap.Int("size", len(rendered)),
		zap.String("content", rendered),
	)

	args := e.buildArgs(splitCommands(rendered))
	stdout, stderr, exitCode, err := e.executeGDB(ctx, script.Name(), args)
	duration := time.Since(startTime)

	e.logger.Debug("GDB execution complete",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Int("exit_code", exitCode),
		zap.Int("stdout_size", len(stdout)),
		zap.Int("stderr_size", len(stderr)),
		zap.String("stdout", stdout),
		zap.String("stderr", stderr),
	)

	if err != nil {
		return nil, err
	}

	if exitCode != 0 {
		return nil, &ExecutionError{
			Script:   script.Name(),
			ExitCode: exitCode,
			Stderr:   stderr,
			Stdout:   stdout,
		}
	}

	result, err := script.Parse(stdout)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ParseError{
			Script: script.Name(),
			Field:  "output",
			Output: stdout,
			Err:    err,
		}
	}

	result.Duration = duration
	result.RawOutput = stdout
	result.RawStderr = stderr

	e.logger.Info("GDB script executed successfully",
		zap.String("script", script.Name()),
		zap.Duration("duration", duration),
		zap.Bool("success", result.Success),
		zap.Int("locations", len(result.Locations)),
	)

	return result, nil
}

// renderTemplate renders the script template with parameters.
func (e *Executor) renderTemplate(script scripts.Script) (string, error) {
	tmpl, err := template.New(script.Name()).Parse(script.Template())
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, script.Params()); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// splitCommands returns the non-empty lines of a rendered script.
func splitCommands(rendered string) []string {
	var cmds []string
	for _, line := range strings.Split(rendered, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmds = append(cmds, line)
	}
	return cmds
}

// buildArgs builds the batch command line.
// -batch: Exit after the last command
// -nx: Don't execute .gdbinit
// -ex: Execute one command
func (e *Executor) buildArgs(commands []string) []string {
	args := []string{"-batch", "-nx"}
	if e.config.ELFPath != "" {
		args = append(args, e.config.ELFPath)
	}
	for _, c := range commands {
		args = append(args, "-ex", c)
	}
	return args
}

// executeGDB runs gdb with args and classifies the failure, if any.
func (e *Executor) executeGDB(ctx context.Context, name string, args []string) (stdout, stderr string, exitCode int, err error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.config.GDBPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	if e.config.Echo != nil {
		cmd.Stdout = io.MultiWriter(&stdoutBuf, e.config.Echo)
		cmd.Stderr = io.MultiWriter(&stderrBuf, e.config.Echo)
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	logging.LogProcess(e.logger, e.config.GDBPath, args)
	runErr := cmd.Run()

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	// Cancellation wins over whatever the process reported.
	if ctx.Err() != nil {
		return stdout, stderr, -1, Aborted(ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return stdout, stderr, -1, &TimeoutError{
			Script:  name,
			Timeout: e.config.Timeout.String(),
		}
	}
	if runErr == nil {
		return stdout, stderr, 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout, stderr, exitErr.ExitCode(), nil
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		return stdout, stderr, -1, toolNotFound(e.config.GDBPath, runErr)
	}
	return stdout, stderr, -1, &ExecutionError{
		Script:   name,
		ExitCode: -1,
		Stderr:   stderr,
		Stdout:   stdout,
		Err:      runErr,
	}
}

// Validate checks that the configured debugger is usable.
func (e *Executor) Validate(ctx context.Context) error {
	return ValidateGDBPath(ctx, e.config.GDBPath)
}
