package gdb

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/muurk/trbr/internal/urls"
)

// versionTimeout bounds the gdb --version probe.
const versionTimeout = 5 * time.Second

// PrerequisiteCheck represents the result of checking a single prerequisite.
type PrerequisiteCheck struct {
	// Name is the human-readable name of the prerequisite
	Name string
	// Available indicates whether the prerequisite is available
	Available bool
	// Path is the resolved path (for binary checks)
	Path string
	// Version is the detected version (if applicable)
	Version string
	// Message provides additional context (error message or success info)
	Message string
	// Error contains the underlying error if check failed
	Error error
}

// PrerequisiteResult contains the results of all prerequisite checks.
type PrerequisiteResult struct {
	// Checks contains individual check results
	Checks []PrerequisiteCheck
	// AllAvailable is true if all prerequisites are available
	AllAvailable bool
}

// ValidatePrerequisites checks the debugger and the firmware image and
// returns a detailed report. An empty elfPath skips the firmware check.
func ValidatePrerequisites(ctx context.Context, gdbPath, elfPath string) (*PrerequisiteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, Aborted(err)
	}

	result := &PrerequisiteResult{
		Checks:       make([]PrerequisiteCheck, 0, 2),
		AllAvailable: true,
	}

	gdbCheck := checkGDBBinary(ctx, gdbPath)
	result.Checks = append(result.Checks, gdbCheck)
	if !gdbCheck.Available {
		result.AllAvailable = false
	}

	if elfPath != "" {
		elfCheck := checkFirmwareELF(elfPath)
		result.Checks = append(result.Checks, elfCheck)
		if !elfCheck.Available {
			result.AllAvailable = false
		}
	}

	if ctx.Err() != nil {
		return nil, Aborted(ctx.Err())
	}
	return result, nil
}

// checkGDBBinary verifies that the debugger is available and is GNU gdb.
func checkGDBBinary(ctx context.Context, gdbPath string) PrerequisiteCheck {
	check := PrerequisiteCheck{
		Name: "gdb",
	}

	path, err := exec.LookPath(gdbPath)
	if err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("%s not found\n"+
			"Install the ESP-IDF toolchain or pass --gdb-path.\n"+
			"See: %s", gdbPath, urls.Toolchain)
		return check
	}
	check.Path = path

	version, err := gdbVersion(ctx, path)
	if err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("%s found but is not usable: %v", path, err)
		return check
	}

	check.Version = version
	check.Available = true
	check.Message = fmt.Sprintf("Found at %s", path)
	return check
}

// checkFirmwareELF verifies that the firmware image is a readable ELF32 file.
func checkFirmwareELF(elfPath string) PrerequisiteCheck {
	check := PrerequisiteCheck{
		Name: "firmware ELF",
		Path: elfPath,
	}

	f, err := elf.Open(elfPath)
	if err != nil {
		check.Error = err
		if errors.Is(err, fs.ErrNotExist) {
			check.Message = fmt.Sprintf("%s does not exist", elfPath)
		} else {
			check.Message = fmt.Sprintf("%s is not a readable ELF file: %v", elfPath, err)
		}
		return check
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		check.Error = fmt.Errorf("unexpected ELF class %s", f.Class)
		check.Message = fmt.Sprintf("%s is %s, expected ELFCLASS32", elfPath, f.Class)
		return check
	}

	check.Available = true
	check.Version = f.Machine.String()
	check.Message = fmt.Sprintf("%s firmware", machineName(f.Machine))
	return check
}

func machineName(m elf.Machine) string {
	switch m {
	case elf.EM_RISCV:
		return "RISC-V"
	case elf.EM_XTENSA:
		return "Xtensa"
	default:
		return m.String()
	}
}

// ValidateGDBPath checks if a specific GDB binary path is valid and executable.
func ValidateGDBPath(ctx context.Context, gdbPath string) error {
	if gdbPath == "" {
		return &PrerequisiteError{
			Prerequisite: "gdb",
			Details:      "GDB path is empty",
		}
	}

	_, err := gdbVersion(ctx, gdbPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAborted) {
		return err
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return toolNotFound(gdbPath, err)
	}
	return &PrerequisiteError{
		Prerequisite: "gdb",
		Details:      fmt.Sprintf("%s is not usable", gdbPath),
		Err:          err,
	}
}

// gdbVersion runs --version and returns the first output line. The output
// must identify GNU gdb.
func gdbVersion(ctx context.Context, gdbPath string) (string, error) {
	versionCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := exec.CommandContext(versionCtx, gdbPath, "--version").Output()
	if ctx.Err() != nil {
		return "", Aborted(ctx.Err())
	}
	if err != nil {
		return "", fmt.Errorf("failed to execute %s --version: %w", gdbPath, err)
	}
	if !strings.Contains(string(output), "GNU gdb") {
		return "", fmt.Errorf("%s does not appear to be GNU GDB", gdbPath)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}

// FormatPrerequisiteReport formats a PrerequisiteResult into a human-readable string.
func FormatPrerequisiteReport(result *PrerequisiteResult) string {
	var sb strings.Builder

	sb.WriteString("Decoder Prerequisites Check:\n")
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, check := range result.Checks {
		if check.Available {
			sb.WriteString(fmt.Sprintf("✓ %s\n", check.Name))
			if check.Version != "" {
				sb.WriteString(fmt.Sprintf("  Version: %s\n", check.Version))
			}
			if check.Path != "" {
				sb.WriteString(fmt.Sprintf("  Path: %s\n", check.Path))
			}
			if check.Message != "" {
				sb.WriteString(fmt.Sprintf("  %s\n", check.Message))
			}
		} else {
			sb.WriteString(fmt.Sprintf("✗ %s\n", check.Name))
			if check.Message != "" {
				sb.WriteString(fmt.Sprintf("  %s\n", check.Message))
			}
		}
		sb.WriteString("\n")
	}

	if result.AllAvailable {
		sb.WriteString("All required prerequisites are available.\n")
	} else {
		sb.WriteString("Some prerequisites are missing. Please install them before decoding.\n")
	}

	return sb.String()
}
