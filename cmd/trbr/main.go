// Trbr decodes ESP32 crashes.
//
// It turns the panic text printed on the serial console, or a core dump
// read back from flash, into a symbolized backtrace using the toolchain
// GDB and the firmware ELF:
//
//   - Xtensa "Guru Meditation" and ESP8266 exception dumps
//   - RISC-V panics, unwound by GDB against a local stub
//   - ESP-IDF core dumps in ELF or raw format
//
// Prerequisites:
//
//   - The toolchain GDB for the target (xtensa-esp32-elf-gdb or
//     riscv32-esp-elf-gdb), in PATH or given with --gdb-path
//   - The ELF of the firmware that crashed
//
// See 'trbr --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/muurk/trbr/internal/format"
	"github.com/muurk/trbr/internal/logging"
	"github.com/muurk/trbr/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trbr",
	Short: "ESP32 crash decoder",
	Long: `Decode ESP32 panics and core dumps into symbolized backtraces.

trbr drives the toolchain GDB against your firmware ELF to resolve the
program counter, the faulting address and every backtrace frame, and
lists the firmware's global variables next to the trace.

Supported targets: xtensa, esp32c2, esp32c3, esp32c6, esp32h2, esp32h4,
esp32p4.

Use 'trbr verify-setup' to check prerequisites.`,
	Version: version.Version,
	Example: `  # Decode a panic captured from the serial console
  trbr decode --elf build/app.elf panic.txt

  # Decode from stdin for a RISC-V target
  idf.py monitor | tee log.txt; trbr decode --target esp32c3 --elf build/app.elf < log.txt

  # Decode a core dump read back from flash
  trbr coredump --elf build/app.elf coredump.bin

  # Export the result for other tools
  trbr decode --elf build/app.elf --format yaml panic.txt`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		if _, err := format.ParseKind(outputFormat); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := format.ParseKind(outputFormat)
		switch kind {
		case format.KindYAML:
			return format.YAML(cmd.OutOrStdout(), version.Get())
		case format.KindMsgpack:
			return format.Msgpack(cmd.OutOrStdout(), version.Get())
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "trbr %s\n", version.Full())
		return err
	},
}
