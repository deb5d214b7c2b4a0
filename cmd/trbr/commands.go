package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/config"
	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/decode"
	"github.com/muurk/trbr/internal/format"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/logging"
	"github.com/muurk/trbr/internal/target"
	"github.com/muurk/trbr/internal/ui"
)

// Command flags
var (
	configPath         string
	gdbPath            string
	elfPath            string
	targetKey          string
	gdbTimeout         time.Duration
	globalsTimeout     time.Duration
	skipGlobals        bool
	allowInfoVariables bool
	logLevel           string
	verbose            bool // Show GDB raw output
	quiet              bool
	outputFormat       string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&gdbPath, "gdb-path", "", "Path to the toolchain GDB (default: picked from --target)")
	rootCmd.PersistentFlags().StringVar(&elfPath, "elf", "", "Firmware ELF the crash came from")
	rootCmd.PersistentFlags().StringVar(&targetKey, "target", "", "Target: "+strings.Join(target.Keys(), ", "))
	rootCmd.PersistentFlags().DurationVar(&gdbTimeout, "timeout", gdb.DefaultTimeout, "GDB run timeout (e.g., 30s, 5m)")
	rootCmd.PersistentFlags().DurationVar(&globalsTimeout, "globals-timeout", gdb.DefaultGlobalsTimeout, "Timeout for listing global variables")
	rootCmd.PersistentFlags().BoolVar(&skipGlobals, "skip-globals", false, "Do not list global variables")
	rootCmd.PersistentFlags().BoolVar(&allowInfoVariables, "allow-info-variables", false, "Fall back to the slow 'info variables' listing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.LogLevelEnvVar+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed GDB output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print only the decoded output")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", string(format.KindText), "Output format: text, yaml, msgpack")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(coredumpCmd)
}

// loadSettings resolves the effective configuration: defaults, the
// config file, the environment, then flags the user actually set.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("gdb-path") {
		cfg.GDBPath = gdbPath
	}
	if flags.Changed("target") {
		cfg.Target = targetKey
	}
	if flags.Changed("timeout") {
		cfg.Timeout = gdbTimeout
	}
	if flags.Changed("globals-timeout") {
		cfg.GlobalsTimeout = globalsTimeout
	}
	if flags.Changed("skip-globals") {
		cfg.SkipGlobals = skipGlobals
	}
	if flags.Changed("allow-info-variables") {
		cfg.AllowInfoVariables = allowInfoVariables
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeParams builds the decode parameters from the resolved settings.
func decodeParams(cfg *config.Config, echo io.Writer) (decode.Params, error) {
	arch, err := cfg.Arch()
	if err != nil {
		return decode.Params{}, err
	}
	if elfPath == "" {
		return decode.Params{}, fmt.Errorf("--elf is required")
	}

	toolPath := cfg.GDBPath
	if toolPath == "" {
		toolPath = gdb.DefaultGDBPath(arch)
	}

	return decode.Params{
		ToolPath: toolPath,
		ELFPath:  elfPath,
		Arch:     arch,
		Config: decode.Config{
			Timeout:            cfg.Timeout,
			GlobalsTimeout:     cfg.GlobalsTimeout,
			SkipGlobals:        cfg.SkipGlobals,
			AllowInfoVariables: cfg.AllowInfoVariables,
			VarLimits:          cfg.VarLimits(),
			Echo:               echo,
		},
		Logger: logging.Named("decode"),
	}, nil
}

// newRunner creates the UI runner for a decode command. Quiet mode sends
// the chrome to io.Discard.
func newRunner(title, command string, params decode.Params, steps []string) *ui.Runner {
	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}
	return ui.NewRunner(ui.RunnerConfig{
		Title:   title,
		Command: command,
		Params: map[string]string{
			"ELF":    params.ELFPath,
			"Target": params.Arch.String(),
			"GDB":    params.ToolPath,
		},
		TotalSteps: len(steps),
		StepNames:  steps,
		Verbose:    verbose,
		Output:     out,
	})
}

// fail shows err in a failure box, unless --quiet, and returns it.
func fail(title string, err error) error {
	if !quiet {
		ui.PrintFailure(title, err, ui.DecodeTroubleshooting())
	}
	return err
}

// decodeCmd implements the 'decode' command
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode panic text from the serial console",
	Long: `Decode the panic output of an ESP32 into a symbolized backtrace.

The panic text is read from the given file, or from stdin when no file
(or "-") is given. The text may contain anything around the panic; the
register dump and backtrace are located by their markers.

This command will:
  1. Parse the registers, backtrace and allocation failure lines
  2. Resolve every address with GDB against the firmware ELF
  3. List the firmware's global variables (unless --skip-globals)
  4. Print the result in the selected --format

For RISC-V targets the stack memory in the panic is served to GDB by a
local stub so that GDB can unwind it.`,
	Example: `  trbr decode --elf build/app.elf panic.txt
  trbr decode --target esp32c3 --elf build/app.elf < panic.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	cfg, err := loadSettings(cmd)
	if err != nil {
		return fail("Panic decode failed", err)
	}
	var gdbOut ui.OutputBuffer
	params, err := decodeParams(cfg, &gdbOut)
	if err != nil {
		return fail("Panic decode failed", err)
	}

	source := "stdin"
	if len(args) == 1 && args[0] != "-" {
		source = args[0]
	}

	runner := newRunner("Panic Decode", "trbr decode", params, []string{
		"Reading panic text",
		"Decoding with GDB",
	})

	var result *crash.DecodeResult
	_, err = runner.Run(cmd.Context(), func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, source)
		text, err := readInput(cmd.InOrStdin(), source)
		if err != nil {
			onStep(1, "", ui.StepFailed, "")
			return nil, err
		}
		onStep(1, "", ui.StepComplete, strconv.Itoa(len(text))+" bytes")

		onStep(2, "", ui.StepRunning, "")
		result, err = decode.Decode(ctx, params, decode.Input{Text: text})
		runner.SetGDBOutput(gdbOut.String())
		if err != nil {
			onStep(2, "", ui.StepFailed, "")
			return nil, err
		}
		onStep(2, "", ui.StepComplete, fmt.Sprintf("%d frames", len(result.Frames)))

		details := map[string]string{
			"Frames":  strconv.Itoa(len(result.Frames)),
			"Globals": strconv.Itoa(len(result.Globals)),
		}
		if result.Fault != nil && result.Fault.Message != "" {
			details["Fault"] = result.Fault.Message
		}
		return details, nil
	})
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), result, func(w io.Writer) error {
		return format.Text(w, result)
	})
}

// coredumpCmd implements the 'coredump' command
var coredumpCmd = &cobra.Command{
	Use:   "coredump <file>",
	Short: "Decode a core dump read back from flash",
	Long: `Decode an ESP-IDF core dump into per-thread backtraces.

Both the ELF and the raw core dump formats are accepted, with or without
the flash partition header. ELF dumps are loaded into GDB, which reports
every task's frames and locals. When GDB cannot load the dump, trbr falls
back to scanning each task's stack for return addresses.`,
	Example: `  espcoredump.py read_flash --save-core coredump.bin
  trbr coredump --elf build/app.elf coredump.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runCoreDump,
}

func runCoreDump(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadSettings(cmd)
	if err != nil {
		return fail("Core dump decode failed", err)
	}
	var gdbOut ui.OutputBuffer
	params, err := decodeParams(cfg, &gdbOut)
	if err != nil {
		return fail("Core dump decode failed", err)
	}

	runner := newRunner("Core Dump Decode", "trbr coredump", params, []string{
		"Reading core dump",
		"Decoding threads",
	})

	var result *crash.CoreDumpResult
	_, err = runner.Run(cmd.Context(), func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, args[0])
		data, err := os.ReadFile(args[0])
		if err != nil {
			onStep(1, "", ui.StepFailed, "")
			return nil, fmt.Errorf("failed to read core dump: %w", err)
		}
		onStep(1, "", ui.StepComplete, strconv.Itoa(len(data))+" bytes")

		onStep(2, "", ui.StepRunning, "")
		result, err = decode.DecodeCoreDump(ctx, params, data)
		runner.SetGDBOutput(gdbOut.String())
		if err != nil {
			onStep(2, "", ui.StepFailed, "")
			return nil, err
		}
		onStep(2, "", ui.StepComplete, fmt.Sprintf("%d threads", len(result.Threads)))

		return map[string]string{"Threads": strconv.Itoa(len(result.Threads))}, nil
	})
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), result, func(w io.Writer) error {
		return format.CoreDump(w, result)
	})
}

// readInput reads the panic text from path, or from stdin.
func readInput(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "stdin" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read panic text: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("no panic text in %s", path)
	}
	return string(data), nil
}

// writeOutput writes v in the selected --format. Text output is coloured
// when stdout is a terminal.
func writeOutput(w io.Writer, v interface{}, text func(io.Writer) error) error {
	kind, err := format.ParseKind(outputFormat)
	if err != nil {
		return err
	}

	switch kind {
	case format.KindYAML:
		return format.YAML(w, v)
	case format.KindMsgpack:
		return format.Msgpack(w, v)
	}

	f, ok := w.(*os.File)
	if !ok || !ui.IsTerminal(f) {
		return text(w)
	}

	var buf bytes.Buffer
	if err := text(&buf); err != nil {
		return err
	}
	_, err = io.WriteString(w, ui.StyleDecoded(buf.String()))
	if err != nil {
		logging.Debug("Writing decoded output failed", zap.Error(err))
	}
	return err
}
