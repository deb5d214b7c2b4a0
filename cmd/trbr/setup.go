package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/trbr/internal/config"
	"github.com/muurk/trbr/internal/format"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/ui"
	"github.com/muurk/trbr/internal/urls"
)

var forceInit bool

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file without asking")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(verifySetupCmd)
	rootCmd.AddCommand(configCmd)
}

// verifySetupCmd implements the 'verify-setup' command
var verifySetupCmd = &cobra.Command{
	Use:   "verify-setup",
	Short: "Check that GDB and the firmware ELF are usable",
	Long: `Verify the decoding prerequisites.

This command checks:
  1. The toolchain GDB runs and reports its version
  2. The firmware ELF (when --elf is given) is a readable ELF for a
     supported machine`,
	Example: `  trbr verify-setup
  trbr verify-setup --target esp32c3 --elf build/app.elf`,
	RunE: runVerifySetup,
}

func runVerifySetup(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	arch, err := cfg.Arch()
	if err != nil {
		return err
	}
	toolPath := cfg.GDBPath
	if toolPath == "" {
		toolPath = gdb.DefaultGDBPath(arch)
	}

	result, err := gdb.ValidatePrerequisites(cmd.Context(), toolPath, elfPath)
	if err != nil {
		return err
	}

	if err := ui.RenderOnce(cmd.OutOrStdout(), gdb.FormatPrerequisiteReport(result)); err != nil {
		return err
	}
	if !result.AllAvailable {
		ui.PrintFailure("Setup incomplete", errors.New("some prerequisites are missing"), []string{
			"Install the ESP-IDF toolchain for your target: " + urls.Toolchain,
			"Or point --gdb-path at an existing GDB",
		})
		return fmt.Errorf("prerequisites missing")
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the trbr config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration trbr would use: the built-in defaults, the
config file, the TRBR_* environment variables and any flags given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if outputFormat == string(format.KindMsgpack) {
			return format.Msgpack(cmd.OutOrStdout(), cfg)
		}
		return format.YAML(cmd.OutOrStdout(), cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write the effective configuration to the config file, so the flags
given here become the defaults for later runs.`,
	Example: `  trbr config init --target esp32c3 --gdb-path /opt/esp/riscv32-esp-elf-gdb`,
	RunE:    runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		ok := ui.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "CONFIG FILE EXISTS", []string{
			"A config file already exists at " + path,
			"It will be replaced with the settings shown by 'trbr config show'",
		}, "Overwrite?")
		if !ok {
			ui.PrintWarning(cmd.ErrOrStderr(), "Config unchanged", map[string]string{"Path": path})
			return nil
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	ui.PrintSuccess(cmd.OutOrStdout(), "Config written", map[string]string{
		"Path":   path,
		"Target": cfg.Target,
	})
	return nil
}
