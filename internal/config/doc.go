// Package config manages the trbr user configuration file.
//
// The file holds defaults for the decode commands: the debugger path, the
// target, timeouts and the variable expansion limits. It follows
// OS-specific conventions for its location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/trbr/config.yaml or $HOME/.config/trbr/config.yaml
//   - macOS: $HOME/.config/trbr/config.yaml
//   - Windows: %LOCALAPPDATA%\trbr\config.yaml
//
// # Precedence
//
// Built-in defaults, then the file, then TRBR_GDB_PATH and
// TRBR_GLOBALS_TIMEOUT_MS, then command line flags.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	cfg.ApplyEnv()
//
// # Example
//
//	version: 1
//	gdb_path: /opt/esp/tools/riscv32-esp-elf-gdb/bin/riscv32-esp-elf-gdb
//	target: esp32c3
//	timeout: 2m0s
//	globals_timeout: 20s
//	max_var_depth: 3
package config
