// Package gdb drives the ESP toolchain debugger for crash decoding.
//
// Two modes are used. Batch scripts resolve addresses and walk a remote
// backtrace; a machine interface (MI) session reads core dumps, frame
// variables and global symbols.
//
// # Architecture
//
//	┌─────────────────┐
//	│ Decoder         │
//	│ (internal/decode)│
//	└────────┬────────┘
//	         │
//	         v
//	┌─────────────────┐          ┌─────────────────┐
//	│ Script          │          │ MISession       │  --interpreter=mi2
//	│ (ResolveAddrs)  │          │ (one command at │
//	└────────┬────────┘          │  a time)        │
//	         │                   └────────┬────────┘
//	         v                            │
//	┌─────────────────┐                   v
//	│ Executor        │          ┌─────────────────┐
//	│ gdb -batch -ex  │          │ MI grammar      │  ^done / ^error,
//	└────────┬────────┘          │ helpers         │  tuples and lists
//	         │                   └─────────────────┘
//	         v
//	┌─────────────────┐
//	│ Result          │  Locations plus script specific data
//	└─────────────────┘
//
// # Batch Scripts
//
// Scripts implement scripts.Script. Their template is rendered with
// text/template and every non-empty line becomes one -ex argument:
//
//	config := gdb.Config{
//	    GDBPath: "xtensa-esp32-elf-gdb",
//	    ELFPath: "build/app.elf",
//	    Timeout: 2 * time.Minute,
//	}
//	executor := gdb.NewExecutor(config, logger)
//	result, err := executor.Execute(ctx, scripts.NewResolveAddrsScript(addrs))
//
// gdb keeps going after a failing -ex command, so one unknown address
// does not hide the rest of the batch.
//
// # MI Sessions
//
// MISession serializes commands: the next command is written only after
// the previous one's output and (gdb) prompt have been read. An ^error
// record is returned as *MIError together with the raw output.
//
//	session := gdb.NewMISession(gdbPath, []string{"-nx", "-c", core, elf}, logger)
//	if err := session.Start(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//	threads, err := session.Threads(ctx)
//
// LoadCoreDump wraps this flow for every thread of a core dump. Globals
// are listed with -symbol-list-variables, falling back to the console
// "info variables" command on debuggers without it.
//
// # Error Handling
//
// The package defines specific error types for different failure modes:
//   - ExecutionError: gdb exited non-zero
//   - ParseError: output did not have the expected shape
//   - PrerequisiteError: gdb or the firmware ELF is missing
//   - TimeoutError: the configured timeout elapsed
//   - MIError: an MI command returned ^error
//
// Cancellation of the caller's context is reported as ErrAborted on every
// path, whatever the process returned.
//
// # Prerequisites
//
// Use ValidatePrerequisites to check the debugger and the firmware image
// before decoding.
package gdb
