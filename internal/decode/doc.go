// Package decode turns panic output and core dumps into decode results.
//
// A Decoder is registered per target. Xtensa panics carry their own
// backtrace and only need address resolution; RISC-V panics carry a
// register dump and a stack snapshot, which a local gdbstub.Server hands
// to gdb so it can unwind the stack:
//
//	result, err := decode.Decode(ctx, decode.Params{
//	    ToolPath: "riscv32-esp-elf-gdb",
//	    ELFPath:  "build/app.elf",
//	    Arch:     target.ESP32C3,
//	    Config:   decode.DefaultConfig(),
//	    Logger:   logger,
//	}, decode.Input{Text: serialOutput})
//
// Address resolution and the globals listing run concurrently. The first
// failure cancels the rest, and a cancelled context always ends in
// gdb.ErrAborted.
//
// Every result passes through Normalize before it is returned.
package decode
