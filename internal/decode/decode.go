package decode

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/gdb/scripts"
	"github.com/muurk/trbr/internal/target"
)

// Config carries the tunables of one decode run.
type Config struct {
	// Timeout bounds each batch gdb run. Zero disables the limit.
	Timeout time.Duration
	// GlobalsTimeout bounds global symbol listing. Zero uses the gdb
	// package default and its environment override.
	GlobalsTimeout time.Duration
	// SkipGlobals disables global symbol listing.
	SkipGlobals bool
	// AllowInfoVariables enables the "info variables" fallback for panic
	// decoding. Core dumps always allow it.
	AllowInfoVariables bool
	// VarLimits bounds local variable expansion in core dumps.
	VarLimits gdb.VarLimits
	// Echo receives a copy of batch gdb output.
	Echo io.Writer
}

// DefaultConfig returns the default decode tunables.
func DefaultConfig() Config {
	return Config{
		Timeout:   gdb.DefaultTimeout,
		VarLimits: gdb.DefaultVarLimits(),
	}
}

// Params identifies the toolchain and firmware a decode runs against.
type Params struct {
	// ToolPath is the toolchain gdb.
	ToolPath string
	// ELFPath is the firmware image the crash came from.
	ELFPath string
	// Arch selects the decoder. Empty means target.Default.
	Arch   target.Arch
	Config Config
	Logger *zap.Logger
}

// Input is the panic text to decode.
type Input struct {
	Text string
}

// Decoder turns one panic into a decode result.
type Decoder interface {
	Decode(ctx context.Context, params Params, input Input) (*crash.DecodeResult, error)
}

var (
	xtensa = &XtensaDecoder{}
	riscv  = &RISCVDecoder{}
)

var decoders = map[target.Arch]Decoder{
	target.Xtensa:  xtensa,
	target.ESP32C2: riscv,
	target.ESP32C3: riscv,
	target.ESP32C6: riscv,
	target.ESP32H2: riscv,
	target.ESP32H4: riscv,
	target.ESP32P4: riscv,
}

// Lookup returns the decoder registered for arch.
func Lookup(arch target.Arch) (Decoder, error) {
	if arch == "" {
		arch = target.Default
	}
	d, ok := decoders[arch]
	if !ok {
		return nil, &target.UnsupportedError{Key: string(arch)}
	}
	return d, nil
}

// Decode runs the decoder for params.Arch on input and normalizes the
// result. Cancellation of ctx wins over any result.
func Decode(ctx context.Context, params Params, input Input) (*crash.DecodeResult, error) {
	params = params.withDefaults()
	decoder, err := Lookup(params.Arch)
	if err != nil {
		return nil, err
	}

	params.Logger.Debug("Decoding panic",
		zap.String("arch", params.Arch.String()),
		zap.String("elf", params.ELFPath),
		zap.String("gdb_path", params.ToolPath),
	)

	result, err := decoder.Decode(ctx, params, input)
	if ctx.Err() != nil {
		return nil, gdb.Aborted(ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	Normalize(result)
	return result, nil
}

func (p Params) withDefaults() Params {
	if p.Arch == "" {
		p.Arch = target.Default
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.ToolPath == "" {
		p.ToolPath = gdb.DefaultGDBPath(p.Arch)
	}
	return p
}

func (p Params) executor() *gdb.Executor {
	return gdb.NewExecutor(gdb.Config{
		GDBPath: p.ToolPath,
		ELFPath: p.ELFPath,
		Timeout: p.Config.Timeout,
		Echo:    p.Config.Echo,
	}, p.Logger.Named("gdb"))
}

// resolveAddrs resolves addrs in one batch run. An empty batch skips gdb.
func resolveAddrs(ctx context.Context, p Params, addrs []uint32) (*scripts.Result, error) {
	if len(addrs) == 0 {
		return scripts.NewResult(), nil
	}
	return p.executor().Execute(ctx, scripts.NewResolveAddrsScript(addrs))
}

// listGlobals lists the firmware globals unless disabled.
func listGlobals(ctx context.Context, p Params, allowInfo bool) ([]crash.Variable, error) {
	if p.Config.SkipGlobals {
		return nil, nil
	}
	return gdb.ListGlobals(ctx, p.ToolPath, p.ELFPath, gdb.GlobalsOptions{
		Timeout:            p.Config.GlobalsTimeout,
		AllowInfoVariables: allowInfo || p.Config.AllowInfoVariables,
	}, p.Logger.Named("globals"))
}

// locate returns the resolved location of addr, or the "??" placeholder.
func locate(r *scripts.Result, addr uint32) crash.Location {
	if r != nil {
		if loc, ok := r.Lookup(addr); ok {
			return loc
		}
	}
	return crash.Unresolved(addr)
}

func locatePtr(r *scripts.Result, addr *uint32) *crash.Location {
	if addr == nil {
		return nil
	}
	loc := locate(r, *addr)
	return &loc
}
