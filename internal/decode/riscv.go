package decode

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/gdb/scripts"
	"github.com/muurk/trbr/internal/gdbstub"
	"github.com/muurk/trbr/internal/panictext"
)

// RISCVDecoder decodes RISC-V register dumps. The firmware prints no
// backtrace, so gdb unwinds the captured stack through a local stub
// serving the registers and stack memory.
type RISCVDecoder struct{}

// Decode implements Decoder.
func (d *RISCVDecoder) Decode(ctx context.Context, p Params, in Input) (*crash.DecodeResult, error) {
	p = p.withDefaults()
	panicked, err := panictext.ParseRISCV(in.Text)
	if err != nil {
		return nil, err
	}
	alloc := panictext.ParseAllocFailure(in.Text)
	pc, hasPC := panicked.Registers.Get(p.Arch.ProgramCounter())

	p.Logger.Debug("Parsed RISC-V panic",
		zap.Int("core", panicked.CoreID),
		zap.Int("registers", len(panicked.Registers)),
		zap.Int("stack_bytes", len(panicked.Stack)),
	)

	stub := gdbstub.New(panicked.Registers, panicked.StackBase, panicked.Stack, p.Logger.Named("stub"))
	defer stub.Close()
	addr, err := stub.Listen(ctx)
	if err != nil {
		return nil, err
	}
	served := make(chan error, 1)
	go func() {
		served <- stub.Serve(ctx)
	}()

	addrs := make([]uint32, 0, 3)
	if hasPC {
		addrs = append(addrs, pc)
	}
	if panicked.FaultAddr != nil {
		addrs = append(addrs, *panicked.FaultAddr)
	}
	if alloc != nil && alloc.HasAddr {
		addrs = append(addrs, alloc.Addr)
	}

	var (
		backtrace *scripts.Result
		resolved  *scripts.Result
		globals   []crash.Variable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		backtrace, err = p.executor().Execute(gctx, scripts.NewRemoteBacktraceScript(addr.IP.String(), addr.Port))
		return err
	})
	g.Go(func() error {
		var err error
		resolved, err = resolveAddrs(gctx, p, addrs)
		return err
	})
	g.Go(func() error {
		var err error
		globals, err = listGlobals(gctx, p, false)
		return err
	})
	werr := g.Wait()

	stub.Close()
	if err := <-served; err != nil {
		p.Logger.Debug("Stub server stopped", zap.Error(err))
	}
	if werr != nil {
		return nil, werr
	}

	if reason := backtrace.GetDataString("stopped"); reason != "" {
		p.Logger.Debug("Backtrace stopped", zap.String("reason", reason))
	}

	fault := &crash.FaultInfo{
		CoreID:    panicked.CoreID,
		FaultAddr: locatePtr(resolved, panicked.FaultAddr),
		FaultCode: panicked.FaultCode,
	}
	if hasPC {
		fault.PC = locatePtr(resolved, &pc)
	}
	if panicked.FaultCode != nil {
		fault.Message = p.Arch.ExceptionMessage(*panicked.FaultCode)
	}

	result := &crash.DecodeResult{
		Fault:     fault,
		Registers: panicked.Registers,
		Frames:    make([]crash.StackFrame, 0, len(backtrace.Locations)),
		Alloc:     allocInfo(alloc, resolved),
		Globals:   globals,
	}
	for _, loc := range backtrace.Locations {
		result.Frames = append(result.Frames, crash.StackFrame{Location: loc})
	}
	if len(result.Frames) == 0 {
		p.Logger.Warn("gdb produced no backtrace frames", zap.String("elf", p.ELFPath))
	}
	return result, nil
}
