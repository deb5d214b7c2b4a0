package decode

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/gdb/scripts"
	"github.com/muurk/trbr/internal/panictext"
	"github.com/muurk/trbr/internal/target"
)

// ErrNoPanic is returned when the input holds neither registers nor a
// backtrace.
var ErrNoPanic = errors.New("no panic output found in input")

// XtensaDecoder decodes Guru Meditation and ESP8266 exception output. The
// backtrace is printed by the firmware itself, so only address resolution
// is needed.
type XtensaDecoder struct{}

// Decode implements Decoder.
func (d *XtensaDecoder) Decode(ctx context.Context, p Params, in Input) (*crash.DecodeResult, error) {
	p = p.withDefaults()
	panicked := panictext.ParseXtensa(in.Text)
	if len(panicked.Registers) == 0 && len(panicked.Backtrace) == 0 {
		return nil, ErrNoPanic
	}
	alloc := panictext.ParseAllocFailure(in.Text)

	p.Logger.Debug("Parsed Xtensa panic",
		zap.String("dialect", panicked.Dialect.String()),
		zap.Int("core", panicked.CoreID),
		zap.Int("registers", len(panicked.Registers)),
		zap.Int("backtrace", len(panicked.Backtrace)),
	)

	addrs := make([]uint32, 0, len(panicked.Backtrace)+3)
	if panicked.PC != nil {
		addrs = append(addrs, *panicked.PC)
	}
	if panicked.FaultAddr != nil {
		addrs = append(addrs, *panicked.FaultAddr)
	}
	addrs = append(addrs, panicked.Backtrace...)
	if alloc != nil && alloc.HasAddr {
		addrs = append(addrs, alloc.Addr)
	}

	var (
		resolved *scripts.Result
		globals  []crash.Variable
	)
	g, gctx := errgroup.WithContext(ctx)
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
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &crash.DecodeResult{
		Fault:     xtensaFault(panicked, resolved),
		Registers: panicked.Registers,
		Frames:    make([]crash.StackFrame, 0, len(panicked.Backtrace)),
		Alloc:     allocInfo(alloc, resolved),
		Globals:   globals,
	}
	for _, addr := range panicked.Backtrace {
		result.Frames = append(result.Frames, crash.StackFrame{Location: locate(resolved, addr)})
	}
	return result, nil
}

func xtensaFault(p *panictext.XtensaPanic, r *scripts.Result) *crash.FaultInfo {
	fault := &crash.FaultInfo{
		CoreID:    p.CoreID,
		PC:        locatePtr(r, p.PC),
		FaultAddr: locatePtr(r, p.FaultAddr),
		FaultCode: p.FaultCode,
	}
	if p.FaultCode != nil {
		fault.Message = target.XtensaException(*p.FaultCode)
	}
	return fault
}

func allocInfo(a *panictext.AllocFailure, r *scripts.Result) *crash.AllocInfo {
	if a == nil {
		return nil
	}
	info := &crash.AllocInfo{Size: a.Size}
	if a.HasAddr {
		info.Location = locate(r, a.Addr)
	}
	return info
}
