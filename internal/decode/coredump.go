package decode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/coredump"
	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/stackscan"
)

// DecodeCoreDump decodes every thread of a core dump. ELF dumps are read by
// gdb; flat dumps, and ELF dumps gdb finds no threads in, are decoded from
// the recorded task registers and a scan of each task's stack.
func DecodeCoreDump(ctx context.Context, p Params, data []byte) (*crash.CoreDumpResult, error) {
	p = p.withDefaults()
	dump, err := coredump.Parse(data, p.Arch)
	if err != nil {
		return nil, err
	}
	p.Logger.Debug("Parsed core dump",
		zap.String("format", dump.Format.String()),
		zap.Int("tasks", len(dump.Tasks)),
		zap.Int("segments", len(dump.Segments)),
	)

	var result *crash.CoreDumpResult
	if dump.Format == coredump.FormatELF {
		result, err = decodeWithGDB(ctx, p, dump)
		switch {
		case ctx.Err() != nil:
			return nil, gdb.Aborted(ctx.Err())
		case errors.Is(err, gdb.ErrAborted):
			return nil, err
		case isPrerequisite(err):
			return nil, err
		case err != nil:
			p.Logger.Warn("gdb could not read the core dump, scanning task stacks instead", zap.Error(err))
			result = nil
		case len(result.Threads) == 0:
			p.Logger.Warn("gdb found no threads in the core dump, scanning task stacks instead")
			result = nil
		}
	}
	if result == nil {
		result, err = decodeHeuristic(ctx, p, dump)
		if err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, gdb.Aborted(ctx.Err())
	}

	for i := range result.Threads {
		Normalize(&result.Threads[i].Result)
	}
	result.Overview = overview(result.Threads)
	return result, nil
}

func isPrerequisite(err error) bool {
	var pe *gdb.PrerequisiteError
	return errors.As(err, &pe)
}

// decodeWithGDB writes the embedded ELF core to a private temp directory
// and loads it in an MI session.
func decodeWithGDB(ctx context.Context, p Params, dump *coredump.Dump) (*crash.CoreDumpResult, error) {
	image, err := dump.EmbeddedELF()
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "trbr-coredump-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	corePath := filepath.Join(dir, "core.elf")
	if err := os.WriteFile(corePath, image, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write core file: %w", err)
	}

	loaded, err := gdb.LoadCoreDump(ctx, gdb.Config{
		GDBPath: p.ToolPath,
		ELFPath: p.ELFPath,
		Timeout: p.Config.Timeout,
	}, corePath, gdb.CoreDumpOptions{
		Arch:           p.Arch,
		Limits:         p.Config.VarLimits,
		Globals:        !p.Config.SkipGlobals,
		GlobalsTimeout: p.Config.GlobalsTimeout,
	}, p.Logger.Named("mi"))
	if err != nil {
		return nil, err
	}

	result := &crash.CoreDumpResult{Threads: make([]crash.ThreadResult, 0, len(loaded.Threads))}
	for _, t := range loaded.Threads {
		result.Threads = append(result.Threads, crash.ThreadResult{
			ThreadID: t.ID,
			TCB:      t.TCB,
			Current:  t.Current,
			Result: crash.DecodeResult{
				Fault:     threadFault(t.ID, t.Frames, t.PC, t.HasPC),
				Registers: t.Registers,
				Frames:    t.Frames,
			},
		})
	}
	attachGlobals(result.Threads, loaded.Globals)
	return result, nil
}

type scannedTask struct {
	task  crash.CoreDumpTask
	pc    uint32
	hasPC bool
	addrs []uint32
}

// decodeHeuristic builds one thread per task carrying registers. The
// frames are the program counter followed by every code-looking word of
// the task's stack, all resolved in one batch.
func decodeHeuristic(ctx context.Context, p Params, dump *coredump.Dump) (*crash.CoreDumpResult, error) {
	isCode := stackscan.DefaultCode
	if p.Arch.IsRISCV() && p.ELFPath != "" {
		if filter, err := stackscan.LoadCallSites(p.ELFPath); err != nil {
			p.Logger.Debug("Call-site filter unavailable", zap.Error(err))
		} else {
			isCode = stackscan.And(stackscan.DefaultCode, filter)
		}
	}

	var (
		tasks []scannedTask
		addrs []uint32
	)
	for _, task := range dump.Tasks {
		if !task.HasRegisters {
			p.Logger.Warn("Skipping task without registers", zap.String("tcb", fmt.Sprintf("0x%08x", task.TCB)))
			continue
		}
		st := scannedTask{task: task}
		st.pc, st.hasPC = task.Registers.Get(p.Arch.ProgramCounter())
		if st.hasPC {
			addrs = append(addrs, st.pc)
		}
		st.addrs = scanTask(p, dump, task, isCode)
		addrs = append(addrs, st.addrs...)
		tasks = append(tasks, st)
	}

	resolved, err := resolveAddrs(ctx, p, addrs)
	if err != nil {
		return nil, err
	}
	globals, err := listGlobals(ctx, p, true)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gdb.Aborted(ctx.Err())
		}
		p.Logger.Warn("Global variables unavailable", zap.Error(err))
	}

	result := &crash.CoreDumpResult{Threads: make([]crash.ThreadResult, 0, len(tasks))}
	for i, st := range tasks {
		id := strconv.Itoa(i + 1)
		frames := make([]crash.StackFrame, 0, len(st.addrs)+1)
		if st.hasPC {
			frames = append(frames, crash.StackFrame{Location: locate(resolved, st.pc)})
		}
		for _, addr := range st.addrs {
			frames = append(frames, crash.StackFrame{Location: locate(resolved, addr)})
		}
		result.Threads = append(result.Threads, crash.ThreadResult{
			ThreadID: id,
			TCB:      st.task.TCB,
			Current:  i == 0,
			Result: crash.DecodeResult{
				Fault:     threadFault(id, frames, st.pc, st.hasPC),
				Registers: st.task.Registers,
				Frames:    frames,
			},
		})
	}
	attachGlobals(result.Threads, globals)
	return result, nil
}

func scanTask(p Params, dump *coredump.Dump, task crash.CoreDumpTask, isCode stackscan.IsCode) []uint32 {
	sp, ok := task.Registers.Get(p.Arch.StackPointer())
	if !ok {
		return nil
	}
	seg, ok := dump.StackOf(task)
	if !ok {
		p.Logger.Debug("No stack segment for task", zap.String("tcb", fmt.Sprintf("0x%08x", task.TCB)))
		return nil
	}
	end, err := safecast.Conv[uint32](seg.End())
	if err != nil {
		end = ^uint32(0)
	}
	return stackscan.Scan(seg.Data, sp, seg.Addr, end, isCode)
}

// threadFault is the per-thread fault line: the thread id as core and the
// innermost frame, or the bare program counter, as PC.
func threadFault(id string, frames []crash.StackFrame, pc uint32, hasPC bool) *crash.FaultInfo {
	core, _ := strconv.Atoi(id)
	fault := &crash.FaultInfo{CoreID: core}
	switch {
	case len(frames) > 0:
		top := frames[0].Location
		fault.PC = &top
	case hasPC:
		loc := crash.Unresolved(pc)
		fault.PC = &loc
	}
	return fault
}

// attachGlobals hangs the globals off the current thread, or the first one.
func attachGlobals(threads []crash.ThreadResult, globals []crash.Variable) {
	if len(threads) == 0 || len(globals) == 0 {
		return
	}
	idx := 0
	for i, t := range threads {
		if t.Current {
			idx = i
			break
		}
	}
	threads[idx].Result.Globals = globals
}

func overview(threads []crash.ThreadResult) []crash.OverviewRow {
	rows := make([]crash.OverviewRow, 0, len(threads))
	for _, t := range threads {
		row := crash.OverviewRow{Current: t.Current, ThreadID: t.ThreadID, TCB: t.TCB}
		if len(t.Result.Frames) > 0 {
			top := t.Result.Frames[0].Location
			row.Top = &top
		}
		rows = append(rows, row)
	}
	return rows
}
