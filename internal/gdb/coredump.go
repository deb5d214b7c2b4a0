package gdb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/target"
)

// maxFrameArgs is the highest frame level whose arguments are listed.
const maxFrameArgs = 100

var targetProcess = regexp.MustCompile(`^process\s+(\d+)$`)

// ThreadInfo is one entry of -thread-info. On a core dump every FreeRTOS
// task is a thread whose process id is its TCB address.
type ThreadInfo struct {
	ID      string
	TCB     uint32
	Current bool
}

// ThreadState is the register and stack view of one thread.
type ThreadState struct {
	ThreadInfo
	Registers crash.RegisterSet
	PC        uint32
	HasPC     bool
	Frames    []crash.StackFrame
}

// CoreDumpOptions controls LoadCoreDump.
type CoreDumpOptions struct {
	Arch target.Arch
	// Limits bounds local variable expansion. Zero uses DefaultVarLimits.
	Limits  VarLimits
	Globals bool
	// GlobalsTimeout bounds the globals listing. Zero uses GlobalsTimeout.
	GlobalsTimeout time.Duration
}

// CoreDump is the debugger's view of a core dump.
type CoreDump struct {
	Threads []ThreadState
	Globals []crash.Variable
}

// LoadCoreDump opens corePath against the firmware ELF in an MI session
// and reads every thread.
func LoadCoreDump(ctx context.Context, config Config, corePath string, opts CoreDumpOptions, logger *zap.Logger) (*CoreDump, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Limits == (VarLimits{}) {
		opts.Limits = DefaultVarLimits()
	}
	session := NewMISession(config.GDBPath, []string{"-nx", "-c", corePath, config.ELFPath}, logger)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Close()

	threads, err := session.Threads(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("Core dump threads", zap.Int("count", len(threads)))

	dump := &CoreDump{Threads: make([]ThreadState, 0, len(threads))}
	for _, t := range threads {
		state, err := session.ThreadState(ctx, t, opts.Arch, opts.Limits)
		if err != nil {
			return nil, err
		}
		dump.Threads = append(dump.Threads, *state)
	}

	if opts.Globals && !strings.Contains(config.GDBPath, lx106GDB) {
		timeout := opts.GlobalsTimeout
		if timeout <= 0 {
			timeout = GlobalsTimeout(DefaultGlobalsTimeout)
		}
		gctx, cancel := context.WithTimeout(ctx, timeout)
		vars, err := session.Globals(gctx, true)
		cancel()
		switch {
		case ctx.Err() != nil:
			return nil, Aborted(ctx.Err())
		case err != nil:
			// a timed out listing kills the session; threads are already read
			logger.Warn("Global variables unavailable", zap.Error(err))
		default:
			dump.Globals = vars
		}
	}

	return dump, nil
}

// Threads lists the threads of the inferior.
func (s *MISession) Threads(ctx context.Context) ([]ThreadInfo, error) {
	raw, err := s.Exec(ctx, "-thread-info")
	if err != nil {
		return nil, err
	}
	current := ParseResultRecord(raw)["current-thread-id"]

	list, ok := ExtractList(raw, "threads")
	if !ok {
		return nil, nil
	}
	var threads []ThreadInfo
	for _, t := range ParseTupleList(list, "") {
		m := targetProcess.FindStringSubmatch(t["target-id"])
		if t["id"] == "" || m == nil {
			continue
		}
		tcb, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		threads = append(threads, ThreadInfo{
			ID:      t["id"],
			TCB:     uint32(tcb),
			Current: t["id"] == current,
		})
	}
	return threads, nil
}

// ThreadState selects thread t and reads its registers, frames, frame
// arguments and the locals of the innermost frame.
func (s *MISession) ThreadState(ctx context.Context, t ThreadInfo, arch target.Arch, limits VarLimits) (*ThreadState, error) {
	if _, err := s.Exec(ctx, "-thread-select "+t.ID); err != nil {
		return nil, err
	}

	state := &ThreadState{ThreadInfo: t}

	regs, err := s.registers(ctx, arch)
	if err != nil {
		return nil, err
	}
	state.Registers = regs
	state.PC, state.HasPC = regs.Get(arch.ProgramCounter())

	raw, err := s.Exec(ctx, "-stack-list-frames")
	if err != nil {
		return nil, err
	}
	state.Frames = parseFrames(raw)

	raw, err = s.Exec(ctx, fmt.Sprintf("-stack-list-arguments --simple-values 0 %d", maxFrameArgs))
	if err != nil {
		return nil, err
	}
	args := parseFrameArgs(raw)
	for i := range state.Frames {
		if a, ok := args[i]; ok {
			state.Frames[i].Args = a
		}
	}

	if len(state.Frames) > 0 {
		locals, err := s.locals(ctx, limits)
		if err != nil {
			return nil, err
		}
		state.Frames[0].Locals = locals
	}

	return state, nil
}

// gdbRegisterAliases maps gdb's ABI register names onto the names used in
// target register lists.
var gdbRegisterAliases = map[string]string{
	"FP": "S0",
}

// registers maps -data-list-register-values onto the architecture's
// register names. gdb names are upper-cased and aliased; its "pc" fills
// the architecture's program counter slot.
func (s *MISession) registers(ctx context.Context, arch target.Arch) (crash.RegisterSet, error) {
	raw, err := s.Exec(ctx, "-data-list-register-names")
	if err != nil {
		return nil, err
	}
	list, _ := ExtractList(raw, "register-names")
	names := SplitItems(list)
	for i, n := range names {
		name := strings.ToUpper(strings.Trim(n, `"`))
		if alias, ok := gdbRegisterAliases[name]; ok {
			name = alias
		}
		names[i] = name
	}

	raw, err = s.Exec(ctx, "-data-list-register-values x")
	if err != nil {
		return nil, err
	}
	list, _ = ExtractList(raw, "register-values")

	values := make(map[string]uint32)
	for _, t := range ParseTupleList(list, "") {
		n, err := strconv.Atoi(t["number"])
		if err != nil || n < 0 || n >= len(names) || names[n] == "" {
			continue
		}
		v, err := crash.ParseAddr(t["value"])
		if err != nil {
			continue
		}
		values[names[n]] = v
	}
	if pc, ok := values["PC"]; ok {
		if _, has := values[arch.ProgramCounter()]; !has {
			values[arch.ProgramCounter()] = pc
		}
	}
	return crash.NewRegisterSet(arch.CoreRegisters(), values), nil
}

// locals lists the selected frame's locals, expanding compound values.
func (s *MISession) locals(ctx context.Context, limits VarLimits) ([]crash.Variable, error) {
	raw, err := s.Exec(ctx, "-stack-list-locals --simple-values")
	if err != nil {
		return nil, err
	}
	list, ok := ExtractList(raw, "locals")
	if !ok {
		return nil, nil
	}

	var out []crash.Variable
	for _, t := range ParseTupleList(list, "") {
		v := crash.Variable{Name: t["name"], Type: t["type"], Value: t["value"], Scope: "local"}
		if _, simple := t["value"]; !simple && v.Name != "" {
			expanded, err := s.ExpandVariable(ctx, v.Name, limits)
			if err == nil {
				expanded.Scope = v.Scope
				v = expanded
			} else if ctx.Err() != nil {
				return nil, Aborted(ctx.Err())
			} else {
				s.logger.Debug("Failed to expand local", zap.String("name", v.Name), zap.Error(err))
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// parseFrames converts a -stack-list-frames result.
func parseFrames(raw string) []crash.StackFrame {
	list, ok := ExtractList(raw, "stack")
	if !ok {
		return nil
	}
	var frames []crash.StackFrame
	for _, f := range ParseTupleList(list, "frame") {
		loc := crash.Location{Line: crash.UnknownLine}
		if addr, err := crash.ParseAddr(f["addr"]); err == nil {
			loc.Addr = addr
			loc.HasAddr = true
		}
		file := f["fullname"]
		if file == "" {
			file = f["file"]
		}
		if f["line"] != "" {
			loc.Line = f["line"]
		}
		if f["func"] != "" && file != "" {
			loc.Method = f["func"]
			loc.File = file
		}
		frames = append(frames, crash.StackFrame{Location: loc})
	}
	return frames
}

// parseFrameArgs converts a -stack-list-arguments result keyed by frame
// level.
func parseFrameArgs(raw string) map[int][]crash.Variable {
	out := make(map[int][]crash.Variable)
	list, ok := ExtractList(raw, "stack-args")
	if !ok {
		return out
	}
	for _, f := range ParseTupleList(list, "frame") {
		level, err := strconv.Atoi(f["level"])
		if err != nil {
			continue
		}
		content, ok := StripList(f["args"])
		if !ok {
			continue
		}
		var args []crash.Variable
		for _, a := range ParseTupleList(content, "") {
			args = append(args, crash.Variable{Name: a["name"], Type: a["type"], Value: a["value"], Scope: "argument"})
		}
		out[level] = args
	}
	return out
}
