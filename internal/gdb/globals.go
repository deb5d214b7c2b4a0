package gdb

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/crash"
)

const (
	// DefaultGlobalsTimeout bounds global symbol listing.
	DefaultGlobalsTimeout = 20 * time.Second

	// GlobalsTimeoutEnvVar overrides the globals timeout in milliseconds.
	GlobalsTimeoutEnvVar = "TRBR_GLOBALS_TIMEOUT_MS"

	// lx106GDB cannot list symbols reliably and hangs on some ELF files.
	lx106GDB = "xtensa-lx106-elf-gdb"

	globalScope = "global"
)

var (
	infoVarAddr  = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(.+)$`)
	infoVarPtr   = regexp.MustCompile(`^[*&]+`)
	infoVarArray = regexp.MustCompile(`^(.*)(\[[^\]]+\])$`)
)

// GlobalsOptions controls global symbol listing.
type GlobalsOptions struct {
	// Timeout bounds the whole listing. Zero uses GlobalsTimeout.
	Timeout time.Duration
	// AllowInfoVariables enables the console "info variables" fallback
	// when the MI symbol commands are unsupported.
	AllowInfoVariables bool
}

// GlobalsTimeout returns the TRBR_GLOBALS_TIMEOUT_MS override, or def
// when unset or invalid.
func GlobalsTimeout(def time.Duration) time.Duration {
	raw := os.Getenv(GlobalsTimeoutEnvVar)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// ListGlobals lists the global and static variables of the firmware ELF
// in a dedicated MI session. Any failure other than cancellation of ctx
// degrades to an empty list.
func ListGlobals(ctx context.Context, gdbPath, elfPath string, opts GlobalsOptions, logger *zap.Logger) ([]crash.Variable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.Contains(gdbPath, lx106GDB) {
		logger.Debug("Skipping globals for xtensa-lx106 gdb", zap.String("gdb_path", gdbPath))
		return nil, nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = GlobalsTimeout(DefaultGlobalsTimeout)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := NewMISession(gdbPath, []string{"-nx", elfPath}, logger)
	vars, err := func() ([]crash.Variable, error) {
		if err := session.Start(runCtx); err != nil {
			return nil, err
		}
		defer session.Close()
		return session.Globals(runCtx, opts.AllowInfoVariables)
	}()

	if ctx.Err() != nil {
		return nil, Aborted(ctx.Err())
	}
	if err != nil {
		logger.Warn("Global variables unavailable",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil, nil
	}
	return vars, nil
}

// Globals lists global and static variables through the symbol commands,
// falling back to "info variables" when they are unsupported and
// allowInfo is set.
func (s *MISession) Globals(ctx context.Context, allowInfo bool) ([]crash.Variable, error) {
	globals, globalsUnsupported, err := s.symbolList(ctx, "--global")
	if err != nil {
		return nil, err
	}
	statics, staticsUnsupported, err := s.symbolList(ctx, "--static")
	if err != nil {
		return nil, err
	}
	combined := append(globals, statics...)
	unsupported := globalsUnsupported || staticsUnsupported

	s.logger.Debug("MI symbol lists",
		zap.Int("globals", len(globals)),
		zap.Int("statics", len(statics)),
		zap.Bool("unsupported", unsupported),
	)

	if len(combined) == 0 && unsupported && !allowInfo {
		s.logger.Debug("Skipping info variables fallback")
		return nil, nil
	}

	if len(combined) == 0 {
		raw, err := s.Exec(ctx, `-interpreter-exec console "info variables"`)
		if err != nil {
			return nil, err
		}
		combined = ParseInfoVariables(ConsoleText(raw))
		s.logger.Debug("info variables", zap.Int("count", len(combined)))
	}

	return DedupeGlobals(combined), nil
}

// symbolList runs -symbol-list-variables with flag. unsupported reports an
// undefined-command error; other MI errors yield an empty list.
func (s *MISession) symbolList(ctx context.Context, flag string) (vars []crash.Variable, unsupported bool, err error) {
	raw, err := s.Exec(ctx, "-symbol-list-variables "+flag)
	var miErr *MIError
	if errors.As(err, &miErr) {
		return nil, miErr.Unsupported(), nil
	}
	if err != nil {
		return nil, false, err
	}

	list, ok := ExtractList(raw, "variables")
	if !ok {
		return nil, false, nil
	}
	for _, t := range ParseTupleList(list, "") {
		if t["name"] == "" {
			continue
		}
		v := crash.Variable{Name: t["name"], Type: t["type"], Scope: globalScope}
		if addr := t["addr"]; addr != "" {
			v.Address = addr
		} else {
			v.Address = t["address"]
		}
		vars = append(vars, v)
	}
	return vars, false, nil
}

// ParseInfoVariables parses the console output of "info variables".
func ParseInfoVariables(text string) []crash.Variable {
	var vars []crash.Variable
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasSuffix(line, ":") ||
			strings.HasPrefix(line, "All defined variables") ||
			strings.HasPrefix(line, "File ") ||
			strings.HasPrefix(line, "Non-debugging symbols") {
			continue
		}
		if v, ok := parseVariableLine(line); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// parseVariableLine handles "0x3ffb0000  name" (non-debugging symbols) and
// C declarations such as "static const char *tag[4];".
func parseVariableLine(line string) (crash.Variable, bool) {
	if m := infoVarAddr.FindStringSubmatch(line); m != nil {
		return crash.Variable{Name: strings.TrimSpace(m[2]), Address: m[1], Scope: globalScope}, true
	}

	// debug entries may carry a "NN:" line number prefix
	if n, rest, ok := strings.Cut(line, ":"); ok && isDigits(n) {
		line = strings.TrimSpace(rest)
	}

	decl := strings.TrimSpace(strings.TrimSuffix(line, ";"))
	sp := strings.LastIndex(decl, " ")
	if sp < 0 {
		return crash.Variable{}, false
	}
	name := strings.TrimSpace(decl[sp+1:])
	typ := strings.TrimSpace(decl[:sp])

	if p := infoVarPtr.FindString(name); p != "" {
		name = name[len(p):]
		typ = strings.TrimSpace(typ + " " + p)
	}
	if m := infoVarArray.FindStringSubmatch(name); m != nil {
		name = m[1]
		typ = strings.TrimSpace(typ + " " + m[2])
	}
	if name == "" {
		return crash.Variable{}, false
	}
	return crash.Variable{Name: name, Type: typ, Scope: globalScope}, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DedupeGlobals keeps one entry per name, preferring entries that carry an
// address and then a type. First-seen order is kept.
func DedupeGlobals(vars []crash.Variable) []crash.Variable {
	index := make(map[string]int, len(vars))
	out := make([]crash.Variable, 0, len(vars))
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		i, seen := index[v.Name]
		if !seen {
			index[v.Name] = len(out)
			out = append(out, v)
			continue
		}
		existing := out[i]
		if (existing.Address == "" && v.Address != "") || (existing.Type == "" && v.Type != "") {
			out[i] = merge(existing, v)
		}
	}
	return out
}

func merge(base, over crash.Variable) crash.Variable {
	if over.Type != "" {
		base.Type = over.Type
	}
	if over.Address != "" {
		base.Address = over.Address
	}
	if over.Value != "" {
		base.Value = over.Value
	}
	if over.Scope != "" {
		base.Scope = over.Scope
	}
	return base
}
