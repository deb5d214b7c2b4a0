package gdb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/gdb/scripts"
	"github.com/muurk/trbr/internal/target"
)

// mockScript implements scripts.Script for testing
type mockScript struct {
	name      string
	template  string
	params    map[string]interface{}
	parseFunc func(output string) (*scripts.Result, error)
}

func (m *mockScript) Name() string {
	return m.name
}

func (m *mockScript) Template() string {
	return m.template
}

func (m *mockScript) Params() map[string]interface{} {
	return m.params
}

func (m *mockScript) Parse(output string) (*scripts.Result, error) {
	if m.parseFunc != nil {
		return m.parseFunc(output)
	}
	result := scripts.NewResult()
	result.Success = true
	return result, nil
}

// fakeGDB writes an executable shell script standing in for gdb.
func fakeGDB(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-ins need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-gdb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake gdb: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.GDBPath != "xtensa-esp32-elf-gdb" {
		t.Errorf("expected GDBPath to be 'xtensa-esp32-elf-gdb', got %s", config.GDBPath)
	}
	if config.Timeout != DefaultTimeout {
		t.Errorf("expected Timeout to be %v, got %v", DefaultTimeout, config.Timeout)
	}
	if config.Echo != nil {
		t.Error("expected Echo to be nil")
	}
}

func TestDefaultGDBPath(t *testing.T) {
	tests := []struct {
		arch target.Arch
		want string
	}{
		{target.Xtensa, "xtensa-esp32-elf-gdb"},
		{target.ESP32C3, "riscv32-esp-elf-gdb"},
		{target.ESP32C6, "riscv32-esp-elf-gdb"},
		{target.ESP32P4, "riscv32-esp-elf-gdb"},
	}

	for _, tt := range tests {
		t.Run(string(tt.arch), func(t *testing.T) {
			if got := DefaultGDBPath(tt.arch); got != tt.want {
				t.Errorf("DefaultGDBPath(%s) = %q, want %q", tt.arch, got, tt.want)
			}
		})
	}
}

func TestNewExecutor(t *testing.T) {
	executor := NewExecutor(DefaultConfig(), nil)
	if executor.logger == nil {
		t.Error("expected a nop logger when none is given")
	}
	if executor.Config().GDBPath != "xtensa-esp32-elf-gdb" {
		t.Errorf("unexpected config: %+v", executor.Config())
	}
}

func TestSplitCommands(t *testing.T) {
	rendered := "set pagination off\n\n  # comment\ninfo line *0x400d1234  \n"
	got := splitCommands(rendered)
	want := []string{"set pagination off", "info line *0x400d1234"}

	if len(got) != len(want) {
		t.Fatalf("splitCommands() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		elf      string
		commands []string
		want     []string
	}{
		{
			name:     "with ELF",
			elf:      "/fw/app.elf",
			commands: []string{"info symbol 0x1", "bt"},
			want:     []string{"-batch", "-nx", "/fw/app.elf", "-ex", "info symbol 0x1", "-ex", "bt"},
		},
		{
			name:     "without ELF",
			commands: []string{"bt"},
			want:     []string{"-batch", "-nx", "-ex", "bt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(Config{GDBPath: "gdb", ELFPath: tt.elf}, zap.NewNop())
			got := e.buildArgs(tt.commands)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("buildArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutePassesCommands(t *testing.T) {
	gdbPath := fakeGDB(t, `for a in "$@"; do printf '%s\n' "$a"; done`)

	var captured string
	script := &mockScript{
		name:     "args",
		template: "set pagination off\n{{range .Addrs}}info symbol {{.}}\n{{end}}",
		params:   map[string]interface{}{"Addrs": []string{"0x400d0001", "0x400d0002"}},
		parseFunc: func(output string) (*scripts.Result, error) {
			captured = output
			r := scripts.NewResult()
			r.Success = true
			return r, nil
		},
	}

	e := NewExecutor(Config{GDBPath: gdbPath, ELFPath: "/fw/app.elf", Timeout: 10 * time.Second}, zap.NewNop())
	result, err := e.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := "-batch\n-nx\n/fw/app.elf\n-ex\nset pagination off\n-ex\ninfo symbol 0x400d0001\n-ex\ninfo symbol 0x400d0002\n"
	if captured != want {
		t.Errorf("gdb received:\n%s\nwant:\n%s", captured, want)
	}
	if result.RawOutput != want {
		t.Errorf("RawOutput = %q", result.RawOutput)
	}
	if result.Duration <= 0 {
		t.Error("expected a positive duration")
	}
}

func TestExecuteEcho(t *testing.T) {
	gdbPath := fakeGDB(t, `echo out; echo err >&2`)

	var echo bytes.Buffer
	e := NewExecutor(Config{GDBPath: gdbPath, Echo: &echo, Timeout: 10 * time.Second}, zap.NewNop())
	result, err := e.Execute(context.Background(), &mockScript{name: "echo", template: "bt"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(echo.String(), "out") || !strings.Contains(echo.String(), "err") {
		t.Errorf("echo = %q, want both streams", echo.String())
	}
	if result.RawStderr != "err\n" {
		t.Errorf("RawStderr = %q", result.RawStderr)
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		gdbPath string
		timeout time.Duration
		script  *mockScript
		check   func(t *testing.T, err error)
	}{
		{
			name:   "non-zero exit",
			body:   "echo boom >&2; exit 3",
			script: &mockScript{name: "exit", template: "bt"},
			check: func(t *testing.T, err error) {
				var execErr *ExecutionError
				if !errors.As(err, &execErr) {
					t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
				}
				if execErr.ExitCode != 3 {
					t.Errorf("ExitCode = %d, want 3", execErr.ExitCode)
				}
				if !strings.Contains(execErr.Stderr, "boom") {
					t.Errorf("Stderr = %q", execErr.Stderr)
				}
			},
		},
		{
			name:    "timeout",
			body:    "exec sleep 5",
			timeout: 100 * time.Millisecond,
			script:  &mockScript{name: "slow", template: "bt"},
			check: func(t *testing.T, err error) {
				var timeoutErr *TimeoutError
				if !errors.As(err, &timeoutErr) {
					t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
				}
				if timeoutErr.Script != "slow" {
					t.Errorf("Script = %q", timeoutErr.Script)
				}
			},
		},
		{
			name:    "tool not found",
			gdbPath: "/nonexistent/xtensa-esp32-elf-gdb",
			script:  &mockScript{name: "missing", template: "bt"},
			check: func(t *testing.T, err error) {
				var preErr *PrerequisiteError
				if !errors.As(err, &preErr) {
					t.Fatalf("expected *PrerequisiteError, got %T: %v", err, err)
				}
				if !strings.Contains(err.Error(), "GDB tool not found at /nonexistent/xtensa-esp32-elf-gdb") {
					t.Errorf("unexpected message: %v", err)
				}
			},
		},
		{
			name:   "template error",
			script: &mockScript{name: "bad", template: "{{.Missing"},
			check: func(t *testing.T, err error) {
				var tmplErr *TemplateError
				if !errors.As(err, &tmplErr) {
					t.Fatalf("expected *TemplateError, got %T: %v", err, err)
				}
			},
		},
		{
			name: "parse error",
			body: "echo garbage",
			script: &mockScript{
				name:     "parse",
				template: "bt",
				parseFunc: func(string) (*scripts.Result, error) {
					return nil, errors.New("no frames")
				},
			},
			check: func(t *testing.T, err error) {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected *ParseError, got %T: %v", err, err)
				}
				if parseErr.Output != "garbage\n" {
					t.Errorf("Output = %q", parseErr.Output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gdbPath := tt.gdbPath
			if gdbPath == "" {
				body := tt.body
				if body == "" {
					body = "exit 0"
				}
				gdbPath = fakeGDB(t, body)
			}
			timeout := tt.timeout
			if timeout == 0 {
				timeout = 10 * time.Second
			}
			e := NewExecutor(Config{GDBPath: gdbPath, Timeout: timeout}, zap.NewNop())
			_, err := e.Execute(context.Background(), tt.script)
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestExecuteCancelled(t *testing.T) {
	gdbPath := fakeGDB(t, "exec sleep 5")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	e := NewExecutor(Config{GDBPath: gdbPath, Timeout: time.Minute}, zap.NewNop())
	start := time.Now()
	_, err := e.Execute(ctx, &mockScript{name: "cancel", template: "bt"})

	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancellation cause to be kept, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("cancellation did not stop gdb promptly")
	}
}

func TestValidate(t *testing.T) {
	t.Run("GNU gdb", func(t *testing.T) {
		gdbPath := fakeGDB(t, `echo "GNU gdb (esp-gdb) 14.2_20240403"`)
		e := NewExecutor(Config{GDBPath: gdbPath}, zap.NewNop())
		if err := e.Validate(context.Background()); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("not gdb", func(t *testing.T) {
		gdbPath := fakeGDB(t, `echo "LLDB 17"`)
		e := NewExecutor(Config{GDBPath: gdbPath}, zap.NewNop())
		var preErr *PrerequisiteError
		if err := e.Validate(context.Background()); !errors.As(err, &preErr) {
			t.Errorf("expected *PrerequisiteError, got %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		e := NewExecutor(Config{}, zap.NewNop())
		if err := e.Validate(context.Background()); err == nil {
			t.Error("expected an error for an empty path")
		}
	})
}
