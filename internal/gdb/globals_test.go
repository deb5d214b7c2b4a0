package gdb

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/crash"
)

func TestParseInfoVariables(t *testing.T) {
	text := `All defined variables:

File main/app_main.c:
12:	static const char *TAG;
15:	int counter;
20:	uint8_t buffer[64];
	static struct config_t cfg;

Non-debugging symbols:
0x3ffb0010  s_heap_caps
0x3ffb0020  _bss_start
`

	got := ParseInfoVariables(text)
	want := []crash.Variable{
		{Name: "TAG", Type: "static const char *", Scope: "global"},
		{Name: "counter", Type: "int", Scope: "global"},
		{Name: "buffer", Type: "uint8_t [64]", Scope: "global"},
		{Name: "cfg", Type: "static struct config_t", Scope: "global"},
		{Name: "s_heap_caps", Address: "0x3ffb0010", Scope: "global"},
		{Name: "_bss_start", Address: "0x3ffb0020", Scope: "global"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseInfoVariables() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParseVariableLineRejects(t *testing.T) {
	for _, line := range []string{"orphan", "12:orphan;"} {
		if v, ok := parseVariableLine(line); ok {
			t.Errorf("parseVariableLine(%q) = %+v, want rejection", line, v)
		}
	}
}

func TestDedupeGlobals(t *testing.T) {
	in := []crash.Variable{
		{Name: "counter", Scope: "global"},
		{Name: "tag", Type: "const char *", Scope: "global"},
		{Name: "counter", Type: "int", Address: "0x3ffb0000", Scope: "global"},
		{Name: "tag", Type: "char *", Scope: "global"},
		{Name: ""},
	}

	got := DedupeGlobals(in)
	want := []crash.Variable{
		{Name: "counter", Type: "int", Address: "0x3ffb0000", Scope: "global"},
		{Name: "tag", Type: "const char *", Scope: "global"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeGlobals() = %+v, want %+v", got, want)
	}
}

func TestGlobalsTimeout(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want time.Duration
	}{
		{"unset", "", DefaultGlobalsTimeout},
		{"override", "1500", 1500 * time.Millisecond},
		{"invalid", "soon", DefaultGlobalsTimeout},
		{"negative", "-5", DefaultGlobalsTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(GlobalsTimeoutEnvVar, tt.env)
			if got := GlobalsTimeout(DefaultGlobalsTimeout); got != tt.want {
				t.Errorf("GlobalsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListGlobalsSkipsLX106(t *testing.T) {
	vars, err := ListGlobals(context.Background(), "/opt/xtensa-lx106-elf/bin/xtensa-lx106-elf-gdb", "app.elf", GlobalsOptions{}, zap.NewNop())
	if err != nil || vars != nil {
		t.Errorf("ListGlobals() = %v, %v, want nil, nil", vars, err)
	}
}

func TestListGlobalsDegrades(t *testing.T) {
	vars, err := ListGlobals(context.Background(), "/nonexistent/riscv32-esp-elf-gdb", "app.elf", GlobalsOptions{Timeout: time.Second}, zap.NewNop())
	if err != nil {
		t.Errorf("expected a missing gdb to degrade, got %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("expected no globals, got %v", vars)
	}
}
