package gdb

import (
	"testing"

	"github.com/muurk/trbr/internal/crash"
)

func TestParseFrames(t *testing.T) {
	raw := `^done,stack=[` +
		`frame={level="0",addr="0x42007a3c",func="app_main",file="main.c",fullname="/proj/main/main.c",line="17",arch="riscv:rv32"},` +
		`frame={level="1",addr="0x4200e1f0",func="main_task",file="app_startup.c",line="208",arch="riscv:rv32"},` +
		`frame={level="2",addr="0x40385cb2",func="vPortTaskWrapper",arch="riscv:rv32"}]` + "\n(gdb)\n"

	frames := parseFrames(raw)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	tests := []struct {
		addr   uint32
		method string
		file   string
		line   string
	}{
		{0x42007a3c, "app_main", "/proj/main/main.c", "17"},
		{0x4200e1f0, "main_task", "app_startup.c", "208"},
		{0x40385cb2, "", "", crash.UnknownLine},
	}
	for i, tt := range tests {
		f := frames[i]
		if !f.HasAddr || f.Addr != tt.addr {
			t.Errorf("frame %d addr = %#x (%v), want %#x", i, f.Addr, f.HasAddr, tt.addr)
		}
		if f.Method != tt.method || f.File != tt.file || f.Line != tt.line {
			t.Errorf("frame %d = %+v", i, f.Location)
		}
	}
	if frames[2].Parsed() {
		t.Error("a frame without a file should not count as parsed")
	}

	if got := parseFrames("^done\n(gdb)\n"); got != nil {
		t.Errorf("expected nil frames, got %v", got)
	}
}

func TestParseFrameArgs(t *testing.T) {
	raw := `^done,stack-args=[` +
		`frame={level="0",args=[{name="arg",type="void *",value="0x0"},{name="n",type="int",value="3"}]},` +
		`frame={level="1",args=[]}]` + "\n(gdb)\n"

	args := parseFrameArgs(raw)
	if len(args[0]) != 2 {
		t.Fatalf("expected 2 args for frame 0, got %v", args[0])
	}
	want := crash.Variable{Name: "n", Type: "int", Value: "3", Scope: "argument"}
	if args[0][1].Name != want.Name || args[0][1].Type != want.Type || args[0][1].Value != want.Value || args[0][1].Scope != want.Scope {
		t.Errorf("arg = %+v, want %+v", args[0][1], want)
	}
	if a, ok := args[1]; !ok || len(a) != 0 {
		t.Errorf("frame 1 args = %v, %v", a, ok)
	}
}
