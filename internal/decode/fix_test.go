package decode

import (
	"testing"

	"github.com/muurk/trbr/internal/crash"
)

func parsed(addr uint32, method, file, line string) crash.StackFrame {
	return crash.StackFrame{Location: crash.Location{Addr: addr, HasAddr: true, Method: method, File: file, Line: line}}
}

func unknown(addr uint32) crash.StackFrame {
	return crash.StackFrame{Location: crash.Unresolved(addr)}
}

func TestNormalizeFrames(t *testing.T) {
	tests := []struct {
		name string
		in   []crash.StackFrame
		want []uint32
	}{
		{
			name: "freertos end of stack",
			in:   []crash.StackFrame{parsed(0x4020195c, "loop", "a.ino", "3"), unknown(freeRTOSStackEnd), unknown(0x40100d19)},
			want: []uint32{0x4020195c, 0x40100d19},
		},
		{
			name: "stack pointer after parsed frame",
			in: []crash.StackFrame{
				parsed(0x400d15ee, "a", "a.c", "1"), unknown(0x3ffb21d0),
				parsed(0x400d1606, "b", "a.c", "2"), unknown(0x3ffb21f0),
			},
			want: []uint32{0x400d15ee, 0x400d1606},
		},
		{
			name: "stack pointer after unresolved frame is kept",
			in:   []crash.StackFrame{unknown(0x400d15ee), unknown(0x3ffb21d0)},
			want: []uint32{0x400d15ee, 0x3ffb21d0},
		},
		{
			name: "consecutive duplicates collapse",
			in: []crash.StackFrame{
				parsed(0x42000086, "loop", "a.ino", "21"),
				parsed(0x42000086, "loop", "a.ino", "21"),
				parsed(0x42000086, "loop", "a.ino", "21"),
				parsed(0x4200e1f0, "main_task", "app.c", "208"),
				parsed(0x42000086, "loop", "a.ino", "21"),
			},
			want: []uint32{0x42000086, 0x4200e1f0, 0x42000086},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &crash.DecodeResult{Frames: tt.in}
			Normalize(r)
			if len(r.Frames) != len(tt.want) {
				t.Fatalf("expected %d frames, got %+v", len(tt.want), r.Frames)
			}
			for i, addr := range tt.want {
				if r.Frames[i].Addr != addr {
					t.Errorf("frame %d = 0x%08x, want 0x%08x", i, r.Frames[i].Addr, addr)
				}
			}
		})
	}
}

func TestNormalizeWindowsPaths(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{file: "C:/Users/dev/sketch/sketch.ino", want: `C:\Users\dev\sketch\sketch.ino`},
		{file: `d:\esp\main.c`, want: `d:\esp\main.c`},
		{file: "/home/dev/main.c", want: "/home/dev/main.c"},
		{file: "main.c", want: "main.c"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			pc := crash.Location{Addr: 0x42000086, HasAddr: true, Method: "loop", File: tt.file, Line: "1"}
			r := &crash.DecodeResult{
				Fault:  &crash.FaultInfo{PC: &pc},
				Frames: []crash.StackFrame{{Location: pc}},
				Alloc:  &crash.AllocInfo{Location: pc, Size: 8},
			}
			Normalize(r)
			if r.Frames[0].File != tt.want || r.Fault.PC.File != tt.want || r.Alloc.Location.File != tt.want {
				t.Errorf("got %q %q %q, want %q", r.Frames[0].File, r.Fault.PC.File, r.Alloc.Location.File, tt.want)
			}
		})
	}
}

func TestNormalizeFaultAddr(t *testing.T) {
	tests := []struct {
		name string
		addr crash.Location
		keep bool
	}{
		{name: "unresolved zero", addr: crash.Unresolved(0)},
		{name: "unresolved non-zero", addr: crash.Unresolved(0x3ffb0000), keep: true},
		{name: "resolved zero", addr: crash.Location{HasAddr: true, Method: "f", File: "a.c", Line: "1"}, keep: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := tt.addr
			r := &crash.DecodeResult{Fault: &crash.FaultInfo{FaultAddr: &addr}}
			Normalize(r)
			if (r.Fault.FaultAddr != nil) != tt.keep {
				t.Errorf("FaultAddr = %+v, keep = %v", r.Fault.FaultAddr, tt.keep)
			}
		})
	}

	Normalize(nil)
}
