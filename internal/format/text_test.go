package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/muurk/trbr/internal/crash"
)

func intPtr(v int) *int { return &v }

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		loc  crash.Location
		want string
	}{
		{
			name: "parsed with args",
			loc: crash.Location{Addr: 0x42000086, HasAddr: true, Method: "a::geta", File: "a.ino", Line: "11",
				Args: []crash.Variable{{Name: "this", Value: "0x0"}, {Name: "b"}}},
			want: "0x42000086: a::geta (this=0x0, b) at a.ino:11",
		},
		{
			name: "parsed without args",
			loc:  crash.Location{Addr: 0x42000086, HasAddr: true, Method: "loop", File: "a.ino", Line: "21"},
			want: "0x42000086: loop () at a.ino:21",
		},
		{
			name: "unresolved",
			loc:  crash.Unresolved(0x4c1c0042),
			want: "0x4c1c0042: ??",
		},
		{
			name: "marker",
			loc:  crash.Location{Addr: 0x40000000, HasAddr: true, Line: "is in some ROM blob"},
			want: "0x40000000: is in some ROM blob",
		},
		{
			name: "no address",
			loc:  crash.Location{Method: "loop", File: "a.ino", Line: "21"},
			want: "loop () at a.ino:21",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Location(tt.loc); got != tt.want {
				t.Errorf("Location() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestText(t *testing.T) {
	pc := crash.Location{Addr: 0x400d15f1, HasAddr: true, Method: "setup", File: "/src/main.c", Line: "10"}
	fault := crash.Unresolved(0x3ffb0000)
	r := &crash.DecodeResult{
		Fault: &crash.FaultInfo{
			CoreID:    1,
			PC:        &pc,
			FaultAddr: &fault,
			FaultCode: intPtr(29),
			Message:   "StoreProhibited",
		},
		Frames: []crash.StackFrame{
			{Location: pc},
			{Location: crash.Unresolved(0x40088be9)},
		},
		Alloc: &crash.AllocInfo{Size: 2048, Location: pc},
	}

	var buf bytes.Buffer
	if err := Text(&buf, r); err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	want := strings.Join([]string{
		"1 | StoreProhibited | 29",
		"",
		"PC -> 0x400d15f1: setup () at /src/main.c:10",
		"Fault -> 0x3ffb0000: ??",
		"",
		"0x400d15f1: setup () at /src/main.c:10",
		"0x40088be9: ??",
		"",
		"Memory allocation of 2048 bytes failed at 0x400d15f1: setup () at /src/main.c:10",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("Text() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTextWithoutFaultCode(t *testing.T) {
	pc := crash.Unresolved(0x42000086)
	r := &crash.DecodeResult{Fault: &crash.FaultInfo{PC: &pc}}

	var buf bytes.Buffer
	if err := Text(&buf, r); err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if buf.String() != "PC -> 0x42000086: ??\n\n" {
		t.Errorf("Text() = %q", buf.String())
	}
}

func TestFaultLine(t *testing.T) {
	tests := []struct {
		name  string
		fault crash.FaultInfo
		want  string
	}{
		{"with message", crash.FaultInfo{CoreID: 1, FaultCode: intPtr(28), Message: "LoadProhibited"}, "1 | LoadProhibited | 28"},
		{"unknown code", crash.FaultInfo{CoreID: 0, FaultCode: intPtr(99)}, "0 | 99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FaultLine(&tt.fault); got != tt.want {
				t.Errorf("FaultLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoreDump(t *testing.T) {
	top := crash.Location{Addr: 0x42007a3c, HasAddr: true, Method: "app_main", File: "main.c", Line: "17"}
	r := &crash.CoreDumpResult{
		Threads: []crash.ThreadResult{
			{ThreadID: "1", TCB: 0x3fc9a5f4, Current: true, Result: crash.DecodeResult{
				Fault:  &crash.FaultInfo{CoreID: 1, PC: &top},
				Frames: []crash.StackFrame{{Location: top}},
			}},
			{ThreadID: "2", TCB: 0x3fc9b190},
		},
		Overview: []crash.OverviewRow{
			{Current: true, ThreadID: "1", TCB: 0x3fc9a5f4, Top: &top},
			{ThreadID: "2", TCB: 0x3fc9b190},
		},
	}

	var buf bytes.Buffer
	if err := CoreDump(&buf, r); err != nil {
		t.Fatalf("CoreDump() error = %v", err)
	}

	want := strings.Join([]string{
		"==================== THREADS INFO ====================",
		"  ID  Target ID           Frame",
		"  *1  process 1070179828  0x42007a3c: app_main () at main.c:17",
		"   2  process 1070182800  ",
		"",
		"==================== THREAD 1 (TCB: 0x3fc9a5f4) ====================",
		"",
		"PC -> 0x42007a3c: app_main () at main.c:17",
		"",
		"0x42007a3c: app_main () at main.c:17",
		"",
		"==================== THREAD 2 (TCB: 0x3fc9b190) ====================",
		"",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("CoreDump() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		if got, err := ParseKind(string(k)); err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("json"); err == nil {
		t.Error("expected an error for json")
	}
}

func TestExport(t *testing.T) {
	r := &crash.DecodeResult{
		Registers: crash.RegisterSet{{Name: "MEPC", Value: 0x4200007e}},
		Frames: []crash.StackFrame{{
			Location: crash.Location{Addr: 0x4200007e, HasAddr: true, Method: "app_main", File: "main.c", Line: "17"},
			Locals:   []crash.Variable{{Name: "count", Type: "int", Value: "3"}},
		}},
	}

	var y bytes.Buffer
	if err := YAML(&y, r); err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	var fromYAML map[string]interface{}
	if err := yaml.Unmarshal(y.Bytes(), &fromYAML); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, y.String())
	}
	frames, ok := fromYAML["frames"].([]interface{})
	if !ok || len(frames) != 1 {
		t.Fatalf("frames = %#v", fromYAML["frames"])
	}
	if frame := frames[0].(map[string]interface{}); frame["method"] != "app_main" {
		t.Errorf("inline location fields missing: %#v", frame)
	}

	var m bytes.Buffer
	if err := Msgpack(&m, r); err != nil {
		t.Fatalf("Msgpack() error = %v", err)
	}
	var decoded crash.DecodeResult
	if err := msgpack.Unmarshal(m.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid msgpack: %v", err)
	}
	if len(decoded.Frames) != 1 || decoded.Frames[0].Method != "app_main" || len(decoded.Frames[0].Locals) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}
