package gdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/target"
)

// fakeMI answers a fixed set of MI commands the way an ESP32-C3 core dump
// session would. Unknown commands echo back as ^done,value="<command>".
const fakeMI = `say() { printf '%s\n' "$1"; }
say '=thread-group-added,id="i1"'
say '~"GNU gdb (esp-gdb) 14.2_20240403\n"'
say '(gdb)'
while IFS= read -r line; do
  case "$line" in
    -exit) exit 0 ;;
    -hang) exec sleep 5 ;;
    -fail) say '^error,msg="Undefined MI command: fail",code="undefined-command"' ;;
    -thread-info) say '^done,threads=[{id="1",target-id="process 1070167028",name="main",frame={level="0",addr="0x42007a3c",func="app_main",args=[]},state="stopped"},{id="2",target-id="process 1070170000",name="IDLE",state="stopped"}],current-thread-id="1"' ;;
    -thread-select*) say '^done,new-thread-id="1"' ;;
    -data-list-register-names) say '^done,register-names=["zero","ra","sp","gp","fp","pc"]' ;;
    -data-list-register-values*) say '^done,register-values=[{number="0",value="0x0"},{number="1",value="0x42007a30"},{number="2",value="0x3fc98300"},{number="3",value="0x3fc8c000"},{number="4",value="0x3fc98400"},{number="5",value="0x42007a3c"}]' ;;
    -stack-list-frames) say '^done,stack=[frame={level="0",addr="0x42007a3c",func="app_main",file="main.c",fullname="/proj/main/main.c",line="17"}]' ;;
    -stack-list-arguments*) say '^done,stack-args=[frame={level="0",args=[]}]' ;;
    -stack-list-locals*) say '^done,locals=[{name="count",type="int",value="3"},{name="pt",type="struct point"}]' ;;
    -var-create*) say '^done,name="var1",numchild="2",value="{...}",type="struct point",has_more="0"' ;;
    -var-list-children*) say '^done,numchild="2",children=[child={name="var1.x",exp="x",numchild="0",value="1",type="int"},child={name="var1.y",exp="y",numchild="0",value="2",type="int"}],has_more="0"' ;;
    -var-delete*) say '^done,ndeleted="3"' ;;
    -symbol-list-variables*) say '^error,msg="Undefined MI command: symbol-list-variables",code="undefined-command"' ;;
    -interpreter-exec*)
      say '~"All defined variables:\n"'
      say '~"\nFile main.c:\n"'
      say '~"3:\tint counter;\n"'
      say '^done' ;;
    *) say "^done,value=\"$line\"" ;;
  esac
  say '(gdb)'
done`

func startFakeMI(t *testing.T) *MISession {
	t.Helper()
	session := NewMISession(fakeGDB(t, fakeMI), nil, zap.NewNop())
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMISessionExec(t *testing.T) {
	session := startFakeMI(t)

	if session.State() != StateIdle {
		t.Errorf("State() = %v, want idle", session.State())
	}

	out, err := session.Exec(context.Background(), "-gdb-version")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if got := ParseResultRecord(out)["value"]; got != "-gdb-version" {
		t.Errorf("value = %q, want -gdb-version", got)
	}
	if !strings.HasSuffix(out, "(gdb)\n") {
		t.Errorf("output should end at the prompt: %q", out)
	}
}

func TestMISessionQueue(t *testing.T) {
	session := startFakeMI(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := fmt.Sprintf("-echo-%d", i)
			out, err := session.Exec(context.Background(), cmd)
			if err != nil {
				errs <- err
				return
			}
			if got := ParseResultRecord(out)["value"]; got != cmd {
				errs <- fmt.Errorf("%s answered with %q", cmd, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestMISessionErrorRecord(t *testing.T) {
	session := startFakeMI(t)

	out, err := session.Exec(context.Background(), "-fail")
	var miErr *MIError
	if !errors.As(err, &miErr) {
		t.Fatalf("expected *MIError, got %T: %v", err, err)
	}
	if !miErr.Unsupported() || miErr.Command != "-fail" {
		t.Errorf("unexpected MIError: %+v", miErr)
	}
	if !strings.Contains(out, "^error") {
		t.Errorf("expected the raw output alongside the error, got %q", out)
	}

	// the session stays usable
	if _, err := session.Exec(context.Background(), "-next"); err != nil {
		t.Errorf("Exec() after ^error = %v", err)
	}
}

func TestMISessionProcessExit(t *testing.T) {
	session := startFakeMI(t)

	_, err := session.Exec(context.Background(), "-exit")
	if err == nil || !strings.Contains(err.Error(), "gdb exited") {
		t.Fatalf("expected gdb exited error, got %v", err)
	}
	if _, err := session.Exec(context.Background(), "-next"); err == nil {
		t.Error("expected commands after exit to fail")
	}
}

func TestMISessionExecCancelled(t *testing.T) {
	session := startFakeMI(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := session.Exec(ctx, "-hang")
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if _, err := session.Exec(context.Background(), "-next"); !errors.Is(err, ErrAborted) {
		t.Errorf("expected the session to stay aborted, got %v", err)
	}
	session.Close()
	if time.Since(start) > 3*time.Second {
		t.Error("cancellation did not stop gdb promptly")
	}
}

func TestMISessionStartContextCancelled(t *testing.T) {
	session := NewMISession(fakeGDB(t, fakeMI), nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer session.Close()

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	var err error
	for time.Now().Before(deadline) {
		if _, err = session.Exec(context.Background(), "-next"); err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(err, ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected ErrAborted wrapping context.Canceled, got %v", err)
	}
}

func TestMISessionStartErrors(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		session := NewMISession("gdb", nil, zap.NewNop())
		if err := session.Start(ctx); !errors.Is(err, ErrAborted) {
			t.Errorf("expected ErrAborted, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		session := NewMISession("/nonexistent/riscv32-esp-elf-gdb", nil, zap.NewNop())
		err := session.Start(context.Background())
		var preErr *PrerequisiteError
		if !errors.As(err, &preErr) {
			t.Fatalf("expected *PrerequisiteError, got %T: %v", err, err)
		}
		if session.State() != StateClosed {
			t.Errorf("State() = %v, want closed", session.State())
		}
	})

	t.Run("exits before prompt", func(t *testing.T) {
		session := NewMISession(fakeGDB(t, "echo 'not mi'; exit 1"), nil, zap.NewNop())
		if err := session.Start(context.Background()); err == nil {
			t.Error("expected an error when gdb exits before its prompt")
		}
	})
}

func TestMISessionCloseIdempotent(t *testing.T) {
	session := startFakeMI(t)

	if err := session.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if session.State() != StateClosed {
		t.Errorf("State() = %v, want closed", session.State())
	}
	if _, err := session.Exec(context.Background(), "-next"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}

	// never started
	if err := NewMISession("gdb", nil, nil).Close(); err != nil {
		t.Errorf("Close() on an unstarted session = %v", err)
	}
}

func TestExpandVariable(t *testing.T) {
	session := startFakeMI(t)

	v, err := session.ExpandVariable(context.Background(), "pt", DefaultVarLimits())
	if err != nil {
		t.Fatalf("ExpandVariable() error = %v", err)
	}
	if v.Name != "pt" || v.Type != "struct point" || v.Value != "{...}" {
		t.Errorf("unexpected variable: %+v", v)
	}
	if len(v.Children) != 2 || v.Children[0].Name != "x" || v.Children[1].Value != "2" {
		t.Errorf("unexpected children: %+v", v.Children)
	}

	shallow, err := session.ExpandVariable(context.Background(), "pt", VarLimits{Depth: 0, Children: 16})
	if err != nil {
		t.Fatalf("ExpandVariable() error = %v", err)
	}
	if len(shallow.Children) != 0 {
		t.Errorf("expected no children at depth 0, got %+v", shallow.Children)
	}

	narrow, err := session.ExpandVariable(context.Background(), "pt", VarLimits{Depth: 3, Children: 1})
	if err != nil {
		t.Fatalf("ExpandVariable() error = %v", err)
	}
	if len(narrow.Children) != 1 {
		t.Errorf("expected one child, got %+v", narrow.Children)
	}
}

func TestSessionGlobals(t *testing.T) {
	session := startFakeMI(t)

	vars, err := session.Globals(context.Background(), true)
	if err != nil {
		t.Fatalf("Globals() error = %v", err)
	}
	if len(vars) != 1 || vars[0].Name != "counter" || vars[0].Type != "int" {
		t.Errorf("unexpected globals: %+v", vars)
	}

	vars, err = session.Globals(context.Background(), false)
	if err != nil || vars != nil {
		t.Errorf("Globals() without fallback = %+v, %v", vars, err)
	}
}

func TestLoadCoreDump(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config := Config{GDBPath: fakeGDB(t, fakeMI), ELFPath: "app.elf"}
	dump, err := LoadCoreDump(ctx, config, "core.elf", CoreDumpOptions{
		Arch:    target.ESP32C3,
		Globals: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadCoreDump() error = %v", err)
	}

	if len(dump.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(dump.Threads))
	}
	first := dump.Threads[0]
	if !first.Current || first.TCB != 1070167028 || dump.Threads[1].Current {
		t.Errorf("unexpected thread info: %+v / %+v", first.ThreadInfo, dump.Threads[1].ThreadInfo)
	}
	if !first.HasPC || first.PC != 0x42007a3c {
		t.Errorf("PC = %#x (%v)", first.PC, first.HasPC)
	}
	if sp, ok := first.Registers.Get("SP"); !ok || sp != 0x3fc98300 {
		t.Errorf("SP = %#x (%v)", sp, ok)
	}
	if s0, ok := first.Registers.Get("S0"); !ok || s0 != 0x3fc98400 {
		t.Errorf("S0 (gdb fp) = %#x (%v)", s0, ok)
	}
	if _, ok := first.Registers.Get("FP"); ok {
		t.Error("fp should be reported as S0")
	}
	if first.Registers[0].Name != "MEPC" {
		t.Errorf("registers should follow the core-dump order, got %+v", first.Registers)
	}
	if _, ok := first.Registers.Get("ZERO"); ok {
		t.Error("registers outside the core list should be dropped")
	}

	if len(first.Frames) != 1 || first.Frames[0].Method != "app_main" || first.Frames[0].Line != "17" {
		t.Fatalf("unexpected frames: %+v", first.Frames)
	}
	locals := first.Frames[0].Locals
	if len(locals) != 2 {
		t.Fatalf("expected 2 locals, got %+v", locals)
	}
	if locals[0].Value != "3" || locals[0].Scope != "local" {
		t.Errorf("unexpected simple local: %+v", locals[0])
	}
	if locals[1].Name != "pt" || len(locals[1].Children) != 2 || locals[1].Scope != "local" {
		t.Errorf("unexpected expanded local: %+v", locals[1])
	}

	if len(dump.Globals) != 1 || dump.Globals[0].Name != "counter" {
		t.Errorf("unexpected globals: %+v", dump.Globals)
	}
}
