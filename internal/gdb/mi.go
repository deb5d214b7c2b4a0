package gdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/logging"
)

// MIState is the command state of a machine interface session.
type MIState int

const (
	StateIdle MIState = iota
	StateAwaitingResponse
	StateClosed
)

func (s MIState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned by Exec after Close.
var ErrSessionClosed = errors.New("gdb/mi session closed")

// previewLimit caps the output logged per command.
const previewLimit = 400

type miReply struct {
	output string
	err    error
}

type miRequest struct {
	command string
	reply   chan miReply
}

// MISession drives one gdb process through --interpreter=mi2. Commands are
// served strictly in order; the next one is written only after the
// previous one's output and prompt have been read.
type MISession struct {
	gdbPath string
	args    []string
	logger  *zap.Logger

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	outputs  chan string
	requests chan *miRequest
	done     chan struct{} // closed when the process output ends
	exited   chan struct{} // closed after the process has been reaped
	quit     chan struct{} // closed by Close
	stop     func() bool
	started  bool

	mu    sync.Mutex
	state MIState
	err   error

	closeOnce sync.Once
}

// NewMISession prepares a session for gdbPath. args follow the
// interpreter selection, e.g. {"-nx", "-c", core, elf}.
func NewMISession(gdbPath string, args []string, logger *zap.Logger) *MISession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MISession{
		gdbPath:  gdbPath,
		args:     append([]string{"--interpreter=mi2"}, args...),
		logger:   logger,
		outputs:  make(chan string),
		requests: make(chan *miRequest),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start launches gdb and waits for its first prompt. Cancelling ctx at any
// point of the session kills gdb and fails pending commands with
// ErrAborted.
func (s *MISession) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Aborted(err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}

	s.cmd = exec.Command(s.gdbPath, s.args...)
	s.cmd.Stdout = pw
	s.cmd.Stderr = pw
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	s.stdin = stdin

	logging.LogProcess(s.logger, s.gdbPath, s.args)
	if err := s.cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.setClosed()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return toolNotFound(s.gdbPath, err)
		}
		return fmt.Errorf("failed to start gdb: %w", err)
	}
	pw.Close()
	s.started = true

	go s.read(pr)
	s.stop = context.AfterFunc(ctx, func() {
		s.logger.Debug("abort signal received")
		s.fail(Aborted(ctx.Err()))
		s.kill()
	})

	startedAt := time.Now()
	select {
	case _, ok := <-s.outputs:
		if !ok {
			err := s.failure()
			s.Close()
			return err
		}
	case <-ctx.Done():
		s.Close()
		return Aborted(ctx.Err())
	}
	s.logger.Debug("handshake done", zap.Duration("elapsed", time.Since(startedAt)))

	go s.loop()
	return nil
}

// read splits process output into prompt-terminated chunks.
func (s *MISession) read(r io.ReadCloser) {
	defer r.Close()

	var chunk strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
scan:
	for scanner.Scan() {
		line := scanner.Text()
		chunk.WriteString(line)
		chunk.WriteByte('\n')
		if strings.TrimSpace(line) == "(gdb)" {
			select {
			case s.outputs <- chunk.String():
			case <-s.quit:
				break scan
			}
			chunk.Reset()
		}
	}

	waitErr := s.cmd.Wait()
	switch {
	case scanner.Err() != nil:
		s.fail(fmt.Errorf("failed to read gdb output: %w", scanner.Err()))
	case waitErr != nil:
		s.fail(fmt.Errorf("gdb exited: %w", waitErr))
	default:
		s.fail(errors.New("gdb exited"))
	}
	s.logger.Debug("process exit", zap.Error(waitErr))

	close(s.outputs)
	close(s.done)
	close(s.exited)
}

// loop owns the process stdin and serves queued commands one at a time.
func (s *MISession) loop() {
	for {
		var req *miRequest
		select {
		case req = <-s.requests:
		case <-s.done:
			return
		}

		if err := s.failure(); err != nil {
			req.reply <- miReply{err: err}
			continue
		}

		s.setState(StateAwaitingResponse)
		startedAt := time.Now()
		if _, err := io.WriteString(s.stdin, req.command+"\n"); err != nil {
			s.fail(fmt.Errorf("failed to write command: %w", err))
			req.reply <- miReply{err: s.failure()}
			continue
		}

		out, ok := <-s.outputs
		if !ok {
			req.reply <- miReply{err: s.failure()}
			continue
		}
		s.setState(StateIdle)
		s.logger.Debug("recv",
			zap.String("command", req.command),
			zap.Duration("elapsed", time.Since(startedAt)),
			zap.String("output", preview(out)),
		)
		req.reply <- miReply{output: out}
	}
}

// Exec sends one MI command and returns its raw output up to the prompt.
// An ^error result record is returned as *MIError along with the output.
func (s *MISession) Exec(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Aborted(err)
	}
	if err := s.failure(); err != nil {
		return "", err
	}

	s.logger.Debug("send", zap.String("command", command))
	req := &miRequest{command: command, reply: make(chan miReply, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return "", s.failure()
	case <-ctx.Done():
		return "", Aborted(ctx.Err())
	}

	var r miReply
	select {
	case r = <-req.reply:
	case <-ctx.Done():
		err := Aborted(ctx.Err())
		s.fail(err)
		s.kill()
		return "", err
	}
	if r.err != nil {
		return "", r.err
	}
	if miErr, ok := parseErrorRecord(command, r.output); ok {
		return r.output, miErr
	}
	return r.output, nil
}

// Close ends the session and reaps the process. It is safe to call more
// than once.
func (s *MISession) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Debug("close")
		if s.stop != nil {
			s.stop()
		}
		s.fail(ErrSessionClosed)
		close(s.quit)
		if s.started {
			s.stdin.Close()
			s.kill()
			<-s.exited
		}
		s.setClosed()
	})
	return nil
}

// State returns the current command state.
func (s *MISession) State() MIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MISession) setState(st MIState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = st
	}
}

func (s *MISession) setClosed() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// fail records the first terminal error of the session.
func (s *MISession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *MISession) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *MISession) kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}

func preview(text string) string {
	if len(text) <= previewLimit {
		return text
	}
	return fmt.Sprintf("%s...[truncated %d chars]", text[:previewLimit], len(text)-previewLimit)
}
