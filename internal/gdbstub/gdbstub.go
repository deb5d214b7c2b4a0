// Package gdbstub is a minimal gdb remote serial protocol target.
//
// It serves the registers and stack memory recovered from a RISC-V panic
// so that an unmodified gdb can unwind the stack itself. The stub accepts
// exactly one client and answers the handful of packets gdb sends while
// computing a backtrace:
//
//	?             T05 (SIGTRAP)
//	Hg* / Hc*     OK
//	qfThreadInfo  m1
//	qC            QC1
//	g             every ilp32 register, little-endian hex
//	mADDR,LEN     stack bytes, 00 outside the captured stack
//	k / vKill*    OK, then the connection is closed
//
// Anything else gets the empty "unsupported" reply.
package gdbstub

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/muurk/trbr/internal/crash"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/logging"
	"github.com/muurk/trbr/internal/target"
)

// State is the packet handling state of the stub.
type State int

const (
	StateIdle State = iota
	StatePacketReceived
	StateDispatch
	StateRespond
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePacketReceived:
		return "packet-received"
	case StateDispatch:
		return "dispatch"
	case StateRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// maxMemRead caps a single m packet.
const maxMemRead = 0x4000

var errNack = errors.New("negative acknowledgement")

// Server is a one-shot remote serial protocol target.
type Server struct {
	regs      crash.RegisterSet
	stackBase uint32
	stack     []byte
	logger    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	state    State
	closed   bool
}

// New creates a stub serving regs and the stack bytes starting at
// stackBase.
func New(regs crash.RegisterSet, stackBase uint32, stack []byte, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		regs:      regs,
		stackBase: stackBase,
		stack:     stack,
		logger:    logger,
	}
}

// Listen binds 127.0.0.1 on an ephemeral port and returns the address gdb
// should connect to.
func (s *Server) Listen(ctx context.Context) (*net.TCPAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, gdb.Aborted(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil, errors.New("stub server already started")
	}
	if s.closed {
		return nil, errors.New("stub server closed")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		if ctx.Err() != nil {
			return nil, gdb.Aborted(ctx.Err())
		}
		return nil, fmt.Errorf("failed to start stub server: %w", err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("expected a TCP address, got %s", ln.Addr())
	}
	s.listener = ln

	s.logger.Debug("Stub server listening", zap.String("addr", addr.String()))
	return addr, nil
}

// Serve accepts one client and answers its packets until the client
// disconnects, sends a kill packet, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("stub server is not listening")
	}

	stop := context.AfterFunc(ctx, func() {
		s.logger.Debug("User abort")
		s.Close()
	})
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return gdb.Aborted(ctx.Err())
		}
		return fmt.Errorf("failed to accept debugger connection: %w", err)
	}
	// One client only.
	ln.Close()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return gdb.Aborted(ctx.Err())
	}
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	s.logger.Debug("Debugger connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	err = s.handle(conn)
	if ctx.Err() != nil {
		return gdb.Aborted(ctx.Err())
	}
	return err
}

// Close releases the listener and the client connection. It is safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current packet handling state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) handle(conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		s.setState(StateIdle)
		cmd, err := readPacket(r)
		switch {
		case errors.Is(err, errNack):
			s.logger.Debug("Invalid command: negative acknowledgement")
			_, werr := conn.Write([]byte("-"))
			return werr
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("failed to read packet: %w", err)
		}

		s.setState(StatePacketReceived)
		logging.LogRawBytes(s.logger, "Stub packet received", []byte(cmd))

		s.setState(StateDispatch)
		payload, kill := s.dispatch(cmd)

		s.setState(StateRespond)
		out := "+" + Frame(payload)
		if _, err := io.WriteString(conn, out); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		logging.LogRawBytes(s.logger, "Stub packet sent", []byte(out))

		if kill {
			return nil
		}
	}
}

// readPacket returns the command between '$' and '#'. Acks and interrupt
// bytes between packets are skipped; a '-' yields errNack.
func readPacket(r *bufio.Reader) (string, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '$':
			body, err := r.ReadString('#')
			if err != nil {
				return "", err
			}
			var cs [2]byte
			if _, err := io.ReadFull(r, cs[:]); err != nil {
				return "", err
			}
			return strings.TrimSuffix(body, "#"), nil
		case '-':
			return "", errNack
		default:
			// '+' acks, ^C and line noise
		}
	}
}

// Checksum is the modulo-256 sum of the payload bytes.
func Checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	return sum
}

// Frame wraps payload as $payload#cs.
func Frame(payload string) string {
	return fmt.Sprintf("$%s#%02x", payload, Checksum(payload))
}

func (s *Server) dispatch(cmd string) (payload string, kill bool) {
	switch {
	case cmd == "?":
		// SIGTRAP; the exact reason does not matter for unwinding
		return "T05", false
	case strings.HasPrefix(cmd, "Hg"), strings.HasPrefix(cmd, "Hc"):
		return "OK", false
	case cmd == "qfThreadInfo":
		return "m1", false
	case cmd == "qC":
		return "QC1", false
	case cmd == "g":
		return s.registers(), false
	case strings.HasPrefix(cmd, "vKill"), cmd == "k":
		return "OK", true
	case strings.HasPrefix(cmd, "m"):
		return s.memory(cmd[1:]), false
	default:
		return "", false
	}
}

func (s *Server) registers() string {
	buf := make([]byte, 0, 4*len(target.RISCVGDBRegisters))
	for _, name := range target.RISCVGDBRegisters {
		v, _ := s.regs.Get(name)
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}
	return hex.EncodeToString(buf)
}

func (s *Server) memory(args string) string {
	addrStr, lenStr, ok := strings.Cut(args, ",")
	if !ok {
		return "E01"
	}
	addr, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		return "E01"
	}
	size, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		return "E01"
	}
	n, err := safecast.Conv[int](min(size, maxMemRead))
	if err != nil {
		return "E01"
	}

	lo := uint64(s.stackBase)
	hi := lo + uint64(len(s.stack))
	out := make([]byte, n)
	for i := range out {
		a := addr + uint64(i)
		if a >= lo && a < hi {
			out[i] = s.stack[a-lo]
		}
	}
	return hex.EncodeToString(out)
}
