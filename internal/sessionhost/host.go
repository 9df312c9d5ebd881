// Package sessionhost implements the detached per-session process that owns
// an agent's PTY (spec §4.3). It is invoked as the `session-host` control
// CLI subcommand and never touches the store directly: its only interface
// to the rest of claustre is the framed Unix-socket protocol in
// internal/protocol.
package sessionhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/claustre/claustre/internal/app"
	"github.com/claustre/claustre/internal/protocol"
)

const (
	initialRows = 24
	initialCols = 80

	idleSleep        = 16 * time.Millisecond
	noClientGrace    = 30 * time.Second
	postExitGrace    = 2 * time.Second
	readerChunkSize  = 4096
	readerQueueDepth = 64
)

// Options configures a session-host run.
type Options struct {
	SessionID    string
	WorktreePath string
	Command      []string // argv[0] is the binary, rest are its args.
}

// Run starts the PTY, spawns Command, and blocks serving clients until one
// of spec §4.3's exit conditions is reached. It implements the `session-host`
// subcommand body.
func Run(ctx context.Context, opts Options) error {
	if len(opts.Command) == 0 {
		return errors.New("sessionhost: empty command")
	}

	// Step 1: detach into a new session leader so the parent's terminal
	// close does not signal this process group. EPERM means we already are
	// a session leader (e.g. under some test harnesses); that's fine.
	if _, err := unix.Setsid(); err != nil && !errors.Is(err, unix.EPERM) {
		return fmt.Errorf("sessionhost: setsid: %w", err)
	}

	pidPath, err := app.PIDPath(opts.SessionID)
	if err != nil {
		return fmt.Errorf("sessionhost: resolve pid path: %w", err)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("sessionhost: write pid file: %w", err)
	}
	defer removeFile(pidPath)

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorktreePath
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: initialRows, Cols: initialCols})
	if err != nil {
		return fmt.Errorf("sessionhost: start pty: %w", err)
	}
	defer ptmx.Close()

	h := &host{
		opts:   opts,
		cmd:    cmd,
		ptmx:   ptmx,
		screen: newScreen(initialRows, initialCols),
		queue:  make(chan []byte, readerQueueDepth),
		exitCh: make(chan int32, 1),
	}

	go h.readPTY()
	go h.waitChild()

	socketPath, err := app.SocketPath(opts.SessionID)
	if err != nil {
		return fmt.Errorf("sessionhost: resolve socket path: %w", err)
	}
	// Step 6: unlink any stale socket left by a prior crashed host.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionhost: remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("sessionhost: listen: %w", err)
	}
	defer removeFile(socketPath)
	h.listener = listener.(*net.UnixListener)
	defer h.listener.Close()

	return h.loop(ctx)
}

// host holds all mutable state for one running session-host.
type host struct {
	opts Options
	cmd  *exec.Cmd
	ptmx *os.File

	screen *screen

	queue  chan []byte // PTY reader worker -> main loop
	exitCh chan int32  // waitChild -> main loop, exit code

	listener *net.UnixListener
	client   net.Conn
	reader   *protocol.Reader
	writer   *protocol.Writer
}

// readPTY is the blocking PTY reader worker: the spec's "internal single-
// producer/single-consumer queue" producer side.
func (h *host) readPTY() {
	buf := make([]byte, readerChunkSize)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.queue <- chunk
		}
		if err != nil {
			close(h.queue)
			return
		}
	}
}

// waitChild reaps the child and reports its exit code on exitCh. A PTY slave
// close during Read (EIO) fires before Wait returns, so both the queue close
// and the exit code are guaranteed to reach the main loop.
func (h *host) waitChild() {
	err := h.cmd.Wait()
	code := int32(0)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = int32(exitErr.ExitCode())
	} else if err != nil {
		code = -1
	}
	h.exitCh <- code
}

// loop is the cooperative, single-threaded poll loop of spec §4.3.
func (h *host) loop(ctx context.Context) error {
	var (
		exited       bool
		exitCode     int32
		exitSentAt   time.Time
		lastClientAt time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		didWork := false

		// Non-blocking accept: drop any prior client (single-client policy).
		if conn, ok := h.tryAccept(); ok {
			didWork = true
			if h.client != nil {
				_ = h.client.Close()
			}
			h.client = conn
			h.reader = protocol.NewReader(conn)
			h.writer = protocol.NewWriter(conn)
			_ = h.writer.WriteHostMessage(protocol.HostMessage{
				Type:    protocol.TypeSnapshot,
				Payload: h.screen.Snapshot(),
			})
			if exited {
				_ = h.writer.WriteHostMessage(protocol.HostMessage{Type: protocol.TypeExited, ExitCode: exitCode})
			}
		}

		// Drain the PTY queue without blocking.
	drainQueue:
		for {
			select {
			case chunk, ok := <-h.queue:
				if !ok {
					break drainQueue
				}
				didWork = true
				h.screen.Feed(chunk)
				if h.client != nil {
					if err := h.writer.WriteHostMessage(protocol.HostMessage{Type: protocol.TypeOutput, Payload: chunk}); err != nil {
						h.dropClient()
						lastClientAt = time.Now()
					}
				}
			default:
				break drainQueue
			}
		}

		// Child exit notification (fires once).
		if !exited {
			select {
			case exitCode = <-h.exitCh:
				exited = true
				exitSentAt = time.Now()
				didWork = true
				if h.client != nil {
					_ = h.writer.WriteHostMessage(protocol.HostMessage{Type: protocol.TypeExited, ExitCode: exitCode})
				}
			default:
			}
		}

		// Client frames, non-blocking.
		if h.client != nil {
			shouldBreak, gotFrame, err := h.handleClientFrame()
			if gotFrame {
				didWork = true
			}
			if shouldBreak {
				return nil
			}
			if err != nil {
				h.dropClient()
				lastClientAt = time.Now()
			}
		}

		if exited && h.client == nil {
			if lastClientAt.After(exitSentAt) {
				// A client disconnected after the child exited.
				if time.Since(lastClientAt) >= postExitGrace {
					return nil
				}
			} else if time.Since(exitSentAt) >= noClientGrace {
				return nil
			}
		}

		if !didWork {
			time.Sleep(idleSleep)
		}
	}
}

func (h *host) tryAccept() (net.Conn, bool) {
	if err := h.listener.SetDeadline(time.Now()); err != nil {
		return nil, false
	}
	conn, err := h.listener.Accept()
	if err != nil {
		return nil, false
	}
	return conn, true
}

// handleClientFrame reads and dispatches at most one client frame without
// blocking. shouldBreak is true on a Shutdown frame (spec exit condition).
func (h *host) handleClientFrame() (shouldBreak, gotFrame bool, err error) {
	typ, payload, err := h.reader.TryReadFrame()
	if err != nil {
		if errors.Is(err, protocol.ErrWouldBlock) {
			return false, false, nil
		}
		if errors.Is(err, io.EOF) {
			return false, true, err
		}
		return false, true, err
	}

	msg, err := protocol.DecodeClientMessage(typ, payload)
	if err != nil {
		return false, true, nil // malformed frame: drop it, keep the connection
	}

	switch msg.Type {
	case protocol.TypeInput:
		_, werr := h.ptmx.Write(msg.Payload)
		return false, true, werr
	case protocol.TypeResize:
		h.screen.Resize(int(msg.Rows), int(msg.Cols))
		_ = pty.Setsize(h.ptmx, &pty.Winsize{Rows: msg.Rows, Cols: msg.Cols})
		return false, true, nil
	case protocol.TypeShutdown:
		return true, true, nil
	default:
		return false, true, nil
	}
}

func (h *host) dropClient() {
	if h.client != nil {
		_ = h.client.Close()
	}
	h.client = nil
	h.reader = nil
	h.writer = nil
}
