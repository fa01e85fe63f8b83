// Package interactive implements the PTY-backed interactive shell (spec
// §4.6, C6): at most one session at a time, a non-blocking reader loop
// forwarding output, input/resize/stop operations, and forced teardown on
// disconnect. Grounded on the teacher's internal/egg/server.go PTY spawn
// (pty.StartWithSize, SIGTERM teardown) and generalized from
// original_source's interactive_shell.py (env sanitization, detach-then-
// kill cleanup discipline).
package interactive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// sanitizedEnvVars are loader-injection variables stripped from the child
// environment (spec §4.6: "remove any loader-injection variables (e.g.
// library search paths added by the runtime)").
var sanitizedEnvVars = []string{"LD_LIBRARY_PATH", "LD_PRELOAD", "PYTHONPATH", "PYINSTALLER_CONFIG_DIR"}

// session is the single PTY-backed child (spec §3's InteractiveSession).
type session struct {
	cmd  *exec.Cmd
	ptmx *os.File
	send wire.SendFunc
}

// Manager owns the single-owner interactive session slot (spec §9's
// "single-owner resources... take-and-replace").
type Manager struct {
	mu      sync.Mutex
	current *session
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start spawns a PTY running cmdline. If a session already exists it is
// cleaned up first (spec §4.6: "if a session already exists, run cleanup
// first"; §8 invariant 1 and S4).
func (m *Manager) Start(ctx context.Context, cmdline string, send wire.SendFunc) error {
	m.Stop(ctx)

	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Env = sanitizedEnv(os.Environ())

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("spawn pty for %q: %w", cmdline, err)
	}

	sess := &session{cmd: cmd, ptmx: ptmx, send: send}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	go m.readLoop(ctx, sess)
	return nil
}

// sanitizedEnv strips loader-injection variables and sets TERM/LANG (spec
// §4.6).
func sanitizedEnv(env []string) []string {
	out := make([]string, 0, len(env)+2)
	for _, kv := range env {
		strip := false
		for _, name := range sanitizedEnvVars {
			if strings.HasPrefix(kv, name+"=") {
				strip = true
				break
			}
		}
		if !strip {
			out = append(out, kv)
		}
	}
	return append(out, "TERM=xterm-256color", "LANG=C.UTF-8")
}

// readLoop forwards PTY output as interactive_output frames until EOF or
// an unrecoverable error, then invokes cleanup (spec §4.6's reader task).
func (m *Manager) readLoop(ctx context.Context, sess *session) {
	buf := make([]byte, 1024)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			out := wire.InteractiveOutput{InteractiveOutput: wire.InteractiveOutputBody{
				Data: toValidUTF8(buf[:n]),
			}}
			if sendErr := sess.send(ctx, out); sendErr != nil {
				logger.Warn("interactive output send failed", "err", sendErr)
				break
			}
		}
		if err != nil {
			break
		}
	}
	m.cleanup(ctx, sess)
}

// Input writes raw bytes to the master side (spec §4.6's input op). On a
// broken pipe the session is torn down.
func (m *Manager) Input(ctx context.Context, data []byte) error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no interactive session is running")
	}
	if _, err := sess.ptmx.Write(data); err != nil {
		m.cleanup(ctx, sess)
		return fmt.Errorf("write to pty: %w", err)
	}
	return nil
}

// Resize sets the PTY window size (spec §4.6's resize op). spec is
// "rows,cols" (comma-separated), per §4.3.1's interactive:resize row.
func (m *Manager) Resize(rowsCols string) error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("no interactive session is running")
	}
	parts := strings.SplitN(rowsCols, ",", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed resize payload %q, want rows,cols", rowsCols)
	}
	rows, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return fmt.Errorf("parse rows: %w", err)
	}
	cols, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("parse cols: %w", err)
	}
	return pty.Setsize(sess.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Stop tears down the current session, if any (spec §4.6's stop op).
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return
	}
	m.cleanup(ctx, sess)
}

// Active reports whether a session currently exists.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// cleanup detaches the session before tearing it down, so a concurrent
// Input/Resize observes either the old session or none, never a session
// mid-teardown (spec §4.6, §9: "detach first, then terminate... prevents
// a double-cleanup"). sess no longer being m.current (already cleaned up
// by a racing call) makes this a no-op.
func (m *Manager) cleanup(ctx context.Context, sess *session) {
	m.mu.Lock()
	if m.current != sess {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Signal(syscall.SIGTERM)
	}
	sess.ptmx.Close()

	_ = sess.send(ctx, wire.InteractiveStoppedResult{InteractiveStopped: true})
}

// toValidUTF8 mirrors Python's bytes.decode(errors="replace"): invalid
// byte sequences become U+FFFD rather than being dropped or erroring.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			i++
			continue
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}
