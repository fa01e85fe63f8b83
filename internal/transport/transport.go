// Package transport implements the agent's single full-duplex message
// channel (spec §4.1, C1): dial, serialized send, receive, heartbeat, and
// failure classification for the session state machine's reconnect logic.
// It is grounded on the teacher's internal/ws.Client, generalized from a
// bespoke relay protocol to a thin, reusable text-frame channel: dial
// with a bearer header, one send mutex around the whole frame, a ticking
// heartbeat goroutine, and a blocking read loop the caller drives.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// DefaultMaxFrameBytes is the default inbound frame size ceiling (spec
	// §4.1: "default 100 MiB").
	DefaultMaxFrameBytes = 100 * 1024 * 1024

	// HeartbeatInterval is how often the transport pings the peer (spec
	// §4.1, §6.1: "30 s ping").
	HeartbeatInterval = 30 * time.Second

	// PongDeadline is how long a ping may go unanswered before the
	// connection is considered dead (spec §4.1, §6.1: "60 s pong
	// deadline").
	PongDeadline = 60 * time.Second

	writeTimeout = 10 * time.Second
)

// Failure classes for C2's reconnect logic (spec §4.1: "each classified
// for C2's reconnect logic", §7's transient-transport-error taxonomy).
var (
	ErrClosed   = errors.New("transport: connection closed")
	ErrRefused  = errors.New("transport: connection refused")
	ErrTimeout  = errors.New("transport: timed out")
	ErrIO       = errors.New("transport: io error")
)

// Conn is one dialed duplex channel. The zero value is not usable; build
// one with Dial.
type Conn struct {
	ws           *websocket.Conn
	sendMu       sync.Mutex
	heartbeatCancel context.CancelFunc
}

// Dial opens the channel to wsURL (a ws:// or wss:// URL), sending header
// along with the handshake (the Authorization: Bearer token, per the
// teacher's connectAndServe), and negotiates maxFrameBytes as the inbound
// read limit (0 means DefaultMaxFrameBytes).
func Dial(ctx context.Context, wsURL string, header http.Header, maxFrameBytes int64) (*Conn, error) {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, classify(err)
	}
	ws.SetReadLimit(maxFrameBytes)
	return &Conn{ws: ws}, nil
}

// Send writes one whole text frame, serialized against every other
// concurrent sender (spec §4.1: "send is serialized... concurrent senders
// are queued", §5's "sole serialization point").
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		return classify(err)
	}
	return nil
}

// Recv blocks for the next inbound text frame. It returns ErrClosed when
// the peer closes the channel, distinctly from a transient IO error (spec
// §4.1: "on close it signals closed distinctly from a decode error").
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// StartHeartbeat launches the ping goroutine. It pings every
// HeartbeatInterval and treats a pong not observed within PongDeadline as
// a dead connection, closing it so Recv unblocks with an error. It stops
// when ctx is cancelled or Close is called.
func (c *Conn) StartHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	c.heartbeatCancel = cancel
	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(hbCtx, PongDeadline)
				err := c.ws.Ping(pingCtx)
				pingCancel()
				if err != nil {
					c.Close("heartbeat timeout")
					return
				}
			}
		}
	}()
}

// Close tears down the channel, unblocking any in-flight Recv.
func (c *Conn) Close(reason string) error {
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
	}
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// classify maps a coder/websocket or net error onto the transport's
// sentinel failure classes (spec §4.1: "transport-closed, refused,
// timeout, generic IO error").
func classify(err error) error {
	if err == nil {
		return nil
	}
	closeStatus := websocket.CloseStatus(err)
	if closeStatus != -1 || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return fmt.Errorf("%w: %v", ErrRefused, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
