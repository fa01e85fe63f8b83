// Package session implements the agent's connection state machine (spec
// §4.2, C2): Dialing → Authenticating → Active → Reconnecting → Stopped,
// built around internal/transport's serialized channel and
// internal/dispatch's command router. Grounded on the teacher's
// internal/ws.Client.Run/connectAndServe loop, generalized from
// wingthing's single implicit state to the full named state machine
// spec.md requires, with doubling+jitter backoff instead of the
// teacher's jitter-less one (internal/session/backoff.go).
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gr4shin/astra-monitor/internal/config"
	"github.com/gr4shin/astra-monitor/internal/dispatch"
	"github.com/gr4shin/astra-monitor/internal/filetransfer"
	"github.com/gr4shin/astra-monitor/internal/hostinfo"
	"github.com/gr4shin/astra-monitor/internal/interactive"
	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/screenshot"
	"github.com/gr4shin/astra-monitor/internal/sysops"
	"github.com/gr4shin/astra-monitor/internal/transport"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// State names the session's current phase (spec §3's SessionState).
type State string

const (
	Dialing        State = "dialing"
	Authenticating State = "authenticating"
	Active         State = "active"
	Reconnecting   State = "reconnecting"
	Stopped        State = "stopped"
)

// Session owns one logical connection to the control server across
// however many reconnects it takes, plus every domain manager a command
// might need (spec §3's ownership rule: "the session owns all of the
// above").
type Session struct {
	AgentConfig *config.AgentConfig
	Settings    *config.Store
	Prober      *hostinfo.Prober
	Files       *filetransfer.Manager
	Interactive *interactive.Manager
	Screenshots *screenshot.StreamScheduler
	ScreenCapture screenshot.Backend
	DownloadLimiter *rate.Limiter

	Backoff *Backoff

	// OnStateChange, if set, is notified of every state transition.
	OnStateChange func(State)

	// MaxFrameBytes overrides transport.DefaultMaxFrameBytes when non-zero.
	MaxFrameBytes int64

	// WSURL overrides the AgentConfig-derived dial target. Tests point this
	// at an httptest server; production leaves it empty.
	WSURL string
}

// Run drives the state machine until ctx is cancelled (spec §4.2). It
// returns only once ctx is cancelled, reaching Stopped and returning
// ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.setState(Stopped)
			return ctx.Err()
		}

		s.setState(Dialing)
		conn, err := s.dial(ctx)
		if err != nil {
			logger.Warn("dial failed", "err", err)
			if !s.waitBackoff(ctx) {
				s.setState(Stopped)
				return ctx.Err()
			}
			continue
		}

		s.setState(Authenticating)
		send := connSend(conn)
		if err := s.authenticate(ctx, send); err != nil {
			logger.Warn("authentication failed", "err", err)
			conn.Close("auth failed")
			if !s.waitBackoff(ctx) {
				s.setState(Stopped)
				return ctx.Err()
			}
			continue
		}

		s.Backoff.Reset()
		s.setState(Active)
		conn.StartHeartbeat(ctx)
		activeErr := s.serveActive(ctx, conn, send)
		conn.Close("active session ended")

		if ctx.Err() != nil {
			s.setState(Stopped)
			return ctx.Err()
		}
		logger.Warn("active session ended, reconnecting", "err", activeErr)
		s.setState(Reconnecting)
		if !s.waitBackoff(ctx) {
			s.setState(Stopped)
			return ctx.Err()
		}
	}
}

func (s *Session) setState(st State) {
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

// waitBackoff sleeps for the next backoff interval, returning false if ctx
// is cancelled first (spec §8 invariant 6).
func (s *Session) waitBackoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.Backoff.Next()):
		return true
	}
}

// dialURL returns WSURL if set, overriding the host:port-derived dial
// target — used by tests to point at an httptest server.
func (s *Session) dialURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	return fmt.Sprintf("ws://%s:%d", s.AgentConfig.ServerHost, s.AgentConfig.ServerPort)
}

func (s *Session) dial(ctx context.Context) (*transport.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.AgentConfig.AuthToken)
	return transport.Dial(ctx, s.dialURL(), header, s.MaxFrameBytes)
}

// connSend adapts a *transport.Conn into a wire.SendFunc: marshal, then
// hand the bytes to the transport's serialized Send (spec §5's "the send
// side of the transport is the principal shared resource").
func connSend(conn *transport.Conn) wire.SendFunc {
	return func(ctx context.Context, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal outbound frame: %w", err)
		}
		return conn.Send(ctx, data)
	}
}

// authenticate sends the auth frame (spec §4.2 Authenticating, §6.1).
func (s *Session) authenticate(ctx context.Context, send wire.SendFunc) error {
	hostname, _ := os.Hostname()
	settings := s.Settings.Current()
	return send(ctx, wire.AuthFrame{
		AuthToken:       s.AgentConfig.AuthToken,
		ClientID:        s.AgentConfig.ClientID,
		ProtocolVersion: s.AgentConfig.ProtocolVersion,
		Capabilities:    s.AgentConfig.Capabilities,
		ClientInfo: wire.ClientInfo{
			Hostname:     hostname,
			OSType:       runtime.GOOS,
			PlatformFull: runtime.GOOS + "/" + runtime.GOARCH,
			Settings:     settings.WithoutClientID(),
		},
	})
}

// serveActive runs the cooperative Active-state loop: one receiver
// goroutine feeding frame bytes to this select, a telemetry/screenshot
// pacing tick, and per-command dispatch offloaded to its own goroutine,
// except upload_file_* and cancel_upload frames, which are dispatched on
// this loop in arrival order so upload chunks are appended sequentially
// (spec §5's scheduling model; the 1-second receive timeout doubling as
// the pacing tick is realized here as a ticker alongside a blocking
// receive, rather than a single timed receive call, since
// internal/transport.Conn.Recv has no built-in deadline parameter).
func (s *Session) serveActive(ctx context.Context, conn *transport.Conn, send wire.SendFunc) error {
	d := dispatch.New(send, s.AgentConfig.Capabilities, s.Settings, s.Prober, s.Files, s.Interactive, s.ScreenCapture, s.DownloadLimiter)

	cron, cronErr := sysops.StartScheduledUpgradableCheck(sysops.DefaultUpgradableCheckSchedule, send)
	if cronErr != nil {
		logger.Warn("scheduled upgradable check not started", "err", cronErr)
	} else {
		defer cron.Stop()
	}

	activeCtx, cancelActive := context.WithCancel(ctx)
	defer cancelActive()
	defer s.teardownActive(ctx)

	recvCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		for {
			data, err := conn.Recv(activeCtx)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case recvCh <- data:
			case <-activeCtx.Done():
				return
			}
		}
	}()

	pace := time.NewTicker(1 * time.Second)
	defer pace.Stop()
	var sinceTelemetry time.Duration

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case data := <-recvCh:
			frame, err := wire.DecodeCommand(data)
			if err != nil {
				logger.Warn("malformed command frame", "err", err)
				continue
			}
			if strings.HasPrefix(frame.Command, "upload_file_") || strings.HasPrefix(frame.Command, "cancel_upload") {
				d.Dispatch(ctx, frame)
				continue
			}
			go d.Dispatch(ctx, frame)
		case <-pace.C:
			sinceTelemetry += time.Second
			interval := time.Duration(s.Settings.Current().MonitoringInterval) * time.Second
			if interval <= 0 {
				interval = 10 * time.Second
			}
			if sinceTelemetry >= interval {
				sinceTelemetry = 0
				go s.emitTelemetry(ctx, send)
			}
			s.maybeStreamScreenshot(ctx, send)
		}
	}
}

// emitTelemetry sends one metric frame (spec §4.4).
func (s *Session) emitTelemetry(ctx context.Context, send wire.SendFunc) {
	metrics, err := s.Prober.Metrics(ctx)
	if err != nil {
		logger.Warn("metrics collection failed", "err", err)
		return
	}
	if err := send(ctx, metrics); err != nil {
		logger.Warn("metrics send failed", "err", err)
	}
}

// maybeStreamScreenshot fires a streaming capture if enabled and no
// capture is already in flight (spec §4.7).
func (s *Session) maybeStreamScreenshot(ctx context.Context, send wire.SendFunc) {
	if s.Screenshots == nil {
		return
	}
	ss := s.Settings.Current().Screenshot
	if !ss.Enabled {
		return
	}
	s.Screenshots.MaybeCapture(ctx, ss.Quality, ss.MonitorMode, func(data []byte, mime string, err error) {
		if err != nil {
			logger.Warn("streaming screenshot capture failed", "err", err)
			return
		}
		result := wire.ScreenshotResult{
			Screenshot: base64.StdEncoding.EncodeToString(data),
			Quality:    ss.Quality,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := send(ctx, result); err != nil {
			logger.Warn("streaming screenshot send failed", "err", err)
		}
	})
}

// teardownActive tears down every single-owner resource in the order
// spec §3 mandates: interactive first, then the upload context, then
// download jobs.
func (s *Session) teardownActive(ctx context.Context) {
	s.Interactive.Stop(ctx)
	s.Files.AbortUpload()
	s.Files.CancelAllDownloads()
}
