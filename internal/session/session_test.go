package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gr4shin/astra-monitor/internal/config"
	"github.com/gr4shin/astra-monitor/internal/filetransfer"
	"github.com/gr4shin/astra-monitor/internal/hostinfo"
	"github.com/gr4shin/astra-monitor/internal/interactive"
	"github.com/gr4shin/astra-monitor/internal/screenshot"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

type fakeBackend struct{}

func (fakeBackend) Capture(ctx context.Context, quality int, monitorMode string) ([]byte, string, error) {
	return []byte("x"), "image/jpeg", nil
}

func newTestSession(t *testing.T, wsURL string) *Session {
	t.Helper()
	store, err := config.Load(nil, filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	agentConfig, err := config.Bootstrap(map[string]any{
		"server_host": "127.0.0.1",
		"server_port": 0,
		"auth_token":  "test-token",
	}, store.Current().ClientID, []string{wire.CapCommandAck})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	var states []State
	sess := &Session{
		AgentConfig:   agentConfig,
		Settings:      store,
		Prober:        hostinfo.NewProber(),
		Files:         filetransfer.NewManager(),
		Interactive:   interactive.NewManager(),
		Screenshots:   screenshot.NewStreamScheduler(fakeBackend{}),
		ScreenCapture: fakeBackend{},
		Backoff:       NewBackoff(10*time.Millisecond, 50*time.Millisecond, 0),
		WSURL:         wsURL,
		OnStateChange: func(s State) { states = append(states, s) },
	}
	return sess
}

// TestSessionAuthenticatesAndDispatches drives a full Dialing ->
// Authenticating -> Active cycle against a real httptest websocket
// server: it expects an auth frame first, then sends one command frame
// and expects a dispatched response.
func TestSessionAuthenticatesAndDispatches(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := context.Background()

		_, authData, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read auth frame: %v", err)
			return
		}
		var auth wire.AuthFrame
		if err := json.Unmarshal(authData, &auth); err != nil || auth.AuthToken != "test-token" {
			t.Errorf("unexpected auth frame: %s (err=%v)", authData, err)
			return
		}

		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"command":"get_settings","command_id":"c1"}`)); err != nil {
			return
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			json.Unmarshal(data, &m)
			if _, ok := m["client_settings"]; ok {
				close(done)
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sess := newTestSession(t, wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go sess.Run(ctx)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("never observed a client_settings response")
	}
}

func TestWaitBackoffReturnsFalseOnCancel(t *testing.T) {
	sess := &Session{Backoff: NewBackoff(time.Hour, time.Hour, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sess.waitBackoff(ctx) {
		t.Fatal("expected waitBackoff to return false on an already-cancelled context")
	}
}

func TestDialURLDefaultsFromAgentConfig(t *testing.T) {
	sess := &Session{AgentConfig: &config.AgentConfig{ServerHost: "example.com", ServerPort: 9999}}
	if got, want := sess.dialURL(), "ws://example.com:9999"; got != want {
		t.Errorf("dialURL() = %q, want %q", got, want)
	}
}
