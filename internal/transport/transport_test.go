package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func newTestServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("accept error: %v", err)
			return
		}
		handler(conn)
	}))
}

func TestDialSendRecv(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Logf("server read: %v", err)
			return
		}
		if string(data) != `{"hello":"agent"}` {
			t.Errorf("server got %q", data)
		}
		conn.Write(ctx, websocket.MessageText, []byte(`{"hello":"server"}`))
		conn.Close(websocket.StatusNormalClosure, "done")
	})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer test-token")
	conn, err := Dial(ctx, wsURL, header, 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close("test done")

	if err := conn.Send(ctx, []byte(`{"hello":"agent"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	data, err := conn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(data) != `{"hello":"server"}` {
		t.Errorf("Recv got %q", data)
	}

	if _, err := conn.Recv(ctx); err == nil {
		t.Fatal("expected error reading after server close")
	}
}

func TestDialRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", nil, 0)
	if err == nil {
		t.Fatal("expected dial error against a closed port")
	}
}
