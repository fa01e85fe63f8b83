package interactive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

func collectingSend() (wire.SendFunc, func() []any) {
	var mu sync.Mutex
	var frames []any
	send := func(ctx context.Context, v any) error {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, v)
		return nil
	}
	get := func() []any {
		mu.Lock()
		defer mu.Unlock()
		out := make([]any, len(frames))
		copy(out, frames)
		return out
	}
	return send, get
}

func TestStartInputStop(t *testing.T) {
	send, frames := collectingSend()
	m := NewManager()
	ctx := context.Background()

	if err := m.Start(ctx, "/bin/cat", send); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Active() {
		t.Fatal("expected a session to be active")
	}

	if err := m.Input(ctx, []byte("hello\n")); err != nil {
		t.Fatalf("Input: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var sawOutput bool
	for time.Now().Before(deadline) {
		for _, f := range frames() {
			if out, ok := f.(wire.InteractiveOutput); ok && out.InteractiveOutput.Data != "" {
				sawOutput = true
			}
		}
		if sawOutput {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !sawOutput {
		t.Error("expected at least one interactive_output frame echoing input")
	}

	m.Stop(ctx)
	if m.Active() {
		t.Error("expected no session active after Stop")
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	send, frames := collectingSend()
	m := NewManager()
	ctx := context.Background()

	if err := m.Start(ctx, "/bin/sh", send); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	if err := m.Start(ctx, "/bin/sh", send); err != nil {
		t.Fatalf("Start second: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var stoppedCount int
	for time.Now().Before(deadline) {
		stoppedCount = 0
		for _, f := range frames() {
			if _, ok := f.(wire.InteractiveStoppedResult); ok {
				stoppedCount++
			}
		}
		if stoppedCount >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if stoppedCount < 1 {
		t.Error("expected at least one interactive_stopped frame from replacing the first session")
	}
	if !m.Active() {
		t.Error("expected the second session to be active")
	}
	m.Stop(ctx)
}
