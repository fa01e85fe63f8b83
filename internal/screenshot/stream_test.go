package screenshot

import (
	"context"
	"sync"
	"testing"
	"time"
)

type blockingBackend struct {
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (b *blockingBackend) Capture(ctx context.Context, quality int, monitorMode string) ([]byte, string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return []byte("data"), "image/jpeg", nil
}

func TestStreamSchedulerSkipsOverlap(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	sched := NewStreamScheduler(backend)

	var results int
	var mu sync.Mutex
	onResult := func(data []byte, mime string, err error) {
		mu.Lock()
		results++
		mu.Unlock()
	}

	if started := sched.MaybeCapture(context.Background(), 80, "all", onResult); !started {
		t.Fatal("expected first MaybeCapture to start")
	}
	if started := sched.MaybeCapture(context.Background(), 80, "all", onResult); started {
		t.Fatal("expected second MaybeCapture to be skipped while first is in flight")
	}

	close(backend.release)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := results
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	backend.mu.Lock()
	calls := backend.calls
	backend.mu.Unlock()
	if calls != 1 {
		t.Errorf("backend called %d times, want 1", calls)
	}

	if started := sched.MaybeCapture(context.Background(), 80, "all", onResult); !started {
		t.Error("expected a new capture to start once the previous finished")
	}
}
