package screenshot

import (
	"context"
	"sync/atomic"
)

// StreamScheduler fires a new capture only if the previous one has
// finished (spec §4.7: "The streaming mode... fires a new capture only if
// the previous capture task has finished, avoiding overlap"). It is
// driven by the session loop's pacing tick (spec §5).
type StreamScheduler struct {
	backend Backend
	inFlight int32
}

// NewStreamScheduler builds a scheduler around backend.
func NewStreamScheduler(backend Backend) *StreamScheduler {
	return &StreamScheduler{backend: backend}
}

// MaybeCapture attempts to start a capture; onResult is invoked with the
// outcome once the backend returns. If a capture is already in flight,
// MaybeCapture is a no-op and returns false immediately.
func (s *StreamScheduler) MaybeCapture(ctx context.Context, quality int, monitorMode string, onResult func(data []byte, mime string, err error)) bool {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		return false
	}
	go func() {
		defer atomic.StoreInt32(&s.inFlight, 0)
		data, mime, err := s.backend.Capture(ctx, quality, monitorMode)
		onResult(data, mime, err)
	}()
	return true
}
