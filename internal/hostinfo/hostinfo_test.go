package hostinfo

import (
	"context"
	"testing"
	"time"
)

func TestMetricsPopulatesBasicFields(t *testing.T) {
	p := NewProber()
	m, err := p.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if m.Version != AgentVersion {
		t.Errorf("Version = %q, want %q", m.Version, AgentVersion)
	}
	if m.BytesSentSpeed != 0 || m.BytesRecvSpeed != 0 {
		t.Error("first sample should have zero rates (no prior baseline)")
	}
}

func TestMetricsDerivesRateOnSecondSample(t *testing.T) {
	p := NewProber()
	p.lastBytesSent = 1000
	p.lastBytesRecv = 2000
	p.lastSampleAt = time.Now().Add(-1 * time.Second)

	sentRate, recvRate := p.deriveRates(2000, 4000)
	if sentRate <= 0 {
		t.Errorf("sentRate = %v, want > 0", sentRate)
	}
	if recvRate <= 0 {
		t.Errorf("recvRate = %v, want > 0", recvRate)
	}
}

func TestDeriveRatesClampsOnNonPositiveDelta(t *testing.T) {
	p := NewProber()
	p.lastBytesSent = 1000
	p.lastBytesRecv = 2000
	p.lastSampleAt = time.Now().Add(1 * time.Second) // next sample lands before this, so dt < 0

	sentRate, recvRate := p.deriveRates(2000, 4000)
	if sentRate != 0 || recvRate != 0 {
		t.Errorf("expected zero rates when dt <= 0, got %v %v", sentRate, recvRate)
	}
}

func TestFullSystemInfoDoesNotPanic(t *testing.T) {
	p := NewProber()
	info := p.FullSystemInfo(context.Background())
	_ = info // best-effort fields may all be empty on a minimal CI host
}
