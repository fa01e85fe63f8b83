// Package hostinfo implements the telemetry pump and full system
// inventory (spec §4.4, §4.8, C4): periodic metric snapshots with
// rate-derived network speeds, and a best-effort hardware inventory.
// Host probing itself is an out-of-scope external collaborator per
// spec.md §1 ("specified only by the interface it returns"); this package
// is that probe, backed by gopsutil rather than hand-rolled /proc
// parsing, since the corpus already depends on gopsutil for exactly this
// (nishisan-dev/n-backup's go.mod).
package hostinfo

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gonet "github.com/shirou/gopsutil/v3/net"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

// AgentVersion is reported in every metric frame (spec §6.1's metric
// frame "version" field).
const AgentVersion = "1.0.0"

// excludedInterfaces are skipped when summing network counters (spec
// §4.4: "non-loopback, non-docker interfaces").
var excludedInterfaces = map[string]bool{"lo": true, "docker0": true}

// Prober produces telemetry snapshots, retaining only the last sample
// needed to derive a rate (spec §3's NetworkCounters, §4.4: "the
// telemetry pump does not retain in-agent history").
type Prober struct {
	mu            sync.Mutex
	lastBytesSent uint64
	lastBytesRecv uint64
	lastSampleAt  time.Time
}

// NewProber builds a Prober with no prior sample.
func NewProber() *Prober {
	return &Prober{}
}

// Metrics computes one telemetry snapshot (spec §4.4's per-interval
// computation, §6.1's metric frame shape).
func (p *Prober) Metrics(ctx context.Context) (wire.MetricFrame, error) {
	frame := wire.MetricFrame{Version: AgentVersion}

	if hn, err := host.HostnameWithContext(ctx); err == nil {
		frame.Hostname = hn
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuPercents) > 0 {
		frame.CPUPercent = cpuPercents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		frame.MemoryPercent = vm.UsedPercent
	}

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		frame.DiskPercent = du.UsedPercent
		frame.DiskTotal = du.Total
		frame.DiskUsed = du.Used
	}

	var bytesSent, bytesRecv uint64
	if counters, err := gonet.IOCountersWithContext(ctx, true); err == nil {
		for _, c := range counters {
			if excludedInterfaces[c.Name] {
				continue
			}
			bytesSent += c.BytesSent
			bytesRecv += c.BytesRecv
		}
	}
	frame.BytesSent = bytesSent
	frame.BytesRecv = bytesRecv
	frame.BytesSentSpeed, frame.BytesRecvSpeed = p.deriveRates(bytesSent, bytesRecv)

	if hi, err := host.InfoWithContext(ctx); err == nil {
		frame.Uptime = hi.Uptime
		frame.Platform = fmt.Sprintf("%s %s", hi.Platform, hi.PlatformVersion)
	}

	frame.LocalIP = localIP()

	return frame, nil
}

// deriveRates computes byte/sec rates from the delta against the last
// sample (spec §4.4: "(current − previous) / (now − last_ts), clamped to
// zero if Δt ≤ 0").
func (p *Prober) deriveRates(bytesSent, bytesRecv uint64) (sentRate, recvRate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if !p.lastSampleAt.IsZero() {
		dt := now.Sub(p.lastSampleAt).Seconds()
		if dt > 0 {
			if bytesSent >= p.lastBytesSent {
				sentRate = float64(bytesSent-p.lastBytesSent) / dt
			}
			if bytesRecv >= p.lastBytesRecv {
				recvRate = float64(bytesRecv-p.lastBytesRecv) / dt
			}
		}
	}
	p.lastBytesSent = bytesSent
	p.lastBytesRecv = bytesRecv
	p.lastSampleAt = now
	return sentRate, recvRate
}

// localIP returns the local address the kernel picks for outbound traffic,
// mirroring original_source's get_local_ip (a UDP "connect" to a public
// address without sending packets). It returns "" if no route exists.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}
