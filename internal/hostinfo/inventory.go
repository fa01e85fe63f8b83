package hostinfo

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gonet "github.com/shirou/gopsutil/v3/net"
)

// FullSystemInfo is the agent's full hardware/software inventory (spec
// §4.3.1's get_full_system_info, "full inventory" — fields left
// unenumerated by spec.md and supplemented here from original_source's
// get_linux_full_system_info, SPEC_FULL.md §3).
type FullSystemInfo struct {
	OSDistro     string   `json:"os_distro"`
	OSVersion    string   `json:"os_version"`
	Architecture string   `json:"architecture"`
	Kernel       string   `json:"kernel"`
	Uptime       string   `json:"uptime"`
	InstallDate  string   `json:"install_date"`
	CPUModel     string   `json:"cpu_model"`
	CPUCores     int32    `json:"cpu_cores"`
	CPUFreqMHz   float64  `json:"cpu_freq_mhz"`
	RAMTotal     uint64   `json:"ram_total"`
	GPU          string   `json:"gpu"`
	Motherboard  string   `json:"motherboard"`
	BIOS         string   `json:"bios"`
	Storage      []Disk   `json:"storage"`
	Network      []NIC    `json:"network"`
	USBDevices   []string `json:"usb_devices"`
	AudioDevices []string `json:"audio_devices"`
	Cameras      []string `json:"cameras"`
}

// Disk is one mounted filesystem's usage (storage field of
// FullSystemInfo).
type Disk struct {
	Device     string `json:"device"`
	Mountpoint string `json:"mountpoint"`
	FSType     string `json:"fstype"`
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
}

// NIC is one network interface's addresses (network field of
// FullSystemInfo).
type NIC struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses"`
}

// FullSystemInfo gathers the full inventory. Every field is best-effort:
// a probe that fails (unsupported platform, missing tool, permission
// denied) leaves its field at the zero value rather than failing the
// whole snapshot — this mirrors original_source's per-field try/except
// pattern in system_utils.py.
func (p *Prober) FullSystemInfo(ctx context.Context) FullSystemInfo {
	info := FullSystemInfo{Architecture: runtime.GOARCH}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.OSDistro = hi.Platform
		info.OSVersion = hi.PlatformVersion
		info.Kernel = hi.KernelVersion
		info.Uptime = (time.Duration(hi.Uptime) * time.Second).String()
	}

	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
		info.CPUFreqMHz = cpuInfo[0].Mhz
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = int32(counts)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.RAMTotal = vm.Total
	}

	if parts, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, part := range parts {
			usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
			if err != nil {
				continue
			}
			info.Storage = append(info.Storage, Disk{
				Device:     part.Device,
				Mountpoint: part.Mountpoint,
				FSType:     part.Fstype,
				TotalBytes: usage.Total,
				UsedBytes:  usage.Used,
			})
		}
	}

	if ifaces, err := gonet.InterfacesWithContext(ctx); err == nil {
		for _, iface := range ifaces {
			var addrs []string
			for _, a := range iface.Addrs {
				addrs = append(addrs, a.Addr)
			}
			info.Network = append(info.Network, NIC{Name: iface.Name, Addresses: addrs})
		}
	}

	info.GPU = firstLineOf(ctx, "lspci", "-nn")
	info.Motherboard = firstLineOf(ctx, "dmidecode", "-s", "baseboard-product-name")
	info.BIOS = firstLineOf(ctx, "dmidecode", "-s", "bios-version")
	info.USBDevices = linesOf(ctx, "lsusb")
	info.AudioDevices = linesOf(ctx, "aplay", "-l")
	info.Cameras = globVideoDevices()

	return info
}

// firstLineOf runs a best-effort shell command and returns its first
// output line, or "" if the command is unavailable or fails.
func firstLineOf(ctx context.Context, name string, args ...string) string {
	lines := linesOf(ctx, name, args...)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// linesOf runs a best-effort shell command and returns its output split
// into non-empty lines.
func linesOf(ctx context.Context, name string, args ...string) []string {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, name, args...).Output()
	if err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// globVideoDevices lists /dev/video* camera device nodes, best effort.
func globVideoDevices() []string {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil
	}
	return matches
}
