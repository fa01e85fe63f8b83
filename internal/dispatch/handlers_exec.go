package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gr4shin/astra-monitor/internal/sysops"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleExecute implements execute (spec §4.3.1): a leading "cd " updates
// the in-process working directory without spawning a shell; anything
// else runs through `sh -c` with a 30-second timeout.
func (d *Dispatcher) handleExecute(ctx context.Context, cmd string, cid string) (any, error) {
	cmd = strings.TrimSpace(cmd)

	if rest, ok := strings.CutPrefix(cmd, "cd "); ok {
		target := strings.TrimSpace(rest)
		if target == "" {
			target = "~"
		}
		if target == "~" || strings.HasPrefix(target, "~/") {
			home, err := os.UserHomeDir()
			if err == nil {
				target = filepath.Join(home, strings.TrimPrefix(target, "~"))
			}
		}
		newPath := target
		if !filepath.IsAbs(newPath) {
			newPath = filepath.Join(d.cwd, target)
		}
		newPath = filepath.Clean(newPath)

		info, err := os.Stat(newPath)
		if err != nil || !info.IsDir() {
			return wire.CommandErrorResult{CommandError: fmt.Sprintf("❌ cd: no such file or directory: %s", target), CommandID: cid}, nil
		}
		d.cwd = newPath
		return wire.PromptUpdateResult{PromptUpdate: d.cwd, CommandID: cid}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	c := exec.CommandContext(cctx, "sh", "-c", cmd)
	c.Dir = d.cwd
	out, err := c.CombinedOutput()
	if cctx.Err() != nil {
		return wire.CommandErrorResult{CommandError: "⌛ Timeout expired", CommandID: cid}, nil
	}
	if err != nil {
		return wire.CommandErrorResult{CommandError: string(out), CommandID: cid}, nil
	}
	return wire.CommandResult{CommandResult: string(out), CommandID: cid}, nil
}

// handleInstallPackage implements install_package: launch the detached
// updater and exit the process once the result frame is on the wire
// (spec §4.3.1, §4.8).
func (d *Dispatcher) handleInstallPackage(packagePath string, cid string) (any, error) {
	if err := sysops.InstallPackage(packagePath); err != nil {
		return wire.InstallResult{InstallResult: "error", Error: err.Error(), CommandID: cid}, nil
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		d.Exit(0)
	}()
	return wire.InstallResult{InstallResult: "updating", CommandID: cid}, nil
}

// handleScreenshotQuality implements screenshot_quality: a one-shot
// capture at the given quality (spec §4.3.1, §4.7).
func (d *Dispatcher) handleScreenshotQuality(ctx context.Context, args string, cid string) (any, error) {
	quality, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return nil, fmt.Errorf("parse screenshot_quality: %w", err)
	}
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	return d.capture(ctx, quality, d.Settings.Current().Screenshot.MonitorMode, cid)
}

// handleScreenshot implements screenshot: a one-shot capture using the
// persisted settings quality (spec §4.3.1, §4.7).
func (d *Dispatcher) handleScreenshot(ctx context.Context, cid string) (any, error) {
	s := d.Settings.Current().Screenshot
	return d.capture(ctx, s.Quality, s.MonitorMode, cid)
}

func (d *Dispatcher) capture(ctx context.Context, quality int, monitorMode string, cid string) (any, error) {
	data, _, err := d.ScreenCapture.Capture(ctx, quality, monitorMode)
	if err != nil {
		return wire.ScreenshotResult{Error: err.Error(), Quality: quality, CommandID: cid}, nil
	}
	return wire.ScreenshotResult{
		Screenshot: base64.StdEncoding.EncodeToString(data),
		Quality:    quality,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		CommandID:  cid,
	}, nil
}

// handleShutdown implements shutdown (spec §4.3.1, §4.8).
func (d *Dispatcher) handleShutdown(cid string) (any, error) {
	if err := sysops.Shutdown(); err != nil {
		return nil, fmt.Errorf("shutdown: %w", err)
	}
	return wire.StatusResult{Status: "shutting_down", CommandID: cid}, nil
}

// handleReboot implements reboot (spec §4.3.1, §4.8).
func (d *Dispatcher) handleReboot(cid string) (any, error) {
	if err := sysops.Reboot(); err != nil {
		return nil, fmt.Errorf("reboot: %w", err)
	}
	return wire.StatusResult{Status: "rebooting", CommandID: cid}, nil
}

// handleShowMessage implements show_message: a best-effort desktop
// notification sent via notify-send as the agent process's own user on
// DISPLAY=:0 (spec §4.3.1: "§ collaborator" — desktop notification
// delivery is an out-of-scope external surface per spec.md §1, so this is
// a minimal shim rather than a full implementation). It does not look up
// the active graphical session's user.
func (d *Dispatcher) handleShowMessage(message string, cid string) (any, error) {
	u, err := user.Current()
	if err != nil {
		return wire.MessageResult{MessageResult: "error: " + err.Error(), CommandID: cid}, nil
	}
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "runuser", "-u", u.Username, "--", "notify-send", "Astra Monitor", message)
	cmd.Env = append(cmd.Env, "DISPLAY=:0")
	if err := cmd.Run(); err != nil {
		return wire.MessageResult{MessageResult: "error: " + err.Error(), CommandID: cid}, nil
	}
	return wire.MessageResult{MessageResult: "sent", CommandID: cid}, nil
}
