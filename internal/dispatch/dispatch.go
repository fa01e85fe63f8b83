package dispatch

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/gr4shin/astra-monitor/internal/config"
	"github.com/gr4shin/astra-monitor/internal/filetransfer"
	"github.com/gr4shin/astra-monitor/internal/hostinfo"
	"github.com/gr4shin/astra-monitor/internal/interactive"
	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/screenshot"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// Dispatcher routes parsed commands to the per-verb handlers, emits acks,
// and recovers handler faults at the boundary (spec §4.3). It holds no
// session/transport knowledge — only wire.SendFunc — so it never needs to
// import internal/session or internal/transport.
type Dispatcher struct {
	Send            wire.SendFunc
	Capabilities    map[string]bool
	Settings        *config.Store
	Prober          *hostinfo.Prober
	Files           *filetransfer.Manager
	Interactive     *interactive.Manager
	ScreenCapture   screenshot.Backend
	DownloadLimiter *rate.Limiter
	Exit            func(code int)

	cwd string
}

// New builds a Dispatcher wired to every domain component it can route
// to. Exit is set to os.Exit (install_package's terminal step); callers
// may replace it.
func New(send wire.SendFunc, capabilities []string, settings *config.Store, prober *hostinfo.Prober, files *filetransfer.Manager, interactiveMgr *interactive.Manager, screenCapture screenshot.Backend, downloadLimiter *rate.Limiter) *Dispatcher {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	return &Dispatcher{
		Send:            send,
		Capabilities:    caps,
		Settings:        settings,
		Prober:          prober,
		Files:           files,
		Interactive:     interactiveMgr,
		ScreenCapture:   screenCapture,
		DownloadLimiter: downloadLimiter,
		Exit:            os.Exit,
		cwd:             cwd,
	}
}

// Dispatch parses frame.Command, optionally acks it, runs the matching
// handler under panic recovery, and sends whatever response the handler
// produces (spec §4.3: "An uncaught handler fault is caught at dispatcher
// level... the session is NOT terminated").
func (d *Dispatcher) Dispatch(ctx context.Context, frame wire.CommandFrame) {
	if frame.CommandID != "" && d.Capabilities[wire.CapCommandAck] {
		if err := d.Send(ctx, wire.AckFrame{
			CommandAck: frame.CommandID,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			logger.Warn("command_ack send failed", "err", err)
		}
	}

	result, err := d.safeRoute(ctx, frame)
	if err != nil {
		if sendErr := d.Send(ctx, wire.ErrorFrame{Error: err.Error(), CommandID: frame.CommandID}); sendErr != nil {
			logger.Warn("error frame send failed", "err", sendErr)
		}
		return
	}
	if result == nil {
		return
	}
	if sendErr := d.Send(ctx, result); sendErr != nil {
		logger.Warn("command result send failed", "verb", frame.Command, "err", sendErr)
	}
}

// safeRoute recovers a panicking handler into the same error envelope
// spec §4.3 describes for an uncaught fault, so one bad command never
// brings down the session loop.
func (d *Dispatcher) safeRoute(ctx context.Context, frame wire.CommandFrame) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Command execution failed: %v", r)
			result = nil
		}
	}()
	return d.route(ctx, frame)
}

// route dispatches on the parsed verb (spec §4.3.1's catalog).
func (d *Dispatcher) route(ctx context.Context, frame wire.CommandFrame) (any, error) {
	cid := frame.CommandID
	parsed := ParseCommand(frame.Command)

	switch parsed.Verb {
	case "refresh":
		return d.handleRefresh(ctx, cid)
	case "list_files":
		return d.handleListFiles(parsed.Args, cid)
	case "download_file_chunked":
		return nil, d.handleDownloadFileChunked(ctx, parsed.Args)
	case "screenshot_settings":
		return d.handleScreenshotSettings(parsed.Args, cid)
	case "get_full_system_info":
		return d.handleGetFullSystemInfo(ctx, cid)
	case "get_screenshot_settings":
		return d.handleGetScreenshotSettings(cid), nil
	case "upload_file_start":
		return nil, d.handleUploadFileStart(parsed.Args)
	case "upload_file_chunk":
		return nil, d.Files.AppendChunk(parsed.Args)
	case "upload_file_end":
		return d.handleUploadFileEnd(parsed.Args, cid), nil
	case "cancel_upload":
		d.Files.CancelUpload(parsed.Args)
		return nil, nil
	case "cancel_download":
		d.Files.CancelDownload(parsed.Args)
		return nil, nil
	case "apply_settings":
		return d.handleApplySettings(parsed.Args, cid)
	case "delete":
		return d.handleDelete(parsed.Args, cid), nil
	case "create_folder":
		return d.handleCreateFolder(parsed.Args, cid), nil
	case "rename_path":
		return d.handleRenamePath(parsed.Args, cid), nil
	case "apt:get_repos":
		return d.handleAptGetRepos(cid)
	case "apt:save_repo":
		return d.handleAptSaveRepo(parsed.Args, cid), nil
	case "apt:update":
		return nil, d.handleAptUpdate(ctx)
	case "apt:list_upgradable":
		return d.handleAptListUpgradable(ctx, cid)
	case "apt:upgrade_packages":
		return nil, d.handleAptUpgradePackages(ctx, parsed.Args)
	case "apt:full_upgrade":
		return nil, d.handleAptFullUpgrade(ctx)
	case "interactive:start":
		return d.handleInteractiveStart(ctx, parsed.Args, cid)
	case "interactive:input":
		return nil, d.Interactive.Input(ctx, []byte(parsed.Args))
	case "interactive:stop":
		d.Interactive.Stop(ctx)
		return wire.InteractiveStoppedResult{InteractiveStopped: true}, nil
	case "interactive:resize":
		return nil, d.Interactive.Resize(parsed.Args)
	case "install_package":
		return d.handleInstallPackage(parsed.Args, cid)
	case "screenshot_quality":
		return d.handleScreenshotQuality(ctx, parsed.Args, cid)
	case "screenshot":
		return d.handleScreenshot(ctx, cid)
	case "get_settings":
		return d.handleGetSettings(cid), nil
	case "shutdown":
		return d.handleShutdown(cid)
	case "reboot":
		return d.handleReboot(cid)
	case "execute":
		return d.handleExecute(ctx, parsed.Args, cid)
	case "show_message":
		return d.handleShowMessage(parsed.Args, cid)
	default:
		return nil, fmt.Errorf("Unknown command: %s", frame.Command)
	}
}
