// Command agent is the astra-monitor client daemon: it bootstraps the
// two-layer configuration, wires up every domain manager, and runs the
// connection state machine until terminated (spec §1, §4.1-§4.2).
// Grounded on the teacher's cmd/wtd/main.go (cobra root command,
// signal.NotifyContext-driven shutdown).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/gr4shin/astra-monitor/internal/config"
	"github.com/gr4shin/astra-monitor/internal/filetransfer"
	"github.com/gr4shin/astra-monitor/internal/hostinfo"
	"github.com/gr4shin/astra-monitor/internal/interactive"
	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/screenshot"
	"github.com/gr4shin/astra-monitor/internal/session"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// downloadBytesPerSecond caps agent→server download throughput (spec's
// DownloadLimiter, SPEC_FULL.md domain-stack addition); chosen as a
// conservative default with no source-of-truth in spec.md or
// original_source, same judgment-call footing as compressenc.Threshold.
const downloadBytesPerSecond = 4 * 1024 * 1024

func main() {
	root := &cobra.Command{
		Use:   "agent",
		Short: "astra-monitor remote management agent",
		RunE:  run,
	}

	root.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	root.Flags().String("log-file", "", "optional log file path (in addition to stdout)")
	root.Flags().String("embedded-blob", "", "override path to the embedded bootstrap blob (defaults to assets/config.dat next to the binary)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFile, _ := cmd.Flags().GetString("log-file")
	blobPath, _ := cmd.Flags().GetString("embedded-blob")

	if err := logger.Init(logLevel, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	embedded, err := config.LoadEmbeddedBlob(blobPath)
	if err != nil {
		logger.Error("failed to load embedded bootstrap blob", "err", err)
		return err
	}

	if err := config.EnsureConfigDir(); err != nil {
		logger.Warn("could not create external config directory", "err", err)
	}

	store, err := config.Load(embedded, config.ExternalConfigPath())
	if err != nil {
		logger.Error("failed to load settings overlay", "err", err)
		return err
	}

	capabilities := []string{wire.CapCommandAck, wire.CapFileChunked, wire.CapScreenshots, wire.CapPayloadCompression}
	agentConfig, err := config.Bootstrap(embedded, store.Current().ClientID, capabilities)
	if err != nil {
		logger.Error("bootstrap failed: embedded config is missing required fields", "err", err)
		return err
	}

	settings := store.Current()
	backoff := session.NewBackoff(
		time.Duration(settings.ReconnectDelay)*time.Second,
		time.Duration(settings.ReconnectMaxDelay)*time.Second,
		settings.ReconnectJitter,
	)

	sess := &session.Session{
		AgentConfig:     agentConfig,
		Settings:        store,
		Prober:          hostinfo.NewProber(),
		Files:           filetransfer.NewManager(),
		Interactive:     interactive.NewManager(),
		ScreenCapture:   screenshot.NewExecBackend(screenshot.LookupCurrentUser),
		DownloadLimiter: rate.NewLimiter(rate.Limit(downloadBytesPerSecond), downloadBytesPerSecond),
		Backoff:         backoff,
		OnStateChange: func(st session.State) {
			logger.Info("session state change", "state", st)
		},
	}
	sess.Screenshots = screenshot.NewStreamScheduler(sess.ScreenCapture)

	stopWatch := store.Watch(func(s config.Settings) {
		logger.Info("settings changed on disk", "monitoring_interval", s.MonitoringInterval)
	})
	defer stopWatch()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("agent starting", "client_id", agentConfig.ClientID, "server", agentConfig.ServerHost)
	err = sess.Run(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("session ended unexpectedly", "err", err)
		return err
	}
	logger.Info("agent shutting down")
	return nil
}
