package sysops

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// StreamCommand runs command through the shell, relaying each stdout/
// stderr line as a frame under messageKey, then a terminal frame under
// resultKey carrying the exit status (spec §4.8's "Streaming helpers").
func StreamCommand(ctx context.Context, command, messageKey, resultKey string, send wire.SendFunc) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}

	var wg sync.WaitGroup
	relay := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			frame := map[string]string{messageKey: scanner.Text()}
			if err := send(ctx, frame); err != nil {
				logger.Warn("streamed command output send failed", "err", err)
				return
			}
		}
	}
	wg.Add(2)
	go relay(stdout)
	go relay(stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	exitCode := 0
	resultText := "✅ done"
	if waitErr != nil {
		exitCode = 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		resultText = fmt.Sprintf("❌ %v", waitErr)
	}

	return send(ctx, map[string]any{resultKey: resultText, "exit_code": exitCode})
}
