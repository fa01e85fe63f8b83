package dispatch

import (
	"context"
	"fmt"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleInteractiveStart implements interactive:start (spec §4.3.1,
// §4.6). cmd is everything after the "interactive:start:" prefix.
func (d *Dispatcher) handleInteractiveStart(ctx context.Context, cmd string, cid string) (any, error) {
	if err := d.Interactive.Start(ctx, cmd, d.Send); err != nil {
		return nil, fmt.Errorf("start interactive session: %w", err)
	}
	return wire.InteractiveStartedResult{InteractiveStarted: true, CommandID: cid}, nil
}
