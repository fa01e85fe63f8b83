package dispatch

import (
	"context"
	"fmt"

	"github.com/gr4shin/astra-monitor/internal/compressenc"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleRefresh implements refresh: a single metric snapshot (spec
// §4.3.1, §4.4). The metric frame is returned flat, not nested under a
// response key, matching the wire shape spec §6.1 defines for it.
func (d *Dispatcher) handleRefresh(ctx context.Context, cid string) (any, error) {
	metrics, err := d.Prober.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	_ = cid // the metric frame carries no command_id field (spec §6.1)
	return metrics, nil
}

// handleGetFullSystemInfo implements get_full_system_info: a full
// inventory, compressed above compressenc.Threshold (spec §4.3.1,
// SPEC_FULL.md §3's supplemented payload-compression capability).
func (d *Dispatcher) handleGetFullSystemInfo(ctx context.Context, cid string) (any, error) {
	info := d.Prober.FullSystemInfo(ctx)
	payload, compressed, err := compressenc.MaybeCompress(info)
	if err != nil {
		return nil, fmt.Errorf("compress full_system_info: %w", err)
	}
	return wire.FullSystemInfoResult{FullSystemInfo: payload, Compressed: compressed, CommandID: cid}, nil
}
