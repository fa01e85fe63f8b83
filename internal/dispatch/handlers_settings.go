package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleApplySettings implements apply_settings: merge, re-clamp, persist
// (spec §4.3.1, §4.9). The JSON arg is everything after the verb — this
// is the reason the dispatch parser never does a global colon-split,
// since the payload itself routinely contains colons.
func (d *Dispatcher) handleApplySettings(args string, cid string) (any, error) {
	var partial map[string]any
	if err := json.Unmarshal([]byte(args), &partial); err != nil {
		return nil, fmt.Errorf("parse apply_settings payload: %w", err)
	}
	applied, err := d.Settings.ApplySettings(partial)
	if err != nil {
		return nil, fmt.Errorf("apply settings: %w", err)
	}
	return wire.SettingsAppliedResult{SettingsApplied: applied.WithoutClientID(), CommandID: cid}, nil
}

// handleScreenshotSettings implements screenshot_settings: merge into
// settings.screenshot after clamp (spec §4.3.1).
func (d *Dispatcher) handleScreenshotSettings(args string, cid string) (any, error) {
	var partial map[string]any
	if err := json.Unmarshal([]byte(args), &partial); err != nil {
		return nil, fmt.Errorf("parse screenshot_settings payload: %w", err)
	}
	updated, err := d.Settings.ApplyScreenshotSettings(partial)
	if err != nil {
		return nil, fmt.Errorf("apply screenshot settings: %w", err)
	}
	asMap, err := settingsSubsetAsMap(updated)
	if err != nil {
		return nil, err
	}
	return wire.ScreenshotSettingsUpdatedResult{ScreenshotSettingsUpdated: asMap, CommandID: cid}, nil
}

// handleGetScreenshotSettings implements get_screenshot_settings: echo
// (spec §4.3.1).
func (d *Dispatcher) handleGetScreenshotSettings(cid string) any {
	asMap, err := settingsSubsetAsMap(d.Settings.Current().Screenshot)
	if err != nil {
		return wire.ErrorFrame{Error: err.Error(), CommandID: cid}
	}
	return wire.ScreenshotSettingsResult{ScreenshotSettings: asMap, CommandID: cid}
}

// handleGetSettings implements get_settings: echo settings minus
// client_id (spec §4.3.1).
func (d *Dispatcher) handleGetSettings(cid string) any {
	return wire.ClientSettingsResult{ClientSettings: d.Settings.Current().WithoutClientID(), CommandID: cid}
}

// settingsSubsetAsMap round-trips v through JSON to a map, the same
// marshal-then-unmarshal technique internal/config uses to merge partial
// overlays onto a typed struct.
func settingsSubsetAsMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal settings subset: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal settings subset: %w", err)
	}
	return m, nil
}
