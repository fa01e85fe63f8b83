// Package config implements the agent's two-layer configuration (spec §4.9,
// §6.2): an immutable AgentConfig bootstrapped from an obfuscated embedded
// blob, and a mutable Settings store persisted as an external JSON overlay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/gr4shin/astra-monitor/internal/logger"
)

// ScreenshotSettings is the nested screenshot configuration block (spec §3).
type ScreenshotSettings struct {
	Quality      int    `json:"quality"`
	RefreshDelay int    `json:"refresh_delay"`
	Enabled      bool   `json:"enabled"`
	MonitorMode  string `json:"monitor_mode"`
}

// Settings is the mutable, persisted configuration (spec §3). ClientID is
// part of the persisted document but is never exposed to, nor accepted
// from, a server-driven update (spec's ClientID invariant).
type Settings struct {
	MonitoringInterval int                `json:"monitoring_interval"`
	ReconnectDelay     int                `json:"reconnect_delay"`
	ReconnectMaxDelay  int                `json:"reconnect_max_delay"`
	ReconnectJitter    float64            `json:"reconnect_jitter"`
	Screenshot         ScreenshotSettings `json:"screenshot"`
	InfoText           string             `json:"info_text"`
	Tags               []string           `json:"tags,omitempty"`
	ClientID           string             `json:"client_id"`
}

// Defaults returns the built-in defaults, matching the original client's
// settings dict exactly (original_source/websocket_client.py).
func Defaults() Settings {
	return Settings{
		MonitoringInterval: 10,
		ReconnectDelay:     5,
		ReconnectMaxDelay:  60,
		ReconnectJitter:    0.2,
		Screenshot: ScreenshotSettings{
			Quality:      85,
			RefreshDelay: 5,
			Enabled:      false,
			MonitorMode:  "all",
		},
	}
}

// clampScreenshot enforces spec §3's invariants: quality in [1,100],
// refresh delay in [1,60] seconds, monitor mode defaults to "all" on any
// value other than "all"/"primary". Idempotent by construction.
func clampScreenshot(s *ScreenshotSettings) {
	if s.Quality < 1 {
		s.Quality = 1
	} else if s.Quality > 100 {
		s.Quality = 100
	}
	if s.RefreshDelay < 1 {
		s.RefreshDelay = 1
	} else if s.RefreshDelay > 60 {
		s.RefreshDelay = 60
	}
	if s.MonitorMode != "all" && s.MonitorMode != "primary" {
		s.MonitorMode = "all"
	}
}

// forbiddenExternalKeys are the bootstrap fields an external overlay file
// must never be allowed to set (spec §4.9: "MUST NOT override server host,
// server port, or auth token").
var forbiddenExternalKeys = []string{"server_host", "server_port", "auth_token"}

// Store owns the in-memory Settings plus its persistence to the external
// JSON overlay file (spec C9). Server-driven changes go through
// ApplySettings or ApplyScreenshotSettings, which clamp and persist; the
// Watch reload of an on-disk edit clamps but does not write the file back.
type Store struct {
	mu       sync.Mutex
	current  Settings
	path     string
	embedded map[string]any // raw embedded blob, for Bootstrap's forbidden-key fields
	watcher  *fsnotify.Watcher
}

// Load builds a Store from the embedded blob (already deobfuscated) and the
// external overlay file at path. It is the Go realization of spec §4.9's
// bootstrap state machine: embedded values seed the defaults, the external
// file overlays everything except the forbidden keys (logged and ignored if
// present), and a stable client id is generated on first run and persisted.
func Load(embedded map[string]any, path string) (*Store, error) {
	s := Defaults()
	applyRawOverlay(&s, embedded)

	externalRaw, err := os.ReadFile(path)
	if err == nil {
		var external map[string]any
		if jsonErr := json.Unmarshal(externalRaw, &external); jsonErr != nil {
			logger.Warn("external config is not valid JSON, ignoring", "path", path, "err", jsonErr)
		} else {
			for _, key := range forbiddenExternalKeys {
				if _, present := external[key]; present {
					logger.Warn("external config contains a forbidden key, ignoring it", "key", key, "path", path)
					delete(external, key)
				}
			}
			applyRawOverlay(&s, external)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read external config %s: %w", path, err)
	}

	clampScreenshot(&s.Screenshot)

	store := &Store{current: s, path: path, embedded: embedded}
	if err := store.ensureClientID(); err != nil {
		return nil, err
	}
	return store, nil
}

// applyRawOverlay merges a raw map (as decoded from JSON, embedded or
// external) onto a Settings value using the same merge-by-marshal technique
// ApplySettings uses, so both bootstrap and runtime updates share one code
// path. Unknown keys are ignored (forward compatible with older overlays).
func applyRawOverlay(s *Settings, raw map[string]any) {
	if len(raw) == 0 {
		return
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, s) // unmarshal onto existing value: merges rather than replaces
}

// ensureClientID generates a stable 32-hex-character client id on first
// run and persists it, matching original_source's uuid.uuid4().hex format
// (spec §4.9's "Stable client id").
func (st *Store) ensureClientID() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current.ClientID != "" {
		return nil
	}
	id := uuid.New()
	st.current.ClientID = fmt.Sprintf("%x", id[:])
	return st.saveLocked()
}

// Current returns a copy of the current settings.
func (st *Store) Current() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current
}

// ApplySettings merges a partial JSON document (as delivered by the
// apply_settings verb, spec §4.3.1) onto the current settings: client_id is
// dropped before merging (spec's ClientID invariant), fields merge
// key-by-key (including nested screenshot fields), clamps are re-applied,
// and the result is persisted. Returns the resulting settings.
func (st *Store) ApplySettings(partial map[string]any) (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(partial, "client_id")
	applyRawOverlay(&st.current, partial)
	clampScreenshot(&st.current.Screenshot)

	if err := st.saveLocked(); err != nil {
		return st.current, err
	}
	return st.current, nil
}

// ApplyScreenshotSettings merges a partial screenshot-only document (the
// screenshot_settings verb, spec §4.3.1) onto settings.screenshot.
func (st *Store) ApplyScreenshotSettings(partial map[string]any) (ScreenshotSettings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	b, err := json.Marshal(partial)
	if err != nil {
		return st.current.Screenshot, fmt.Errorf("marshal screenshot settings: %w", err)
	}
	if err := json.Unmarshal(b, &st.current.Screenshot); err != nil {
		return st.current.Screenshot, fmt.Errorf("unmarshal screenshot settings: %w", err)
	}
	clampScreenshot(&st.current.Screenshot)

	if err := st.saveLocked(); err != nil {
		return st.current.Screenshot, err
	}
	return st.current.Screenshot, nil
}

// saveLocked writes the current settings to the external overlay path.
// Caller must hold st.mu.
func (st *Store) saveLocked() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	data, err := json.MarshalIndent(st.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", st.path, err)
	}
	return nil
}

// WithoutClientID returns the settings as a JSON-ready map with client_id
// removed, per spec §6.1's auth frame ("settings minus client_id") and the
// get_settings/client_settings response (spec §4.3.1).
func (s Settings) WithoutClientID() map[string]any {
	b, _ := json.Marshal(s)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	delete(m, "client_id")
	return m
}

// Watch starts watching the external overlay file for out-of-band edits
// (an operator hand-editing the file rather than the server pushing
// apply_settings) and invokes onChange with the reloaded settings whenever
// the file is written. This is a supplemented convenience (SPEC_FULL.md
// §1.3), not part of spec.md's protocol. The returned stop function closes
// the watcher; Watch is a no-op (returns a no-op stop) if the watcher
// cannot be created, since hot-reload is a convenience, not a correctness
// requirement.
func (st *Store) Watch(onChange func(Settings)) (stop func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("settings file watch disabled", "err", err)
		return func() {}
	}
	if err := w.Add(st.path); err != nil {
		// File may not exist yet on first run; that's fine, nothing to watch.
		w.Close()
		return func() {}
	}
	st.watcher = w

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				raw, err := os.ReadFile(st.path)
				if err != nil {
					continue
				}
				var external map[string]any
				if err := json.Unmarshal(raw, &external); err != nil {
					logger.Warn("reloaded settings file is not valid JSON", "err", err)
					continue
				}
				for _, key := range forbiddenExternalKeys {
					delete(external, key)
				}
				st.mu.Lock()
				previousID := st.current.ClientID
				applyRawOverlay(&st.current, external)
				st.current.ClientID = previousID
				clampScreenshot(&st.current.Screenshot)
				updated := st.current
				st.mu.Unlock()
				if onChange != nil {
					onChange(updated)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}
}
