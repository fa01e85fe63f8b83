package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AgentConfig holds the bootstrap fields that never change after the agent
// starts (spec §3: "immutable after bootstrap"). ServerHost, ServerPort and
// AuthToken come exclusively from the embedded blob; an external overlay is
// forbidden from touching them (spec §4.9, §6.2).
type AgentConfig struct {
	ServerHost      string
	ServerPort      int
	AuthToken       string
	ProtocolVersion int
	ClientID        string
	Capabilities    []string
}

// defaultAssetRelPath is where the embedded blob lives relative to the
// running binary, mirroring the original client's bundled asset layout
// (astra_monitor_client/assets/config.dat under the frozen bundle root).
const defaultAssetRelPath = "assets/config.dat"

// LoadEmbeddedBlob reads and deobfuscates the bootstrap blob. path, if
// empty, defaults to defaultAssetRelPath next to the running executable.
// A missing, unreadable or empty blob is returned as an error; the agent
// treats it as fatal, per spec §4.9's "embedded blob's presence is
// mandatory" bootstrap rule.
func LoadEmbeddedBlob(path string) (map[string]any, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable path: %w", err)
		}
		path = filepath.Join(filepath.Dir(exe), defaultAssetRelPath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embedded blob %s: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("embedded blob %s is empty", path)
	}
	return Deobfuscate(trimmed, ObfuscationKey)
}

// Bootstrap builds the immutable AgentConfig from the embedded blob and the
// client id the settings Store already holds (Load generates and persists
// it on first run). If server_host or auth_token is missing it returns an
// error naming both fields; the caller logs it and exits (spec §4.9, §7).
func Bootstrap(embedded map[string]any, clientID string, capabilities []string) (*AgentConfig, error) {
	host, _ := embedded["server_host"].(string)
	token, _ := embedded["auth_token"].(string)
	if host == "" || token == "" {
		return nil, fmt.Errorf("missing required embedded config: server_host and auth_token must both be present")
	}

	port := 8765
	switch v := embedded["server_port"].(type) {
	case float64:
		port = int(v)
	case int:
		port = v
	case string:
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	return &AgentConfig{
		ServerHost:      host,
		ServerPort:      port,
		AuthToken:       token,
		ProtocolVersion: 1,
		ClientID:        clientID,
		Capabilities:    capabilities,
	}, nil
}
