package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ObfuscationKey is the fixed XOR key used to tamper-deter the embedded
// bootstrap blob. This is not a security boundary (spec §9's design notes
// are explicit about this) — it exists only so a casual binary inspection
// doesn't hand an observer the server host and auth token in plain text.
const ObfuscationKey = "AstraMonitorKey2024!@#"

// Deobfuscate reverses the embedded-config transform: outer base64 decode,
// XOR with key (repeating), inner base64 decode, JSON unmarshal. The
// transform order must match Obfuscate exactly byte-for-byte to stay
// compatible with already-built embedded bundles.
func Deobfuscate(obfuscated string, key string) (map[string]any, error) {
	xored, err := base64.StdEncoding.DecodeString(obfuscated)
	if err != nil {
		return nil, fmt.Errorf("outer base64 decode: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty obfuscation key")
	}
	inner := make([]byte, len(xored))
	for i, b := range xored {
		inner[i] = b ^ key[i%len(key)]
	}
	jsonBytes, err := base64.StdEncoding.DecodeString(string(inner))
	if err != nil {
		return nil, fmt.Errorf("inner base64 decode: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return nil, fmt.Errorf("unmarshal embedded config: %w", err)
	}
	return data, nil
}

// Obfuscate applies the inverse transform used to build the embedded blob:
// JSON marshal, inner base64 encode, XOR with key (repeating), outer base64
// encode. Used by build tooling (out of scope for the agent itself, but
// kept alongside Deobfuscate so the transform stays in one place and stays
// self-consistent — Deobfuscate(Obfuscate(x)) == x).
func Obfuscate(data map[string]any, key string) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal embedded config: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("empty obfuscation key")
	}
	innerB64 := base64.StdEncoding.EncodeToString(jsonBytes)
	xored := make([]byte, len(innerB64))
	for i := 0; i < len(innerB64); i++ {
		xored[i] = innerB64[i] ^ key[i%len(key)]
	}
	return base64.StdEncoding.EncodeToString(xored), nil
}
