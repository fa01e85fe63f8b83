// Package compressenc implements the supplemented payload-compression
// capability (SPEC_FULL.md §3): large full_system_info / apt_repo_data
// payloads are gzipped and base64-encoded rather than sent raw, mirroring
// nishisan-dev/n-backup's use of klauspost/compress for bulk-payload
// shrinking.
package compressenc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// Threshold is the payload size, in marshaled JSON bytes, above which
// MaybeCompress gzips the payload instead of returning it raw.
const Threshold = 8 * 1024

// MaybeCompress marshals v and, if the result exceeds Threshold, returns a
// base64-encoded gzip of the JSON bytes plus true. Below the threshold it
// returns v unchanged and false, so the caller can embed either directly
// under the same response key.
func MaybeCompress(v any) (payload any, compressed bool, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload for compression check: %w", err)
	}
	if len(raw) <= Threshold {
		return v, false, nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, false, fmt.Errorf("gzip payload: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, false, fmt.Errorf("close gzip writer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}
