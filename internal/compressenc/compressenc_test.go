package compressenc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestMaybeCompressSmallPassesThrough(t *testing.T) {
	v := map[string]string{"a": "b"}
	got, compressed, err := MaybeCompress(v)
	if err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if compressed {
		t.Fatal("small payload should not be compressed")
	}
	if _, ok := got.(map[string]string); !ok {
		t.Fatalf("expected original value back, got %T", got)
	}
}

func TestMaybeCompressLargeGzips(t *testing.T) {
	big := map[string]string{"blob": strings.Repeat("x", Threshold*2)}
	got, compressed, err := MaybeCompress(big)
	if err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if !compressed {
		t.Fatal("large payload should be compressed")
	}
	b64, ok := got.(string)
	if !ok {
		t.Fatalf("expected string, got %T", got)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()
	decompressed, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	var round map[string]string
	if err := json.Unmarshal(decompressed, &round); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if round["blob"] != big["blob"] {
		t.Error("round-tripped payload does not match original")
	}
}
