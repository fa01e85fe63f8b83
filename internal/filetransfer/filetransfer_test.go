package filetransfer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

func TestUploadSuccessWithHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	m := NewManager()

	if err := m.StartUpload(path, 5); err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if err := m.AppendChunk(base64.StdEncoding.EncodeToString([]byte("hello"))); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	sum := sha256.Sum256([]byte("hello"))
	if err := m.FinishUpload(hex.EncodeToString(sum[:])); err != nil {
		t.Fatalf("FinishUpload: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file contents = %q, want %q", got, "hello")
	}
}

func TestUploadWrongHashDeletesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	m := NewManager()

	if err := m.StartUpload(path, 5); err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if err := m.AppendChunk(base64.StdEncoding.EncodeToString([]byte("hello"))); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if err := m.FinishUpload("deadbeef"); err == nil {
		t.Fatal("expected hash mismatch error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file to be deleted, stat err = %v", err)
	}
}

func TestCancelUploadDeletesPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.bin")
	m := NewManager()

	if err := m.StartUpload(path, 100); err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if err := m.AppendChunk(base64.StdEncoding.EncodeToString([]byte("partial"))); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	m.CancelUpload(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected partial file to be gone, stat err = %v", err)
	}
	if err := m.AppendChunk(base64.StdEncoding.EncodeToString([]byte("x"))); err == nil {
		t.Error("expected error appending chunk after cancel")
	}
}

func TestStartDownloadEmitsChunksInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "y.bin")
	if err := os.WriteFile(path, []byte("ABCDEFGHI"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var mu sync.Mutex
	var frames []any
	send := func(ctx context.Context, v any) error {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, v)
		return nil
	}

	m := NewManager()
	if err := m.StartDownload(context.Background(), path, 4, send, nil); err != nil {
		t.Fatalf("StartDownload: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n == 5 { // start + 3 chunks + end
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	start, ok := frames[0].(wire.DownloadStart)
	if !ok || start.DownloadFileStart.Filesize != 9 {
		t.Errorf("frame 0 = %#v, want a DownloadStart with filesize 9", frames[0])
	}
	wantChunks := []string{
		base64.StdEncoding.EncodeToString([]byte("ABCD")),
		base64.StdEncoding.EncodeToString([]byte("EFGH")),
		base64.StdEncoding.EncodeToString([]byte("I")),
	}
	for i, want := range wantChunks {
		chunk, ok := frames[i+1].(wire.DownloadChunk)
		if !ok || chunk.DownloadFileChunk.Data != want {
			t.Errorf("chunk %d = %#v, want data %q", i, frames[i+1], want)
		}
	}
	if _, ok := frames[4].(wire.DownloadEnd); !ok {
		t.Errorf("frame 4 = %#v, want DownloadEnd", frames[4])
	}
}
