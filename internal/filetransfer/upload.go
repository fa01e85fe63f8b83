// Package filetransfer implements the chunked bidirectional file transfer
// engine (spec §4.5, C5): UploadContext for server→agent transfers and
// DownloadJob for agent→server transfers, each with integrity
// verification, cancellation, and partial-file cleanup.
package filetransfer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// uploadContext is the agent's side of an in-flight server→agent upload
// (spec §3's UploadContext). At most one exists per Manager at a time;
// Manager.upload is the single-owner slot (spec §9's "single-owner
// resources", "take-and-replace").
type uploadContext struct {
	path         string
	file         *os.File
	expectedSize int64
	received     int64
	hasher       interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

// Manager owns the agent's file transfer state: the single current upload
// context and the set of in-flight download jobs.
type Manager struct {
	mu     sync.Mutex
	upload *uploadContext

	downloads   map[string]*downloadJob
	downloadsMu sync.Mutex
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{downloads: make(map[string]*downloadJob)}
}

// StartUpload begins a new UploadContext (spec §4.5 step 1:
// upload_file_start). It creates the target file (and its parent
// directories) and replaces any prior context — step 2 only happens once
// the context is live, so a context left over from an abandoned transfer
// is simply discarded along with its handle.
func (m *Manager) StartUpload(path string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if m.upload != nil {
		m.upload.file.Close()
	}
	m.upload = &uploadContext{
		path:         path,
		file:         f,
		expectedSize: size,
		hasher:       sha256.New(),
	}
	return nil
}

// AppendChunk decodes and appends one base64 chunk to the current upload
// (spec §4.5 step 2). A chunk arriving without a live context is an error
// (spec §8 invariant: "A chunk arriving without a live context returns an
// error").
func (m *Manager) AppendChunk(b64 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upload == nil {
		return fmt.Errorf("no active upload in progress")
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		m.abortUploadLocked()
		return fmt.Errorf("decode chunk: %w", err)
	}
	if _, err := m.upload.file.Write(data); err != nil {
		m.abortUploadLocked()
		return fmt.Errorf("write chunk to %s: %w", m.upload.path, err)
	}
	m.upload.hasher.Write(data)
	m.upload.received += int64(len(data))
	return nil
}

// FinishUpload finalizes the current upload (spec §4.5 step 3:
// upload_file_end[:hash]). It closes the handle, verifies the received
// size, and — if hexSHA256 is non-empty — verifies the hash. On any
// mismatch the file is deleted and an error returned (spec §8 invariant
// 2: "either (file contents = B AND success) OR (file absent AND
// error)").
func (m *Manager) FinishUpload(hexSHA256 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upload == nil {
		return fmt.Errorf("no active upload to finalize")
	}
	ctx := m.upload
	m.upload = nil

	ctx.file.Close()

	if ctx.received != ctx.expectedSize {
		os.Remove(ctx.path)
		return fmt.Errorf("size mismatch: received %d bytes, expected %d", ctx.received, ctx.expectedSize)
	}
	if hexSHA256 != "" {
		got := hex.EncodeToString(ctx.hasher.Sum(nil))
		if got != hexSHA256 {
			os.Remove(ctx.path)
			return fmt.Errorf("hash mismatch: computed %s, expected %s", got, hexSHA256)
		}
	}
	return nil
}

// CancelUpload aborts the current upload if it matches path (spec §4.5:
// "A cancel_upload matching the current context closes the handle,
// deletes the partial file, and discards the context"). Cancelling a path
// that does not match the live context is a no-op.
func (m *Manager) CancelUpload(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upload != nil && m.upload.path == path {
		m.abortUploadLocked()
	}
}

// AbortUpload unconditionally discards any live upload context, deleting
// its partial file (spec §3's teardown ordering: "on transition to
// Reconnecting or Stopped... any in-flight upload context: close handle
// and delete partial file").
func (m *Manager) AbortUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortUploadLocked()
}

// abortUploadLocked closes the handle, deletes the partial file, and
// discards the context. Caller must hold m.mu.
func (m *Manager) abortUploadLocked() {
	if m.upload == nil {
		return
	}
	path := m.upload.path
	m.upload.file.Close()
	os.Remove(path)
	m.upload = nil
}
