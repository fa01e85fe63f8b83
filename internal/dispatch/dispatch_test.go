package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gr4shin/astra-monitor/internal/config"
	"github.com/gr4shin/astra-monitor/internal/filetransfer"
	"github.com/gr4shin/astra-monitor/internal/hostinfo"
	"github.com/gr4shin/astra-monitor/internal/interactive"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// fakeBackend is a deterministic screenshot.Backend test double.
type fakeBackend struct {
	data []byte
	mime string
	err  error
}

func (b *fakeBackend) Capture(ctx context.Context, quality int, monitorMode string) ([]byte, string, error) {
	return b.data, b.mime, b.err
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *[]any) {
	t.Helper()
	store, err := config.Load(nil, filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	var mu sync.Mutex
	var sent []any
	send := func(ctx context.Context, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, payload)
		return nil
	}

	d := New(send, []string{wire.CapCommandAck}, store, hostinfo.NewProber(), filetransfer.NewManager(), interactive.NewManager(), &fakeBackend{data: []byte("img"), mime: "image/jpeg"}, nil)
	return d, &sent
}

func TestDispatchUnknownCommandReturnsError(t *testing.T) {
	d, sent := newTestDispatcher(t)
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "no_such_verb", CommandID: "c1"})

	if len(*sent) != 2 { // ack + error
		t.Fatalf("got %d frames, want 2 (ack+error)", len(*sent))
	}
	errFrame, ok := (*sent)[1].(wire.ErrorFrame)
	if !ok || errFrame.CommandID != "c1" {
		t.Fatalf("expected an ErrorFrame echoing command_id, got %#v", (*sent)[1])
	}
}

func TestDispatchListFiles(t *testing.T) {
	d, sent := newTestDispatcher(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "list_files:" + dir})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames, want 1", len(*sent))
	}
	result, ok := (*sent)[0].(wire.FilesListResult)
	if !ok || len(result.FilesList) != 1 || result.FilesList[0].Name != "a.txt" {
		t.Fatalf("unexpected list_files result: %#v", (*sent)[0])
	}
}

func TestDispatchCreateDeleteRoundTrip(t *testing.T) {
	d, sent := newTestDispatcher(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "sub")

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "create_folder:" + target})
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected folder to exist: %v", err)
	}

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "delete:" + target})
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected folder to be gone, stat err=%v", err)
	}

	if len(*sent) != 2 {
		t.Fatalf("got %d frames, want 2", len(*sent))
	}
}

func TestDispatchApplySettingsMergesAndDropsClientID(t *testing.T) {
	d, sent := newTestDispatcher(t)
	before := d.Settings.Current().ClientID

	payload, _ := json.Marshal(map[string]any{"monitoring_interval": 42, "client_id": "attacker-supplied"})
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "apply_settings:" + string(payload)})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames, want 1", len(*sent))
	}
	result, ok := (*sent)[0].(wire.SettingsAppliedResult)
	if !ok {
		t.Fatalf("expected SettingsAppliedResult, got %#v", (*sent)[0])
	}
	if got := result.SettingsApplied["monitoring_interval"]; got != float64(42) {
		t.Errorf("monitoring_interval = %v, want 42", got)
	}
	if d.Settings.Current().ClientID != before {
		t.Errorf("client_id changed via apply_settings, want unchanged")
	}
}

func TestDispatchUploadRoundTrip(t *testing.T) {
	d, sent := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "file.bin")

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "upload_file_start:" + path + ":5"})
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "upload_file_chunk:aGVsbG8="}) // "hello"
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "upload_file_end"})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames (only upload_file_end responds), want 1: %#v", *sent)
	}
	result, ok := (*sent)[0].(wire.FileUploadResult)
	if !ok || result.FileUploadResult != "success" {
		t.Fatalf("unexpected upload result: %#v", (*sent)[0])
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected file contents %q, err=%v", data, err)
	}
}

func TestDispatchScreenshotUsesBackend(t *testing.T) {
	d, sent := newTestDispatcher(t)
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "screenshot_quality:55", CommandID: "sq1"})

	if len(*sent) != 2 { // command_ack + result, since CommandID is set and command_ack is advertised
		t.Fatalf("got %d frames, want 2", len(*sent))
	}
	result, ok := (*sent)[1].(wire.ScreenshotResult)
	if !ok || result.Quality != 55 || result.Screenshot == "" || result.CommandID != "sq1" {
		t.Fatalf("unexpected screenshot result: %#v", (*sent)[1])
	}
}

func TestDispatchExecuteCD(t *testing.T) {
	d, sent := newTestDispatcher(t)
	dir := t.TempDir()

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "execute:cd " + dir})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames, want 1", len(*sent))
	}
	result, ok := (*sent)[0].(wire.PromptUpdateResult)
	if !ok || result.PromptUpdate != dir {
		t.Fatalf("unexpected cd result: %#v", (*sent)[0])
	}
	if d.cwd != dir {
		t.Errorf("dispatcher cwd = %q, want %q", d.cwd, dir)
	}
}

func TestDispatchExecuteRunsShell(t *testing.T) {
	d, sent := newTestDispatcher(t)
	d.Dispatch(context.Background(), wire.CommandFrame{Command: "execute:echo hi"})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames, want 1", len(*sent))
	}
	result, ok := (*sent)[0].(wire.CommandResult)
	if !ok || result.CommandResult != "hi\n" {
		t.Fatalf("unexpected execute result: %#v", (*sent)[0])
	}
}

func TestDispatchCancelDownload(t *testing.T) {
	d, _ := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, make([]byte, 1<<20), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := d.Files.StartDownload(context.Background(), path, 0, d.Send, nil); err != nil {
		t.Fatalf("StartDownload: %v", err)
	}

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "cancel_download:" + path})

	// The job was either still running (cancel_download aborted it) or had
	// already finished on its own; either way a second CancelDownload for
	// the same path must report nothing left to cancel.
	if d.Files.CancelDownload(path) {
		t.Fatal("expected download job to already be cancelled/removed after cancel_download")
	}
}

func TestDispatchPanicRecovery(t *testing.T) {
	d, sent := newTestDispatcher(t)
	d.Files = nil // guarantees handleUploadFileStart (args split ok) panics on nil Manager deref

	d.Dispatch(context.Background(), wire.CommandFrame{Command: "upload_file_start:/tmp/x:5"})

	if len(*sent) != 1 {
		t.Fatalf("got %d frames, want 1", len(*sent))
	}
	errFrame, ok := (*sent)[0].(wire.ErrorFrame)
	if !ok {
		t.Fatalf("expected ErrorFrame from recovered panic, got %#v", (*sent)[0])
	}
	if errFrame.Error == "" {
		t.Error("expected a non-empty panic message")
	}
}
