package filetransfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gr4shin/astra-monitor/internal/logger"
	"github.com/gr4shin/astra-monitor/internal/wire"
)

// DefaultChunkSize is used when download_file_chunked supplies no
// chunk_size prefix (spec §4.3.1: "default chunk size (4 MiB)").
const DefaultChunkSize = 4 * 1024 * 1024

// downloadJob is one agent→server transfer (spec §3's DownloadJob).
// Multiple may coexist (spec §4.5); each owns its own cancellation so
// cancel_download can target one without affecting the others.
type downloadJob struct {
	path   string
	cancel context.CancelFunc
}

// StartDownload validates path and, if valid, launches a background
// pipeline that streams download_file_start, a sequence of
// download_file_chunk frames, and download_file_end (spec §4.5's
// agent→server protocol). The job is tracked under path so a later
// cancel_download can abort it; job bookkeeping is keyed by path, so a
// second concurrent download of the same path replaces the first job's
// cancel entry (the spec does not require per-job identity beyond path).
func (m *Manager) StartDownload(ctx context.Context, path string, chunkSize int64, send wire.SendFunc, limiter *rate.Limiter) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &downloadJob{path: path, cancel: cancel}
	m.downloadsMu.Lock()
	m.downloads[path] = job
	m.downloadsMu.Unlock()

	var eg errgroup.Group
	eg.Go(func() error {
		defer func() {
			m.downloadsMu.Lock()
			if m.downloads[path] == job {
				delete(m.downloads, path)
			}
			m.downloadsMu.Unlock()
			cancel()
		}()
		return runDownload(jobCtx, path, info.Size(), chunkSize, send, limiter)
	})
	go func() {
		if err := eg.Wait(); err != nil && jobCtx.Err() == nil {
			logger.Warn("download job failed", "path", path, "err", err)
		}
	}()
	return nil
}

// CancelDownload best-effort aborts the named job (spec §4.5, §9: "SHOULD
// abort the job; on abort the agent stops producing frames but is not
// required to send an explicit end"). Returns false if no such job is
// running.
func (m *Manager) CancelDownload(path string) bool {
	m.downloadsMu.Lock()
	job, ok := m.downloads[path]
	delete(m.downloads, path)
	m.downloadsMu.Unlock()
	if !ok {
		return false
	}
	job.cancel()
	return true
}

// CancelAllDownloads aborts every in-flight download job (spec §3's
// teardown ordering: "download jobs are abandoned").
func (m *Manager) CancelAllDownloads() {
	m.downloadsMu.Lock()
	jobs := make([]*downloadJob, 0, len(m.downloads))
	for path, job := range m.downloads {
		jobs = append(jobs, job)
		delete(m.downloads, path)
	}
	m.downloadsMu.Unlock()
	for _, job := range jobs {
		job.cancel()
	}
}

// runDownload streams one file in chunkSize pieces. The send order for
// this job is preserved by issuing sends sequentially from this one
// goroutine; concurrent jobs may interleave with each other, but never
// within themselves (spec §4.5, §5).
func runDownload(ctx context.Context, path string, size, chunkSize int64, send wire.SendFunc, limiter *rate.Limiter) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := send(ctx, wire.DownloadStart{DownloadFileStart: wire.DownloadStartBody{
		Filename: baseName(path),
		Filesize: size,
		Path:     path,
	}}); err != nil {
		return fmt.Errorf("send download_file_start: %w", err)
	}

	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			encoded := base64.StdEncoding.EncodeToString(buf[:n])
			if err := send(ctx, wire.DownloadChunk{DownloadFileChunk: wire.DownloadChunkBody{
				Data: encoded,
				Path: path,
			}}); err != nil {
				return fmt.Errorf("send download_file_chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
	}

	return send(ctx, wire.DownloadEnd{DownloadFileEnd: wire.DownloadEndBody{Path: path}})
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
