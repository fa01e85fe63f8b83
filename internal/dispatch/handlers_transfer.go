package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleUploadFileStart implements upload_file_start, args shaped
// "path:size" (spec §4.5 step 1). The path itself may legitimately
// contain colons on some filesystems, so the split happens from the
// right rather than the left.
func (d *Dispatcher) handleUploadFileStart(args string) error {
	idx := strings.LastIndexByte(args, ':')
	if idx < 0 {
		return fmt.Errorf("malformed upload_file_start args, want path:size")
	}
	path, sizeStr := args[:idx], args[idx+1:]
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse upload size: %w", err)
	}
	return d.Files.StartUpload(path, size)
}

// handleUploadFileEnd implements upload_file_end[:hash] (spec §4.5 step
// 3). args is empty or a bare hex sha256.
func (d *Dispatcher) handleUploadFileEnd(args string, cid string) wire.FileUploadResult {
	if err := d.Files.FinishUpload(strings.TrimSpace(args)); err != nil {
		return wire.FileUploadResult{FileUploadResult: "error", Error: err.Error(), CommandID: cid}
	}
	return wire.FileUploadResult{FileUploadResult: "success", CommandID: cid}
}

// handleDownloadFileChunked implements download_file_chunked. Arg
// parsing tie-break (spec §4.3.1): if the first colon-delimited token is
// all digits it is the chunk size, otherwise the whole payload is the
// path and the default chunk size applies.
func (d *Dispatcher) handleDownloadFileChunked(ctx context.Context, args string) error {
	path := args
	var chunkSize int64
	if idx := strings.IndexByte(args, ':'); idx >= 0 {
		head, rest := args[:idx], args[idx+1:]
		if isAllDigits(head) {
			n, err := strconv.ParseInt(head, 10, 64)
			if err != nil {
				return fmt.Errorf("parse chunk_size: %w", err)
			}
			chunkSize = n
			path = rest
		}
	}
	return d.Files.StartDownload(ctx, path, chunkSize, d.Send, d.DownloadLimiter)
}
