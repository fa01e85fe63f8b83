package dispatch

import (
	"fmt"
	"os"
	"strings"

	"github.com/gr4shin/astra-monitor/internal/wire"
)

// handleListFiles implements list_files (spec §4.3.1): a flat directory
// listing of name/type/size triples.
func (d *Dispatcher) handleListFiles(path string, cid string) (any, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	files := make([]wire.FileListEntry, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		var size int64
		if e.IsDir() {
			kind = "directory"
		} else if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, wire.FileListEntry{Name: e.Name(), Type: kind, Size: size})
	}
	return wire.FilesListResult{FilesList: files, CommandID: cid}, nil
}

// handleDelete implements delete: rm a file or rm-tree a directory (spec
// §4.3.1).
func (d *Dispatcher) handleDelete(path string, cid string) wire.FileDeleteResult {
	if err := os.RemoveAll(path); err != nil {
		return wire.FileDeleteResult{FileDeleteResult: "error", Error: err.Error(), CommandID: cid}
	}
	return wire.FileDeleteResult{FileDeleteResult: "success", CommandID: cid}
}

// handleCreateFolder implements create_folder: mkdirs (spec §4.3.1).
func (d *Dispatcher) handleCreateFolder(path string, cid string) wire.FolderCreatedResult {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return wire.FolderCreatedResult{FolderCreated: "error", Error: err.Error(), CommandID: cid}
	}
	return wire.FolderCreatedResult{FolderCreated: path, CommandID: cid}
}

// handleRenamePath implements rename_path, args shaped "old:new" (spec
// §4.3.1).
func (d *Dispatcher) handleRenamePath(args string, cid string) wire.RenameResult {
	parts := strings.SplitN(args, ":", 2)
	if len(parts) != 2 {
		return wire.RenameResult{RenameResult: "error", Error: "malformed rename_path args, want old:new", CommandID: cid}
	}
	if err := os.Rename(parts[0], parts[1]); err != nil {
		return wire.RenameResult{RenameResult: "error", Error: err.Error(), CommandID: cid}
	}
	return wire.RenameResult{RenameResult: "success", CommandID: cid}
}
