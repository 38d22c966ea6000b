package lifecycle

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"

	xfs "github.com/xpzchen/image-manager/internal/fs"
	"github.com/xpzchen/image-manager/internal/journal"
)

// Organize moves every direct child image file of folder into its
// classification subfolder (RAW extensions collapse into "RAW", others get
// their uppercased extension). A same-named file at the destination blocks
// the move silently. When at least one move happened, the batch is
// journaled so it can be reverted. Returns the number of files moved.
func (e *Engine) Organize(folder string) (int, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return 0, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, &OpError{Op: "organize", Path: folder, Err: err}
	}

	var moved []journal.MovedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !e.core.IsImageExt(ext) {
			continue
		}

		src := filepath.Join(folder, entry.Name())
		dst := filepath.Join(folder, e.core.ClassifyDirName(ext), entry.Name())
		if _, err := os.Stat(dst); err == nil {
			// destination exists: skipped, not an error
			slog.Debug("organize skipping, destination exists", "src", src, "dst", dst)
			continue
		}
		if err := xfs.MoveFile(src, dst, true); err != nil {
			slog.Error("organize failed to move file", "src", src, "error", err)
			continue
		}
		moved = append(moved, journal.MovedFile{Original: src, New: dst})
	}

	if len(moved) > 0 {
		record := journal.OrganizeRecord{
			ID:    xid.New().String(),
			Time:  time.Now(),
			Files: moved,
		}
		if err := e.organizeLog(folder).Append(record); err != nil {
			return len(moved), &OpError{Op: "organize", Path: folder, Err: err}
		}
	}

	slog.Info("organized folder", "folder", folder, "moved", len(moved))
	return len(moved), nil
}

// Revert pops the most recent organize batch and moves its files back.
// A file created at an original path since organizing blocks that single
// move; emptied classification subfolders are removed. The popped record
// is discarded before any file moves, so revert is at-most-once per
// organize call, not retryable. Returns the number of files moved back.
func (e *Engine) Revert(folder string) (int, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return 0, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	record, ok, err := e.organizeLog(folder).Pop()
	if err != nil {
		return 0, &OpError{Op: "revert", Path: folder, Err: err}
	}
	if !ok {
		return 0, nil
	}

	reverted := 0
	for _, mf := range record.Files {
		if _, err := os.Stat(mf.New); err != nil {
			continue
		}
		if _, err := os.Stat(mf.Original); err == nil {
			// original slot occupied by an external file: this one stays
			slog.Warn("revert skipping, original path occupied", "path", mf.Original)
			continue
		}
		if err := xfs.MoveFile(mf.New, mf.Original, true); err != nil {
			slog.Error("revert failed to move file", "src", mf.New, "error", err)
			continue
		}
		reverted++
		_ = xfs.RemoveIfEmpty(filepath.Dir(mf.New))
	}

	slog.Info("reverted organize batch", "folder", folder, "reverted", reverted)
	return reverted, nil
}
