package lifecycle

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/samber/lo"

	xfs "github.com/xpzchen/image-manager/internal/fs"
	"github.com/xpzchen/image-manager/internal/journal"
)

// trashTimestampFormat suffixes trashed file names so repeated deletes of
// the same name never collide: stem_YYYYMMDD_HHMMSS.ext.
const trashTimestampFormat = "20060102_150405"

// TrashEntry summarizes one delete batch for display.
type TrashEntry struct {
	OriginalName string    `json:"original_name"`
	Time         time.Time `json:"time"`
	FileCount    int       `json:"file_count"`
}

// Delete removes every file sharing filename's stem. With permanent set
// the files are unlinked outright: no journal entry, unrecoverable.
// Otherwise each file is renamed with a timestamp suffix, moved into the
// trash area, and the batch is journaled; afterwards the trash file-count
// cap is enforced by evicting the globally oldest files. Marked-area
// copies are removed either way. Returns the original paths deleted.
func (e *Engine) Delete(filename, folder string, permanent bool) ([]string, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return nil, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	related := e.relatedFiles(folder, fileStem(filename))
	var deleted []string

	if permanent {
		for _, f := range related {
			if err := os.Remove(f); err != nil {
				slog.Error("permanent delete failed", "path", f, "error", err)
				continue
			}
			deleted = append(deleted, f)
		}
		e.removeMarkedCopies(folder, related)
		slog.Info("permanently deleted files", "folder", folder, "count", len(deleted))
		return deleted, nil
	}

	trash := e.trashDir(folder)
	if err := os.MkdirAll(trash, 0755); err != nil {
		return nil, &OpError{Op: "delete", Path: folder, Err: err}
	}

	timestamp := time.Now().Format(trashTimestampFormat)
	var trashFiles []string
	for _, f := range related {
		ext := filepath.Ext(f)
		trashName := fmt.Sprintf("%s_%s%s", fileStem(f), timestamp, ext)
		trashPath := filepath.Join(trash, trashName)
		if err := xfs.MoveFile(f, trashPath, true); err != nil {
			slog.Error("delete failed to move file to trash", "path", f, "error", err)
			continue
		}
		deleted = append(deleted, f)
		trashFiles = append(trashFiles, trashPath)
	}

	if len(trashFiles) > 0 {
		record := journal.DeleteRecord{
			ID:           xid.New().String(),
			Time:         time.Now(),
			OriginalName: filename,
			TrashFiles:   trashFiles,
		}
		if err := e.deleteLog(folder).Append(record); err != nil {
			return deleted, &OpError{Op: "delete", Path: folder, Err: err}
		}
	}

	// Eviction runs after the new files landed and the record was
	// appended, so a batch never evicts its own files. Files from older
	// records may go; that loss is silent and the records keep dangling
	// paths which restore then skips.
	e.enforceTrashCap(trash, trashFiles)

	e.removeMarkedCopies(folder, related)
	slog.Info("moved files to trash", "folder", folder, "count", len(deleted))
	return deleted, nil
}

// enforceTrashCap deletes the oldest files by mtime until the trash area
// holds at most the configured number of files. Files in keep (the batch
// that triggered enforcement) are spared unless the batch alone exceeds
// the cap.
func (e *Engine) enforceTrashCap(trash string, keep []string) {
	entries, err := os.ReadDir(trash)
	if err != nil {
		return
	}

	type trashFile struct {
		path    string
		modTime time.Time
	}
	var files []trashFile
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == journal.DeleteLogName {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, trashFile{
			path:    filepath.Join(trash, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	if len(files) <= e.core.TrashCapacity {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	spared := lo.SliceToMap(keep, func(p string) (string, struct{}) { return p, struct{}{} })
	count := len(files)
	for _, f := range files {
		if count <= e.core.TrashCapacity {
			return
		}
		if _, ok := spared[f.path]; ok {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		slog.Warn("trash cap evicted file", "path", f.path)
		count--
	}
	// the batch alone exceeds the cap: its own oldest files have to go
	for _, f := range files {
		if count <= e.core.TrashCapacity {
			return
		}
		if _, ok := spared[f.path]; !ok {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		slog.Warn("trash cap evicted file", "path", f.path)
		count--
	}
}

// Restore brings back the most recent delete batch whose logical name
// matches filename. Each trashed file has its timestamp suffix stripped
// and is moved to an existing classification subfolder matching its
// extension, falling back to the folder root. The matched record is
// removed from the journal even when individual moves fail, mirroring
// revert's at-most-once semantics. Returns false when no record matches.
func (e *Engine) Restore(filename, folder string) (bool, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return false, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	dlog := e.deleteLog(folder)
	records := dlog.Records()
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].OriginalName != filename {
			continue
		}

		for _, trashPath := range records[i].TrashFiles {
			if _, err := os.Stat(trashPath); err != nil {
				// evicted by the trash cap since deletion
				slog.Warn("restore skipping missing trash file", "path", trashPath)
				continue
			}
			name := restoredName(trashPath)
			dest := filepath.Join(e.restoreDir(folder, trashPath), name)
			if err := xfs.MoveFile(trashPath, dest, true); err != nil {
				slog.Error("restore failed to move file", "path", trashPath, "error", err)
			}
		}

		remaining := append(records[:i:i], records[i+1:]...)
		if err := dlog.Replace(remaining); err != nil {
			return true, &OpError{Op: "restore", Path: folder, Err: err}
		}
		slog.Info("restored delete batch", "folder", folder, "name", filename)
		return true, nil
	}
	return false, nil
}

// restoredName strips the trailing _YYYYMMDD_HHMMSS suffix from a trash
// file name. Stems with fewer than three underscore-delimited segments
// fall back to stripping only the last segment; that is best-effort, not
// a guarantee.
func restoredName(trashPath string) string {
	ext := filepath.Ext(trashPath)
	stem := fileStem(trashPath)
	parts := strings.Split(stem, "_")
	switch {
	case len(parts) >= 3:
		stem = strings.Join(parts[:len(parts)-2], "_")
	case len(parts) == 2:
		stem = parts[0]
	}
	return stem + ext
}

// restoreDir picks the restore destination: an existing RAW subfolder for
// RAW extensions, an existing uppercased-extension subfolder otherwise,
// else the folder root.
func (e *Engine) restoreDir(folder, trashPath string) string {
	ext := filepath.Ext(trashPath)
	if !e.core.IsImageExt(ext) {
		return folder
	}
	sub := filepath.Join(folder, e.core.ClassifyDirName(ext))
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return sub
	}
	return folder
}

// TrashEntries lists folder's delete batches newest-first.
func (e *Engine) TrashEntries(folder string) ([]TrashEntry, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return nil, err
	}

	records := e.deleteLog(folder).Records()
	entries := lo.Map(records, func(r journal.DeleteRecord, _ int) TrashEntry {
		return TrashEntry{
			OriginalName: r.OriginalName,
			Time:         r.Time,
			FileCount:    len(r.TrashFiles),
		}
	})
	return lo.Reverse(entries), nil
}
