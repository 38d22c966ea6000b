package lifecycle

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	xfs "github.com/xpzchen/image-manager/internal/fs"
)

// Mark copies every file sharing filename's stem into the marked area,
// each under a subfolder named by its uppercased extension. Copies whose
// destination already exists are skipped, making Mark idempotent. The
// return value is the count of related files discovered, not the count
// actually copied.
func (e *Engine) Mark(filename, folder string) (int, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return 0, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	related := e.relatedFiles(folder, fileStem(filename))
	slog.Debug("mark resolved related files", "stem", fileStem(filename), "count", len(related))

	marked := e.markedDir(folder)
	for _, f := range related {
		target := filepath.Join(marked, markSubdirName(f), filepath.Base(f))
		if err := xfs.CopyFile(f, target); err != nil {
			slog.Error("mark failed to copy file", "src", f, "error", err)
		}
	}
	return len(related), nil
}

// Unmark deletes the marked-area copies of every file sharing filename's
// stem and removes emptied extension subfolders. Like Mark, it returns the
// count of related files discovered.
func (e *Engine) Unmark(filename, folder string) (int, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return 0, err
	}
	lock := e.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	related := e.relatedFiles(folder, fileStem(filename))
	marked := e.markedDir(folder)
	for _, f := range related {
		extDir := filepath.Join(marked, markSubdirName(f))
		target := filepath.Join(extDir, filepath.Base(f))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			slog.Error("unmark failed to remove copy", "path", target, "error", err)
			continue
		}
		_ = xfs.RemoveIfEmpty(extDir)
	}
	return len(related), nil
}

// MarkedNames lists the file names currently held in folder's marked area.
func (e *Engine) MarkedNames(folder string) ([]string, error) {
	folder, err := e.resolveFolder(folder)
	if err != nil {
		return nil, err
	}

	marked := e.markedDir(folder)
	subdirs, err := os.ReadDir(marked)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &OpError{Op: "marked", Path: folder, Err: err}
	}

	var names []string
	for _, sub := range subdirs {
		if !sub.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(marked, sub.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir() {
				names = append(names, f.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
