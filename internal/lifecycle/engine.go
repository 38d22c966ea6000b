// Package lifecycle implements the file state machine for managed folders:
// organize/revert, mark/unmark, delete/restore and trash-capacity eviction.
// All mutating operations on a folder are serialized by a per-folder
// exclusive lock; reversibility goes through the journal package.
package lifecycle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xpzchen/image-manager/internal/config"
	xfs "github.com/xpzchen/image-manager/internal/fs"
	"github.com/xpzchen/image-manager/internal/journal"
)

// Engine drives all reversible file-state transitions. It is safe for
// concurrent use; operations against the same folder never interleave.
type Engine struct {
	core  config.Core
	store journal.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(core config.Core, store journal.Store) *Engine {
	return &Engine{
		core:  core,
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// folderLock returns the exclusive lock for folder. Journals are
// read-modify-write whole documents; without this, concurrent mutations
// against the same folder lose updates.
func (e *Engine) folderLock(folder string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[folder]
	if !ok {
		l = &sync.Mutex{}
		e.locks[folder] = l
	}
	return l
}

// resolveFolder cleans folder into the canonical lock/journal key and
// verifies it is an existing directory.
func (e *Engine) resolveFolder(folder string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", &OpError{Op: "resolve", Path: folder, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &OpError{Op: "resolve", Path: folder, Err: err}
	}
	if !info.IsDir() {
		return "", &OpError{Op: "resolve", Path: folder, Err: ErrNotAFolder}
	}
	return abs, nil
}

func (e *Engine) markedDir(folder string) string {
	return filepath.Join(folder, e.core.MarkedDirName)
}

func (e *Engine) trashDir(folder string) string {
	return filepath.Join(folder, e.core.TrashDirName)
}

func (e *Engine) organizeLog(folder string) *journal.OrganizeLog {
	return journal.NewOrganizeLog(filepath.Join(folder, journal.OrganizeLogName), e.store)
}

func (e *Engine) deleteLog(folder string) *journal.DeleteLog {
	return journal.NewDeleteLog(filepath.Join(e.trashDir(folder), journal.DeleteLogName), e.store, e.core.TrashCapacity)
}

// relatedFiles resolves every image file under folder sharing stem,
// excluding the marked and trash areas. Stem matching is case-sensitive.
func (e *Engine) relatedFiles(folder, stem string) []string {
	var related []string
	reserved := e.core.ReservedDirNames()

	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			for _, name := range reserved {
				if d.Name() == name {
					return filepath.SkipDir
				}
			}
			return nil
		}
		ext := filepath.Ext(d.Name())
		if !e.core.IsImageExt(ext) {
			return nil
		}
		if strings.TrimSuffix(d.Name(), ext) == stem {
			related = append(related, path)
		}
		return nil
	})

	sort.Strings(related)
	return related
}

// fileStem strips the extension from a file name.
func fileStem(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

// markSubdirName is the marked-area subfolder for a file: its uppercased
// extension without the dot (RAW files keep their own extension name here,
// unlike classification subfolders).
func markSubdirName(name string) string {
	return strings.ToUpper(strings.TrimPrefix(filepath.Ext(name), "."))
}

// removeMarkedCopies keeps the marked area consistent with live content
// after a delete: copies of the deleted files are unlinked and emptied
// extension subfolders removed.
func (e *Engine) removeMarkedCopies(folder string, files []string) {
	marked := e.markedDir(folder)
	for _, f := range files {
		extDir := filepath.Join(marked, markSubdirName(f))
		target := filepath.Join(extDir, filepath.Base(f))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			continue
		}
		_ = xfs.RemoveIfEmpty(extDir)
	}
}

// ErrNotAFolder marks a path that exists but is not a directory.
var ErrNotAFolder = fmt.Errorf("not a folder")

// OpError wraps an error with the lifecycle operation and path it belongs to.
type OpError struct {
	Op   string // operation that failed (e.g. "organize", "delete")
	Path string // folder or file that caused the error
	Err  error  // the underlying error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}
