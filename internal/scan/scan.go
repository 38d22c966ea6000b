// Package scan provides read-only discovery over managed folders: the
// recursive author/work walk behind the aesthetic browsing mode and the
// flat folder listing with RAW pairing. Nothing here mutates files except
// the opt-in HEIC normalization, which is documented as a side-effecting
// read.
package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/xpzchen/image-manager/internal/config"
)

// Normalizer converts a HEIC file in place and returns the resulting path.
// Non-HEIC paths pass through unchanged.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// Item is one discovered image file with its author/work classification.
type Item struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	RelPath  string    `json:"rel_path"`
	Ext      string    `json:"ext"`
	Type     string    `json:"type"`
	Size     int64     `json:"size"`
	Human    string    `json:"size_human"`
	ModTime  time.Time `json:"mtime"`
	Author   string    `json:"author"`
	Work     string    `json:"work"`
	Category string    `json:"category"`
}

// Options controls one Items call. Shuffle and modification-time ordering
// are mutually exclusive: Shuffle true returns a uniform full shuffle,
// false returns newest-first.
type Options struct {
	Shuffle     bool
	Author      string
	Work        string
	ConvertHEIC bool
}

// Scanner walks managed folders. Safe for concurrent use.
type Scanner struct {
	core        config.Core
	norm        Normalizer
	exclude     []glob.Glob
	concurrency int
}

func New(cfg config.Config, norm Normalizer) *Scanner {
	s := &Scanner{
		core:        cfg.Core,
		norm:        norm,
		concurrency: cfg.Cache.DecodeConcurrency,
	}
	for _, pattern := range cfg.Core.ExcludeGlobs {
		g, err := glob.Compile(pattern)
		if err != nil {
			slog.Warn("ignoring invalid exclude glob", "pattern", pattern, "error", err)
			continue
		}
		s.exclude = append(s.exclude, g)
	}
	return s
}

func (s *Scanner) excluded(name string) bool {
	for _, g := range s.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Items recursively collects every recognized image under root, skipping
// the marked and trash areas. Files at relative depth >= 3 are classified
// as archived with author = segment 0 and work = segment 1; everything
// else is loose. With opts.ConvertHEIC set, HEIC files are normalized to
// JPEG in place before classification.
func (s *Scanner) Items(ctx context.Context, root string, opts Options) ([]Item, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	reserved := s.core.ReservedDirNames()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		if s.excluded(d.Name()) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !s.core.IsImageExt(ext) && ext != ".heic" && ext != ".hif" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.ConvertHEIC && s.norm != nil {
		paths, err = s.normalizeAll(ctx, paths)
		if err != nil {
			return nil, err
		}
	}

	var items []Item
	for _, path := range paths {
		ext := strings.ToLower(filepath.Ext(path))
		if !s.core.IsImageExt(ext) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		author, work, category := classify(root, path)
		if opts.Author != "" && author != opts.Author {
			continue
		}
		if opts.Work != "" && work != opts.Work {
			continue
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		items = append(items, Item{
			Name:     filepath.Base(path),
			Path:     filepath.ToSlash(path),
			RelPath:  filepath.ToSlash(rel),
			Ext:      ext,
			Type:     s.itemType(ext),
			Size:     info.Size(),
			Human:    humanize.Bytes(uint64(info.Size())),
			ModTime:  info.ModTime(),
			Author:   author,
			Work:     work,
			Category: category,
		})
	}

	if opts.Shuffle {
		rand.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
	} else {
		sort.Slice(items, func(i, j int) bool {
			return items[i].ModTime.After(items[j].ModTime)
		})
	}
	return items, nil
}

// normalizeAll converts the HEIC files among paths concurrently, bounded
// by the decode concurrency limit. Files that fail to convert stay on
// their original path and are reported at warn.
func (s *Scanner) normalizeAll(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	copy(out, paths)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, path := range paths {
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".heic" && ext != ".hif" {
			continue
		}
		i, path := i, path
		g.Go(func() error {
			newPath, err := s.norm.Normalize(ctx, path)
			if err != nil {
				slog.Warn("heic normalization failed, keeping original", "path", path, "error", err)
				return nil
			}
			out[i] = newPath
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) itemType(ext string) string {
	if s.core.IsRawExt(ext) {
		return "RAW"
	}
	return "JPG"
}

// classify derives the author/work bucket from path depth relative to
// root: segment 0 = author, segment 1 = work, classified archived only at
// depth >= 3 with both segments non-blank.
func classify(root, path string) (author, work, category string) {
	category = "loose"
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", "", category
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return "", "", category
	}
	author = strings.TrimSpace(parts[0])
	work = strings.TrimSpace(parts[1])
	if author != "" && work != "" {
		category = "archived"
	}
	return author, work, category
}

// pathKey normalizes a path for dedup the way the host filesystem
// resolves it: Windows folds case, everything else is exact.
func pathKey(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(p)
	}
	return p
}
