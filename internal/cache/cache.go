// Package cache is the content-addressed rendition cache: resized JPEG
// renditions keyed by source path, target size and source mtime, persisted
// in a flat process-wide directory and expired by TTL.
package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"

	"github.com/xpzchen/image-manager/internal/config"
	"github.com/xpzchen/image-manager/internal/decoder"
)

// Size is a bounding box renditions are fitted into, preserving aspect ratio.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ImageDecoder produces pixels for a cache miss.
type ImageDecoder interface {
	Decode(ctx context.Context, path string) (image.Image, error)
}

// placeholderGray is the neutral raster cached when decoding fails, so an
// unreadable file is not re-decoded on every request within the TTL window.
var placeholderGray = color.NRGBA{220, 220, 220, 255}

// Cache maps (source path, target size, source mtime) to a JPEG file on
// disk. Any change to the source mtime orphans prior entries rather than
// overwriting them; Prune sweeps the orphans along with expired entries.
type Cache struct {
	dir      string
	ttl      time.Duration
	quality  int
	maxBytes int64
	dec      ImageDecoder
}

func New(cfg config.Cache, dec ImageDecoder) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{
		dir:      cfg.Dir,
		ttl:      cfg.TTLDuration(),
		quality:  cfg.Quality,
		maxBytes: cfg.MaxDiskBytes(),
		dec:      dec,
	}, nil
}

// Key derives the cache key for path at size. The underlying stat happens
// exactly once so the key is atomic with respect to the mtime read; a file
// deleted concurrently keys as mtime zero, which only ever resolves to the
// placeholder entry.
func (c *Cache) Key(path string, size Size) string {
	var mtime int64
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime().UnixNano()
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", path, size, mtime)))
	return fmt.Sprintf("%x", sum)
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".jpg")
}

// Lookup returns the rendition file for path at size if one exists whose
// key matches the source's current mtime and whose own age is below the
// TTL. Both conditions must hold: the first invalidates on source edits,
// the second bounds disk growth for sources that never change.
func (c *Cache) Lookup(path string, size Size) (string, bool) {
	entry := c.entryPath(c.Key(path, size))
	info, err := os.Stat(entry)
	if err != nil {
		return "", false
	}
	if time.Since(info.ModTime()) >= c.ttl {
		return "", false
	}
	return entry, true
}

// Put persists a raster as the rendition for path at size and returns the
// entry's file path. The raster is fitted into the bounding box, flattened
// onto white and written atomically.
func (c *Cache) Put(path string, size Size, img image.Image) (string, error) {
	fitted := imaging.Fit(img, size.Width, size.Height, imaging.Lanczos)
	return c.write(c.Key(path, size), decoder.Flatten(fitted))
}

// Render returns a rendition for path at size, generating one on miss.
// Decode failure degrades to a cached neutral placeholder instead of an
// error: repeated requests for an unreadable file must not retry the
// expensive decode within the TTL window.
func (c *Cache) Render(ctx context.Context, path string, size Size) (string, error) {
	if entry, ok := c.Lookup(path, size); ok {
		slog.Debug("rendition cache hit", "path", path, "size", size.String())
		return entry, nil
	}

	key := c.Key(path, size)
	img, err := c.dec.Decode(ctx, path)
	if err != nil {
		slog.Warn("decode failed, caching placeholder rendition", "path", path, "error", err)
		placeholder := imaging.New(size.Width, size.Height, placeholderGray)
		return c.write(key, placeholder)
	}

	fitted := imaging.Fit(img, size.Width, size.Height, imaging.Lanczos)
	return c.write(key, decoder.Flatten(fitted))
}

func (c *Cache) write(key string, img image.Image) (string, error) {
	entry := c.entryPath(key)
	tmp, err := os.CreateTemp(c.dir, ".rendition.*.jpg")
	if err != nil {
		return "", fmt.Errorf("cache write: %w", err)
	}
	tmpPath := tmp.Name()

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache write: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache write: close: %w", err)
	}
	if err := os.Rename(tmpPath, entry); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache write: rename: %w", err)
	}
	return entry, nil
}

// Clear deletes every cache entry. Managed folder content is never touched;
// the cache directory holds nothing but renditions.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			slog.Error("failed to remove cache entry", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Prune removes expired entries, then the oldest remaining entries until
// total disk use fits the configured budget. Orphaned entries (stale mtime
// keys) age out here via the TTL.
func (c *Cache) Prune() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}

	type entry struct {
		path    string
		size    int64
		modTime time.Time
	}
	var live []entry
	removed := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		if time.Since(info.ModTime()) >= c.ttl {
			if err := os.Remove(p); err == nil {
				removed++
			}
			continue
		}
		live = append(live, entry{path: p, size: info.Size(), modTime: info.ModTime()})
	}

	if c.maxBytes <= 0 {
		return removed, nil
	}

	var total int64
	for _, e := range live {
		total += e.size
	}
	sort.Slice(live, func(i, j int) bool { return live[i].modTime.Before(live[j].modTime) })
	for _, e := range live {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			continue
		}
		total -= e.size
		removed++
	}
	return removed, nil
}
