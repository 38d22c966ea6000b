package scan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

// Image is one listing entry. When a stem has both a standard and a RAW
// file the standard file represents the pair and carries the RAW
// attachment fields.
type Image struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Human   string    `json:"size_human"`
	ModTime time.Time `json:"mtime"`
	Type    string    `json:"type"`
	Ext     string    `json:"ext"`
	HasRaw  bool      `json:"has_raw"`
	RawPath string    `json:"raw_path,omitempty"`
	RawName string    `json:"raw_name,omitempty"`
}

// ListImages collects the images of folder's root and of any existing
// classification subfolders (RAW, JPG, PNG, ...), non-recursively. HEIC
// files are normalized to JPEG first. Files are grouped by stem ignoring
// case; each group is represented by its JPEG-preferred standard file,
// with RAW siblings attached. With showRaw set, RAW siblings are also
// listed as their own entries. Newest first.
func (s *Scanner) ListImages(ctx context.Context, folder string, showRaw bool) ([]Image, error) {
	folder, err := filepath.Abs(folder)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(folder); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]struct{})
	groups := make(map[string][]Image)
	var order []string

	for _, dir := range s.scanDirs(folder) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || s.excluded(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			ext := strings.ToLower(filepath.Ext(entry.Name()))

			if ext == ".heic" || ext == ".hif" {
				if s.norm == nil {
					continue
				}
				newPath, err := s.norm.Normalize(ctx, path)
				if err != nil {
					slog.Warn("heic normalization failed, skipping file", "path", path, "error", err)
					continue
				}
				path = newPath
				ext = strings.ToLower(filepath.Ext(path))
			}
			if !s.core.IsImageExt(ext) {
				continue
			}

			key := pathKey(path)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			name := filepath.Base(path)
			stem := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
			if _, ok := groups[stem]; !ok {
				order = append(order, stem)
			}
			groups[stem] = append(groups[stem], Image{
				Name:    name,
				Path:    filepath.ToSlash(path),
				Size:    info.Size(),
				Human:   humanize.Bytes(uint64(info.Size())),
				ModTime: info.ModTime(),
				Type:    s.itemType(ext),
				Ext:     ext,
			})
		}
	}

	var images []Image
	for _, stem := range order {
		group := groups[stem]
		raws := lo.Filter(group, func(img Image, _ int) bool { return img.Type == "RAW" })
		standards := lo.Filter(group, func(img Image, _ int) bool { return img.Type != "RAW" })

		if len(standards) == 0 {
			images = append(images, raws[0])
			if showRaw {
				images = append(images, raws[1:]...)
			}
			continue
		}

		sort.SliceStable(standards, func(i, j int) bool {
			return jpegRank(standards[i].Ext) < jpegRank(standards[j].Ext)
		})
		selected := standards[0]
		if len(raws) > 0 {
			selected.HasRaw = true
			selected.RawPath = raws[0].Path
			selected.RawName = raws[0].Name
		}
		images = append(images, selected)
		if showRaw {
			images = append(images, raws...)
		}
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].ModTime.After(images[j].ModTime)
	})
	return images, nil
}

// scanDirs is the folder root plus every classification subfolder that
// exists: RAW and the uppercased name of each standard extension.
func (s *Scanner) scanDirs(folder string) []string {
	dirs := []string{folder}
	names := map[string]struct{}{"RAW": {}}
	for _, ext := range s.core.ImageExts {
		if !s.core.IsRawExt(ext) {
			names[s.core.ClassifyDirName(ext)] = struct{}{}
		}
	}
	for name := range names {
		sub := filepath.Join(folder, name)
		if info, err := os.Stat(sub); err == nil && info.IsDir() {
			dirs = append(dirs, sub)
		}
	}
	sort.Strings(dirs[1:])
	return dirs
}

// jpegRank orders standard extensions so JPEG represents a mixed group.
func jpegRank(ext string) int {
	if strings.Contains(ext, "jpg") || strings.Contains(ext, "jpeg") {
		return 0
	}
	return 1
}
