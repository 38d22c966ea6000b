// Package decoder normalizes arbitrary image files into in-memory rasters.
// It tries an ordered list of strategies per file: camera RAW via an
// external tool, standard rasters via imaging with orientation correction,
// and HEIC/HIF via an external converter as the last resort.
package decoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/xpzchen/image-manager/internal/config"
)

// Decoder is a single decode strategy.
type Decoder interface {
	// Name identifies the strategy in errors and logs.
	Name() string

	// Match reports whether the strategy should be attempted for path.
	// mime may be nil when content sniffing failed.
	Match(path string, mime *mimetype.MIME) bool

	// Decode produces the raster. Implementations must honor ctx.
	Decode(ctx context.Context, path string) (image.Image, error)
}

// Adapter tries each strategy in order and aggregates failures. Expensive
// decodes are bounded by a process-wide semaphore and a per-decode timeout.
type Adapter struct {
	strategies []Decoder
	sem        chan struct{}
	timeout    time.Duration
	quality    int
}

func NewAdapter(cfg config.Config) *Adapter {
	return &Adapter{
		strategies: []Decoder{
			newRawDecoder(cfg.Core, cfg.Cache.RawTool),
			newStandardDecoder(),
			newHeifDecoder(cfg.Cache.HeifTool),
		},
		sem:     make(chan struct{}, cfg.Cache.DecodeConcurrency),
		timeout: cfg.Cache.DecodeTimeoutDuration(),
		quality: cfg.Cache.Quality,
	}
}

// Decode normalizes the file at path into a raster. Strategies are tried
// in order; the returned error joins every attempted strategy's failure.
func (a *Adapter) Decode(ctx context.Context, path string) (image.Image, error) {
	select {
	case a.sem <- struct{}{}:
		defer func() { <-a.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		mime = nil
	}

	var errs []error
	for _, d := range a.strategies {
		if !d.Match(path, mime) {
			continue
		}
		img, err := d.Decode(ctx, path)
		if err == nil {
			return img, nil
		}
		errs = append(errs, &DecodeError{Strategy: d.Name(), Path: path, Err: err})
		slog.Debug("decode strategy failed", "strategy", d.Name(), "path", path, "error", err)
	}
	if len(errs) == 0 {
		return nil, &DecodeError{Strategy: "none", Path: path, Err: ErrNoStrategy}
	}
	return nil, errors.Join(errs...)
}

// Normalize migrates HEIC/HIF files to a sibling quality-95 JPEG, deletes
// the original and returns the new path. This is a destructive, one-time
// format migration: callers must treat the item's path as changed. Files
// in any other format are returned untouched.
func (a *Adapter) Normalize(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".heic" && ext != ".hif" {
		return path, nil
	}

	img, err := a.Decode(ctx, path)
	if err != nil {
		return path, err
	}

	newPath := path[:len(path)-len(ext)] + ".jpg"
	if err := imaging.Save(Flatten(img), newPath, imaging.JPEGQuality(a.quality)); err != nil {
		return path, err
	}
	if err := os.Remove(path); err != nil {
		return newPath, err
	}
	slog.Info("converted HEIC to JPEG", "from", path, "to", newPath)
	return newPath, nil
}

// Flatten composites any transparency onto a white background, yielding an
// RGB-safe raster for JPEG encoding.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.NRGBA{255, 255, 255, 255})
	return imaging.Overlay(bg, img, image.Point{}, 1.0)
}
