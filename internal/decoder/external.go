package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/xpzchen/image-manager/internal/config"

	// Register TIFF support for the dcraw output path.
	_ "golang.org/x/image/tiff"
)

const srcToken = "{src}"

// externalDecoder shells out to a converter that writes pixels to stdout.
// The command argv contains a "{src}" token replaced by the source path.
type externalDecoder struct {
	name string
	argv []string
}

func (d externalDecoder) Name() string { return d.name }

func (d externalDecoder) Decode(ctx context.Context, path string) (image.Image, error) {
	if len(d.argv) == 0 {
		return nil, fmt.Errorf("%s tool not configured", d.name)
	}

	args := make([]string, 0, len(d.argv)-1)
	for _, a := range d.argv[1:] {
		args = append(args, strings.ReplaceAll(a, srcToken, path))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.argv[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", d.argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", d.argv[0], err)
	}

	img, _, err := image.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", d.argv[0], err)
	}
	return img, nil
}

// rawDecoder handles camera RAW files via a dcraw-compatible tool using
// camera white balance and no extra brightening (-w -W).
type rawDecoder struct {
	externalDecoder
	core config.Core
}

func newRawDecoder(core config.Core, argv []string) rawDecoder {
	return rawDecoder{
		externalDecoder: externalDecoder{name: "raw", argv: argv},
		core:            core,
	}
}

func (d rawDecoder) Match(path string, _ *mimetype.MIME) bool {
	return d.core.IsRawExt(filepath.Ext(path))
}

// heifDecoder handles HEIC/HIF files the standard strategy cannot open.
type heifDecoder struct {
	externalDecoder
}

func newHeifDecoder(argv []string) heifDecoder {
	return heifDecoder{externalDecoder{name: "heif", argv: argv}}
}

func (d heifDecoder) Match(path string, mime *mimetype.MIME) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".hif", ".heif":
		return true
	}
	return mime != nil && (mime.Is("image/heic") || mime.Is("image/heif"))
}
