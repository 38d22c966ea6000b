package decoder

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// Register BMP support for imaging.Open and image.Decode.
	_ "golang.org/x/image/bmp"
)

// standardDecoder opens ordinary rasters (JPEG/PNG/GIF/BMP) directly,
// applying EXIF-based orientation correction. It is the catch-all strategy
// and is attempted for every file a more specific strategy did not handle.
type standardDecoder struct{}

func newStandardDecoder() standardDecoder { return standardDecoder{} }

func (standardDecoder) Name() string { return "standard" }

func (standardDecoder) Match(string, *mimetype.MIME) bool { return true }

func (standardDecoder) Decode(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imaging.Open(path, imaging.AutoOrientation(true))
}
