package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	stddraw "image/draw"
	"image/jpeg"

	_ "image/gif" // register GIF decoder
	_ "image/png" // register PNG decoder

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/photoderive/pipeline/internal/recordstore"
)

// Thumbnail output settings. Thumbnails are encoded as JPEG regardless of
// the source format, so sources with an alpha channel are flattened onto a
// white background first.
const (
	DefaultThumbnailMaxDimension = 200
	DefaultThumbnailQuality      = 85
)

// ResizeEngine produces a bounded-dimension JPEG preview from source image
// bytes using pure Go (golang.org/x/image/draw, CatmullRom resampling).
type ResizeEngine struct {
	maxDimension int
	quality      int
}

// NewResizeEngine creates a ResizeEngine. Non-positive arguments fall back
// to the defaults.
func NewResizeEngine(maxDimension, quality int) *ResizeEngine {
	if maxDimension <= 0 {
		maxDimension = DefaultThumbnailMaxDimension
	}
	if quality <= 0 {
		quality = DefaultThumbnailQuality
	}
	return &ResizeEngine{maxDimension: maxDimension, quality: quality}
}

func (e *ResizeEngine) Kind() recordstore.Kind { return recordstore.KindThumbnail }

func (e *ResizeEngine) Derive(ctx context.Context, src []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &TransformError{Reason: "decode source image", Err: err}
	}

	srcBounds := img.Bounds()
	width, height := fitDimensions(srcBounds.Dx(), srcBounds.Dy(), e.maxDimension)

	// White canvas + Over compositing flattens any alpha channel for JPEG.
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	stddraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, stddraw.Src)
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, srcBounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, &TransformError{Reason: "encode thumbnail", Err: err}
	}

	// A long decode/scale can outlive the deadline; report it as a timeout
	// rather than handing back a result the caller no longer wants.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimeout
	}

	log.Debug().
		Str("sourceFormat", format).
		Int("sourceWidth", srcBounds.Dx()).
		Int("sourceHeight", srcBounds.Dy()).
		Int("width", width).
		Int("height", height).
		Int("bytes", buf.Len()).
		Msg("Thumbnail generated")

	return &Result{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}

// fitDimensions scales (width, height) to fit within maxDimension while
// preserving aspect ratio. Images already within bounds keep their size.
func fitDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	if width > height {
		newHeight := height * maxDimension / width
		if newHeight < 1 {
			newHeight = 1
		}
		return maxDimension, newHeight
	}

	newWidth := width * maxDimension / height
	if newWidth < 1 {
		newWidth = 1
	}
	return newWidth, maxDimension
}
