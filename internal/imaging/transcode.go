// Package imaging decodes, resizes and re-encodes proxied images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// DefaultMaxPixels is the largest width*height decoded by default (0x3FFF squared).
const DefaultMaxPixels = 0x3FFF * 0x3FFF

// ErrInvalidImage is returned when the input cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Metadata holds the natural size and format of an encoded image.
type Metadata struct {
	Width  int
	Height int
	Format string
}

// Transcoder resizes images and re-encodes them in the same format family.
type Transcoder struct {
	// MaxPixels bounds the decoded image area. Zero means DefaultMaxPixels.
	MaxPixels int64
}

// NewTranscoder creates a Transcoder with the default pixel limit.
func NewTranscoder() *Transcoder {
	return &Transcoder{MaxPixels: DefaultMaxPixels}
}

// ReadMetadata decodes only the image header.
func ReadMetadata(data []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Metadata{}, fmt.Errorf("%w: missing dimensions", ErrInvalidImage)
	}
	return Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Transcode fits data into width x height (0 meaning unconstrained) and
// re-encodes it. The image is only resampled when the computed geometry
// differs from the natural size. Animated input collapses to its first frame.
func (t *Transcoder) Transcode(data []byte, width, height int) ([]byte, error) {
	meta, err := ReadMetadata(data)
	if err != nil {
		return nil, err
	}
	limit := t.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if pixels := int64(meta.Width) * int64(meta.Height); pixels > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit %d", ErrInvalidImage, meta.Width, meta.Height, limit)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	newWidth, newHeight := CalculateGeometry(meta.Width, meta.Height, width, height)
	newWidth = max(newWidth, 1)
	newHeight = max(newHeight, 1)
	if newWidth != meta.Width || newHeight != meta.Height {
		img = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, meta.Format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", meta.Format, err)
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case "gif":
		return imaging.Encode(buf, img, imaging.GIF)
	default:
		// png, and webp which has no pure Go encoder
		return imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	}
}
