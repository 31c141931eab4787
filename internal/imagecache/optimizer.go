package imagecache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// UnsupportedImageError is returned when the source bytes cannot be decoded
// as any supported format.
type UnsupportedImageError struct {
	reason string
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("unsupported image: %s", e.reason)
}

// Optimizer normalizes source images before they are sent to the
// generation API: the longest side is capped and the image is re-encoded
// as png, which keeps the alpha channel for formats that carry one.
type Optimizer struct {
	maxSide int
}

func NewOptimizer(maxSide int) *Optimizer {
	return &Optimizer{maxSide: maxSide}
}

func (o *Optimizer) Optimize(src []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &UnsupportedImageError{reason: err.Error()}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, &UnsupportedImageError{reason: fmt.Sprintf("empty %s image", format)}
	}

	if longest := max(width, height); longest > o.maxSide {
		scale := float64(o.maxSide) / float64(longest)
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding optimized image: %w", err)
	}
	return buf.Bytes(), nil
}

// MimeType reports the encoding produced by Optimize.
func (o *Optimizer) MimeType() string {
	return "image/png"
}
