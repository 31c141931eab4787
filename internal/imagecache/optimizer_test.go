package imagecache

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestOptimizeKeepsSmallImages(t *testing.T) {
	optimizer := NewOptimizer(1024)

	out, err := optimizer.Optimize(pngBytes(t, 200, 100))
	require.NoError(t, err)

	width, height := decodeSize(t, out)
	assert.Equal(t, 200, width)
	assert.Equal(t, 100, height)
}

func TestOptimizeCapsLongestSide(t *testing.T) {
	optimizer := NewOptimizer(100)

	out, err := optimizer.Optimize(pngBytes(t, 400, 200))
	require.NoError(t, err)

	width, height := decodeSize(t, out)
	assert.Equal(t, 100, width)
	assert.Equal(t, 50, height)
}

func TestOptimizeCapsPortraitImages(t *testing.T) {
	optimizer := NewOptimizer(100)

	out, err := optimizer.Optimize(pngBytes(t, 50, 400))
	require.NoError(t, err)

	width, height := decodeSize(t, out)
	assert.Equal(t, 100, height)
	assert.Less(t, width, 100)
	assert.GreaterOrEqual(t, width, 1)
}

func TestOptimizeReencodesJpegAsPng(t *testing.T) {
	optimizer := NewOptimizer(1024)

	out, err := optimizer.Optimize(jpegBytes(t, 64, 64))
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	optimizer := NewOptimizer(1024)

	_, err := optimizer.Optimize([]byte("this is not an image"))
	require.Error(t, err)

	var unsupported *UnsupportedImageError
	assert.ErrorAs(t, err, &unsupported)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/png", NewOptimizer(1024).MimeType())
}
