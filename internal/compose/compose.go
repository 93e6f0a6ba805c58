// Package compose prepares processed payloads for download: background
// flattening, previews and file naming.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when a payload cannot be decoded as an image.
var ErrNotImage = errors.New("payload is not a decodable image")

// Flatten draws the image over fill and re-encodes it as PNG.
func Flatten(data []byte, fill Fill) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	fill.Paint(dst)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)

	return encodePNG(dst)
}

// Thumbnail scales the image to fit in maxDim x maxDim. Images already
// within bounds are re-encoded unchanged.
func Thumbnail(data []byte, maxDim uint) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return encodePNG(resize.Thumbnail(maxDim, maxDim, src, resize.Lanczos3))
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename names a download after the original file and the method, using
// the part of the original name before its first dot.
func Filename(original string, method models.Method, kind models.AssetKind) string {
	base := original
	if i := strings.IndexByte(original, '.'); i >= 0 {
		base = original[:i]
	}
	ext := "png"
	if kind == models.KindVideo {
		ext = "webm"
	}
	return fmt.Sprintf("%s_%s.%s", base, method, ext)
}

// ContentType returns the MIME type of a download of the given kind.
func ContentType(kind models.AssetKind) string {
	if kind == models.KindVideo {
		return "video/webm"
	}
	return "image/png"
}
