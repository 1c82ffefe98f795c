// Package upload provides the sequential photo upload pipeline: per-item
// compression, remote upload and progress tracking.
package upload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
)

// Compressor applies a size/quality-bounded transform to photo bytes
// before upload. Images larger than MaxEdge on either side are scaled
// down; everything is re-encoded as JPEG.
type Compressor struct {
	MaxEdge int // longest allowed edge in pixels
	Quality int // JPEG quality, 1-100
}

// NewCompressor returns a Compressor with the bounds the mobile app uses
// for site photos.
func NewCompressor() *Compressor {
	return &Compressor{
		MaxEdge: 1920,
		Quality: 80,
	}
}

// Compress decodes, bounds and re-encodes a photo. Non-image payloads are
// rejected with a compression error.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	kind := mimetype.Detect(data)
	if !isSupportedImage(kind) {
		return nil, apperrors.New(apperrors.ErrCompression,
			fmt.Sprintf("unsupported content type %s", kind.String()))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompression, "failed to decode image", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > c.MaxEdge || bounds.Dy() > c.MaxEdge {
		img = imaging.Fit(img, c.MaxEdge, c.MaxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.Quality)); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompression, "failed to encode image", err)
	}

	return buf.Bytes(), nil
}

// WritePreview renders a small local preview to previewDir and returns
// its path. Previews are a released resource: callers remove the file
// when the queue entry is removed or the queue is disposed.
func (c *Compressor) WritePreview(previewDir, id string, data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCompression, "failed to decode preview source", err)
	}

	if err := os.MkdirAll(previewDir, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to create preview directory", err)
	}

	thumb := imaging.Fit(img, 200, 200, imaging.Lanczos)
	path := filepath.Join(previewDir, id+".jpg")

	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to create preview file", err)
	}
	defer f.Close()

	if err := imaging.Encode(f, thumb, imaging.JPEG, imaging.JPEGQuality(70)); err != nil {
		os.Remove(path)
		return "", apperrors.Wrap(apperrors.ErrCompression, "failed to encode preview", err)
	}

	return path, nil
}

func isSupportedImage(kind *mimetype.MIME) bool {
	switch kind.String() {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}
