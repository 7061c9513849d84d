package worker

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
)

const previewQuality = 85

// ImageProcessor renders JPEG previews of stored images.
type ImageProcessor struct {
	quality int
}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{quality: previewQuality}
}

// Thumbnail decodes r and writes a JPEG scaled to width pixels, keeping the
// aspect ratio. Images narrower than width are not upscaled.
func (ip *ImageProcessor) Thumbnail(r io.Reader, width int, w io.Writer) error {
	if width <= 0 {
		return errors.New("width must be positive")
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return errors.New("empty image")
	}

	thumb := img
	if bounds.Dx() > width {
		thumb = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	if err := imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(ip.quality)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}
