package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image errors
var (
	ErrInvalidImage = errors.New("artifacts: invalid image data")
	ErrEmptyImage   = errors.New("artifacts: empty image data")
)

// Dimensions reads the pixel size from the image header without decoding
// the pixels. PNG, JPEG, GIF and WebP are understood.
func Dimensions(data []byte) (width, height int, format string, err error) {
	if len(data) == 0 {
		return 0, 0, "", ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// Resolution formats a size as "WxH".
func Resolution(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// DecodeImage decodes image data from any registered format.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// FitWithin scales img down so its longer side is at most maxSide,
// keeping the aspect ratio. Smaller images are returned unchanged.
func FitWithin(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxSide <= 0 || max(width, height) <= maxSide {
		return img
	}

	scale := float64(maxSide) / float64(max(width, height))
	newWidth := max(1, int(float64(width)*scale))
	newHeight := max(1, int(float64(height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Thumbnail decodes data and re-encodes it as a PNG no larger than maxSide
// on either side.
func Thumbnail(data []byte, maxSide int) ([]byte, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, FitWithin(img, maxSide)); err != nil {
		return nil, fmt.Errorf("artifacts: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
