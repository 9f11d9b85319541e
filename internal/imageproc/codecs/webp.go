package codecs

import (
	"bytes"
	"fmt"
	"image"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"babycare-backend/internal/imageproc"
)

// WebP encodes lossy WebP through libwebp.
type WebP struct {
	Quality float32
}

func NewWebP(quality int) *WebP {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &WebP{Quality: float32(quality)}
}

func (w *WebP) Format() imageproc.Format { return imageproc.FormatWebP }

func (w *WebP) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("input image for WebP encoding is nil")
	}
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, w.Quality)
	if err != nil {
		return nil, fmt.Errorf("error creating webp encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("error encoding WebP image: %w", err)
	}
	return buf.Bytes(), nil
}
