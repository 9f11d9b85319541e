package codecs

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/avif"

	"babycare-backend/internal/imageproc"
)

// AVIF encodes still images with libavif (or its bundled WASM build). Importing
// this package also registers the AVIF decoder with image.Decode.
type AVIF struct {
	Quality int
	Speed   int
}

func NewAVIF(quality, speed int) *AVIF {
	if quality <= 0 || quality > 100 {
		quality = 60
	}
	if speed < 0 || speed > 10 {
		speed = 8
	}
	return &AVIF{Quality: quality, Speed: speed}
}

func (a *AVIF) Format() imageproc.Format { return imageproc.FormatAVIF }

func (a *AVIF) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("input image for AVIF encoding is nil")
	}
	var buf bytes.Buffer
	if err := avif.Encode(&buf, img, avif.Options{Quality: a.Quality, Speed: a.Speed}); err != nil {
		return nil, fmt.Errorf("error encoding AVIF image: %w", err)
	}
	return buf.Bytes(), nil
}
