// Package imagetest builds in-memory image fixtures and fake encoders for
// tests across packages.
package imagetest

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"

	"babycare-backend/internal/imageproc"
)

// Gradient returns an opaque gradient image of the given size.
func Gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

// PNG returns Gradient encoded as PNG.
func PNG(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// AnimatedGIF returns a GIF with the given number of solid-colour frames.
func AnimatedGIF(width, height, frames int) []byte {
	anim := &gif.GIF{Config: image.Config{Width: width, Height: height}}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, width, height), palette.Plan9)
		idx := uint8((i * 37) % len(palette.Plan9))
		for p := range frame.Pix {
			frame.Pix[p] = idx
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10+i)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Pad appends zero bytes after the image trailer so the file grows without
// changing its decoded content.
func Pad(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

// Encoder is a fake encoder returning fixed output.
type Encoder struct {
	Fmt   imageproc.Format
	Size  int
	Err   error
	Calls int
}

func (e *Encoder) Format() imageproc.Format { return e.Fmt }

func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	if img == nil {
		return nil, errors.New("nil image")
	}
	return bytes.Repeat([]byte{byte(len(e.Fmt))}, e.Size), nil
}
