package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"

	xdraw "golang.org/x/image/draw"
)

func gifSize(anim *gif.GIF) (int, int) {
	if anim.Config.Width > 0 && anim.Config.Height > 0 {
		return anim.Config.Width, anim.Config.Height
	}
	var bounds image.Rectangle
	for _, frame := range anim.Image {
		bounds = bounds.Union(frame.Bounds())
	}
	return bounds.Max.X, bounds.Max.Y
}

// resizeAnimatedGIF composites every frame onto a full canvas (honouring the
// source disposal methods), scales it and re-quantizes it to the frame's
// palette. Delays are kept and the result loops forever.
func resizeAnimatedGIF(ctx context.Context, anim *gif.GIF, width, height, targetW, targetH int) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during animated resize: %v", r)
		}
	}()

	if len(anim.Image) == 0 || width <= 0 || height <= 0 {
		return nil, errors.New("gif has no frames")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	resized := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(anim.Image)),
		Delay:     make([]int, 0, len(anim.Image)),
		Disposal:  make([]byte, 0, len(anim.Image)),
		LoopCount: 0,
		Config:    image.Config{Width: targetW, Height: targetH},
	}

	for i, frame := range anim.Image {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		disposal := byte(gif.DisposalNone)
		if i < len(anim.Disposal) {
			disposal = anim.Disposal[i]
		}
		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(canvas.Bounds())
			copy(previous.Pix, canvas.Pix)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)

		var pal color.Palette = frame.Palette
		if len(pal) == 0 {
			pal = palette.Plan9
		}
		paletted := image.NewPaletted(scaled.Bounds(), pal)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), scaled, image.Point{})

		delay := 0
		if i < len(anim.Delay) {
			delay = anim.Delay[i]
		}
		resized.Image = append(resized.Image, paletted)
		resized.Delay = append(resized.Delay, delay)
		resized.Disposal = append(resized.Disposal, gif.DisposalNone)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, resized); err != nil {
		return nil, fmt.Errorf("failed to encode animated gif: %w", err)
	}
	return buf.Bytes(), nil
}
