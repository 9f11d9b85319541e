package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/disintegration/imaging"
)

type Format string

const (
	FormatAVIF Format = "avif"
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
)

func (f Format) MIMEType() string {
	return "image/" + string(f)
}

// Encoder turns a decoded image into bytes of one output format.
type Encoder interface {
	Format() Format
	Encode(img image.Image) ([]byte, error)
}

// ChainStep pairs an encoder with the predicate its output must satisfy.
// A nil Accept accepts any successful encode.
type ChainStep struct {
	Encoder Encoder
	Accept  func(encodedSize, originalSize int) bool
}

// EncodeChain is evaluated in order; the first accepted output wins.
type EncodeChain []ChainStep

var ErrChainExhausted = errors.New("no encoder produced an acceptable image")

// SmallerThan accepts output strictly smaller than ratio × the original size.
func SmallerThan(ratio float64) func(int, int) bool {
	return func(encoded, original int) bool {
		return float64(encoded) < ratio*float64(original)
	}
}

// DefaultChain prefers AVIF when it clearly wins on size, then WebP, then PNG.
func DefaultChain(avif, webp, png Encoder, avifMaxRatio float64) EncodeChain {
	chain := EncodeChain{}
	if avif != nil {
		chain = append(chain, ChainStep{Encoder: avif, Accept: SmallerThan(avifMaxRatio)})
	}
	if webp != nil {
		chain = append(chain, ChainStep{Encoder: webp})
	}
	if png != nil {
		chain = append(chain, ChainStep{Encoder: png})
	}
	return chain
}

// Run encodes img with each step until one is accepted.
func (c EncodeChain) Run(ctx context.Context, logger *slog.Logger, img image.Image, originalSize int) ([]byte, Format, error) {
	var errs []error
	for _, step := range c {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		format := step.Encoder.Format()
		data, err := safeEncode(step.Encoder, img)
		if err != nil {
			logger.Warn("encoder failed, trying next format", "format", format, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}
		if step.Accept != nil && !step.Accept(len(data), originalSize) {
			logger.Debug("encoded output rejected", "format", format, "encoded_size", len(data), "original_size", originalSize)
			continue
		}
		return data, format, nil
	}
	errs = append([]error{ErrChainExhausted}, errs...)
	return nil, "", errors.Join(errs...)
}

func safeEncode(enc Encoder, img image.Image) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during encode: %v", r)
		}
	}()
	data, err = enc.Encode(img)
	if err == nil && len(data) == 0 {
		err = errors.New("encoder produced no data")
	}
	return data, err
}

// PNGEncoder is the last-resort lossless encoder.
type PNGEncoder struct{}

func (PNGEncoder) Format() Format { return FormatPNG }

func (PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("error encoding PNG image: %w", err)
	}
	return buf.Bytes(), nil
}
