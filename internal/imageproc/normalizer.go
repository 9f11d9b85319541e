package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"log/slog"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxDimension   = 300
	DefaultMinDimension   = 200
	DefaultSmallGIFBytes  = 500 << 10
	DefaultSmallGIFFactor = 1.5
	DefaultAVIFMaxRatio   = 0.7
)

type NormalizerOptions struct {
	MaxDimension int
	MinDimension int
	// Animated GIFs within SmallGIFFactor × MaxDimension and under
	// SmallGIFBytes are stored untouched.
	SmallGIFBytes  int
	SmallGIFFactor float64
}

func DefaultNormalizerOptions() NormalizerOptions {
	return NormalizerOptions{
		MaxDimension:   DefaultMaxDimension,
		MinDimension:   DefaultMinDimension,
		SmallGIFBytes:  DefaultSmallGIFBytes,
		SmallGIFFactor: DefaultSmallGIFFactor,
	}
}

// NormalizedImage is the storage-ready form of an upload. Size always equals
// len(Data).
type NormalizedImage struct {
	Data     []byte
	Width    int
	Height   int
	MIMEType string
	Format   Format
	Size     int
	Animated bool
}

type Normalizer struct {
	opts   NormalizerOptions
	chain  EncodeChain
	logger *slog.Logger
}

func NewNormalizer(opts NormalizerOptions, chain EncodeChain, logger *slog.Logger) *Normalizer {
	defaults := DefaultNormalizerOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaults.MaxDimension
	}
	if opts.MinDimension <= 0 {
		opts.MinDimension = defaults.MinDimension
	}
	if opts.SmallGIFBytes <= 0 {
		opts.SmallGIFBytes = defaults.SmallGIFBytes
	}
	if opts.SmallGIFFactor <= 0 {
		opts.SmallGIFFactor = defaults.SmallGIFFactor
	}
	if len(chain) == 0 {
		chain = EncodeChain{{Encoder: PNGEncoder{}}}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, chain: chain, logger: logger}
}

// Normalize resizes and re-encodes a validated upload. detectedMIME must be
// the type produced by the Gatekeeper, never the client's claim.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, detectedMIME, filename string) (*NormalizedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := n.logger.With("filename", filename, "mime_type", detectedMIME, "original_size", len(data))

	if detectedMIME == "image/gif" {
		anim, err := gif.DecodeAll(bytes.NewReader(data))
		if err == nil && len(anim.Image) > 1 {
			return n.normalizeAnimated(ctx, logger, data, anim), nil
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, invalid(CodeInvalidImage, "file content is not a valid image: %v", err)
	}

	bounds := img.Bounds()
	width, height, resize := TargetSize(bounds.Dx(), bounds.Dy(), n.opts.MaxDimension, n.opts.MinDimension)
	if resize {
		logger.Debug("resizing image", "from", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()), "to", fmt.Sprintf("%dx%d", width, height))
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	encoded, format, err := n.chain.Run(ctx, logger, img, len(data))
	if err != nil {
		return nil, err
	}
	logger.Debug("image normalized", "format", format, "optimized_size", len(encoded))

	return &NormalizedImage{
		Data:     encoded,
		Width:    width,
		Height:   height,
		MIMEType: format.MIMEType(),
		Format:   format,
		Size:     len(encoded),
	}, nil
}

func (n *Normalizer) normalizeAnimated(ctx context.Context, logger *slog.Logger, data []byte, anim *gif.GIF) *NormalizedImage {
	width, height := gifSize(anim)
	original := &NormalizedImage{
		Data:     data,
		Width:    width,
		Height:   height,
		MIMEType: FormatGIF.MIMEType(),
		Format:   FormatGIF,
		Size:     len(data),
		Animated: true,
	}

	limit := float64(n.opts.MaxDimension) * n.opts.SmallGIFFactor
	if float64(width) <= limit && float64(height) <= limit && len(data) < n.opts.SmallGIFBytes {
		logger.Debug("keeping small animated gif as uploaded", "frames", len(anim.Image))
		return original
	}

	targetW, targetH, resize := TargetSize(width, height, n.opts.MaxDimension, n.opts.MinDimension)
	if !resize {
		return original
	}

	encoded, err := resizeAnimatedGIF(ctx, anim, width, height, targetW, targetH)
	if err != nil {
		logger.Warn("animated gif resize failed, storing original", "error", err)
		return original
	}

	return &NormalizedImage{
		Data:     encoded,
		Width:    targetW,
		Height:   targetH,
		MIMEType: FormatGIF.MIMEType(),
		Format:   FormatGIF,
		Size:     len(encoded),
		Animated: true,
	}
}
