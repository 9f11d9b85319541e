package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/semaphore"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxUploadBytes = 5 << 20
	DefaultMaxFilenameLen = 100
	DefaultMaxPixels      = 100_000_000
	DefaultMaxAspectRatio = 100.0
	defaultFilenameStem   = "profile_picture"
	defaultFilenameExt    = ".jpg"
)

// Validation error codes returned to clients.
const (
	CodeExtensionNotAllowed = "extension_not_allowed"
	CodeFileTooLarge        = "file_too_large"
	CodeInvalidImage        = "invalid_image"
	CodeImageTooLarge       = "image_too_large"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".avif": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// formatMIME maps decoder format names to the MIME types trusted downstream.
var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"avif": "image/avif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// ValidationError is a client input error; the upload is rejected with 400.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UploadCandidate is the request-scoped view of the submitted file.
// DeclaredMIME and Filename come from the client and are untrusted until
// the candidate has been admitted.
type UploadCandidate struct {
	Data         []byte
	DeclaredMIME string
	Filename     string
	DeclaredSize int64
}

// Verdict is the result of inspecting a candidate's real content.
type Verdict struct {
	Valid        bool
	DetectedMIME string
	Format       string
	Width        int
	Height       int
	Reason       string
}

type GatekeeperOptions struct {
	MaxBytes       int64
	MaxFilenameLen int
	MaxPixels      int
	MaxAspectRatio float64
	// DecodeSlots bounds concurrent full decodes. It is usually the same
	// semaphore the normalizing service holds. Nil means unbounded.
	DecodeSlots *semaphore.Weighted
}

func DefaultGatekeeperOptions() GatekeeperOptions {
	return GatekeeperOptions{
		MaxBytes:       DefaultMaxUploadBytes,
		MaxFilenameLen: DefaultMaxFilenameLen,
		MaxPixels:      DefaultMaxPixels,
		MaxAspectRatio: DefaultMaxAspectRatio,
	}
}

type Gatekeeper struct {
	opts GatekeeperOptions
}

func NewGatekeeper(opts GatekeeperOptions) *Gatekeeper {
	defaults := DefaultGatekeeperOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaults.MaxBytes
	}
	if opts.MaxFilenameLen <= 0 {
		opts.MaxFilenameLen = defaults.MaxFilenameLen
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaults.MaxPixels
	}
	if opts.MaxAspectRatio <= 0 {
		opts.MaxAspectRatio = defaults.MaxAspectRatio
	}
	return &Gatekeeper{opts: opts}
}

func (g *Gatekeeper) MaxBytes() int64 {
	return g.opts.MaxBytes
}

// Admit runs the cheap extension check, sanitizes the filename and finally
// decodes the content. The returned candidate carries the server-detected
// MIME type in place of the declared one.
func (g *Gatekeeper) Admit(ctx context.Context, c *UploadCandidate) (*UploadCandidate, *Verdict, error) {
	if c == nil || len(c.Data) == 0 {
		return nil, nil, invalid(CodeInvalidImage, "no file data received")
	}
	if err := CheckExtension(c.Filename); err != nil {
		return nil, nil, err
	}

	admitted := &UploadCandidate{
		Data:         c.Data,
		DeclaredMIME: c.DeclaredMIME,
		Filename:     SanitizeFilename(c.Filename, g.opts.MaxFilenameLen),
		DeclaredSize: c.DeclaredSize,
	}

	verdict, err := g.Inspect(ctx, admitted)
	if err != nil {
		return nil, verdict, err
	}
	admitted.DeclaredMIME = verdict.DetectedMIME
	return admitted, verdict, nil
}

// CheckExtension rejects filenames whose extension is not an allowed image
// extension. It only filters obvious mistakes; Inspect is the real check.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !allowedExtensions[ext] {
		return invalid(CodeExtensionNotAllowed,
			"file extension %q is not allowed; allowed: jpg, jpeg, png, gif, webp, avif, bmp, tiff, tif", ext)
	}
	return nil
}

// SanitizeFilename strips path components, traversal sequences and characters
// that are forbidden on common filesystems, then truncates to maxLen runes
// while keeping the extension.
func SanitizeFilename(filename string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFilenameLen
	}

	name := strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")

	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.Trim(strings.TrimSuffix(name, filepath.Ext(name)), " .")
	if ext == "." || len(ext) > 10 {
		ext = ""
	}
	if ext == "" {
		ext = defaultFilenameExt
	}
	if stem == "" {
		stem = defaultFilenameStem
	}

	room := maxLen - len([]rune(ext))
	if room < 1 {
		room = 1
	}
	if runes := []rune(stem); len(runes) > room {
		stem = strings.TrimRight(string(runes[:room]), " .")
		if stem == "" {
			stem = defaultFilenameStem[:min(room, len(defaultFilenameStem))]
		}
	}
	return stem + ext
}

// Inspect checks the header, the real dimensions and finally decodes the whole
// image. It is the trust boundary: a renamed non-image or a file with a
// corrupt body fails here regardless of its extension.
func (g *Gatekeeper) Inspect(ctx context.Context, c *UploadCandidate) (*Verdict, error) {
	size := int64(len(c.Data))
	if size > g.opts.MaxBytes || c.DeclaredSize > g.opts.MaxBytes {
		return rejected(invalid(CodeFileTooLarge, "file size exceeds the %d MB limit", g.opts.MaxBytes>>20))
	}

	sniffed := mimetype.Detect(c.Data)
	if !strings.HasPrefix(sniffed.String(), "image/") {
		return rejected(invalid(CodeInvalidImage, "file content is not a valid image (detected %s)", sniffed.String()))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		return rejected(invalid(CodeInvalidImage, "file content is not a valid image: %v", err))
	}
	detected, ok := formatMIME[format]
	if !ok {
		return rejected(invalid(CodeInvalidImage, "unsupported image format %q", format))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return rejected(invalid(CodeInvalidImage, "image has no usable dimensions"))
	}
	if cfg.Width*cfg.Height > g.opts.MaxPixels {
		return rejected(invalid(CodeImageTooLarge, "image dimensions %dx%d exceed the allowed pixel count", cfg.Width, cfg.Height))
	}
	long, short := max(cfg.Width, cfg.Height), min(cfg.Width, cfg.Height)
	if float64(long)/float64(short) > g.opts.MaxAspectRatio {
		return rejected(invalid(CodeImageTooLarge, "image aspect ratio %dx%d is too extreme", cfg.Width, cfg.Height))
	}
	if err := g.decodeAll(ctx, c.Data, format); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return rejected(verr)
		}
		return &Verdict{Valid: false, Reason: err.Error()}, err
	}

	return &Verdict{
		Valid:        true,
		DetectedMIME: detected,
		Format:       format,
		Width:        cfg.Width,
		Height:       cfg.Height,
	}, nil
}

// decodeAll decodes every pixel (every frame for GIF) so truncated or corrupt
// bodies are caught before the upload reaches the normalizer. Only context
// errors are returned as non-validation errors.
func (g *Gatekeeper) decodeAll(ctx context.Context, data []byte, format string) (err error) {
	if g.opts.DecodeSlots != nil {
		if err := g.opts.DecodeSlots.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("waiting for decode slot: %w", err)
		}
		defer g.opts.DecodeSlots.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			err = invalid(CodeInvalidImage, "file content is not a valid image: decoder failed")
		}
	}()

	if format == "gif" {
		_, err = gif.DecodeAll(bytes.NewReader(data))
	} else {
		_, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return invalid(CodeInvalidImage, "file content is not a valid image: %v", err)
	}
	return nil
}

func rejected(err *ValidationError) (*Verdict, error) {
	return &Verdict{Valid: false, Reason: err.Message}, err
}
