// Package transcode normalizes uploaded images: it decodes the input, bounds
// its dimensions and re-encodes it in the container implied by the declared
// file extension.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const (
	// MaxWidth and MaxHeight bound the output dimensions.
	MaxWidth  = 1920
	MaxHeight = 1080

	// Quality is applied to every recognized lossy format (0-100).
	Quality = 50

	// DefaultMaxPixels caps the decoded canvas (width x height). The header
	// is checked before decoding so a small file cannot claim a huge canvas.
	DefaultMaxPixels = 50_000_000
)

// Format names as reported by image.Decode.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// ErrUnsupportedInput is returned when the payload cannot be decoded as an
// image, or when its container has no encoder.
var ErrUnsupportedInput = errors.New("unsupported image input")

// Output is the result of a transcode.
type Output struct {
	Data      []byte
	Extension string
	Format    string
	Width     int
	Height    int
}

// Engine implements the transcoding pipeline. It is safe for concurrent use.
type Engine struct {
	// MaxPixels bounds width x height of accepted inputs; zero means DefaultMaxPixels
	MaxPixels int
}

// New creates a transcoding engine.
func New() *Engine {
	return &Engine{MaxPixels: DefaultMaxPixels}
}

func (e *Engine) maxPixels() int {
	if e.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return e.MaxPixels
}

// Transcode decodes data, fits it within MaxWidth x MaxHeight without
// upscaling, and encodes it according to ext. Recognized extensions get the
// fixed quality setting; any other extension is re-encoded in the detected
// input container with encoder defaults. The output extension is ext.
func (e *Engine) Transcode(ctx context.Context, data []byte, ext string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(e.maxPixels()) {
		return nil, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrUnsupportedInput, cfg.Width, cfg.Height, e.maxPixels())
	}

	img, detected, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}

	resized := resize.Thumbnail(MaxWidth, MaxHeight, img, resize.Lanczos3)

	format, tuned := FormatForExtension(ext)
	if !tuned {
		format = detected
	}

	var buf bytes.Buffer
	if err := encode(&buf, resized, format, tuned); err != nil {
		return nil, err
	}

	bounds := resized.Bounds()
	return &Output{
		Data:      buf.Bytes(),
		Extension: ext,
		Format:    format,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// FormatForExtension maps a file extension to the format that receives the
// quality setting. The second result is false for unrecognized extensions.
func FormatForExtension(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	case ".avif":
		return FormatAVIF, true
	default:
		return "", false
	}
}

func encode(w io.Writer, img image.Image, format string, tuned bool) error {
	var err error
	switch format {
	case FormatJPEG:
		quality := jpeg.DefaultQuality
		if tuned {
			quality = Quality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		// PNG is lossless, the quality knob maps to compression effort.
		enc := png.Encoder{}
		if tuned {
			enc.CompressionLevel = png.BestCompression
		}
		err = enc.Encode(w, img)
	case FormatWebP:
		if tuned {
			err = webp.Encode(w, img, webp.Options{Quality: Quality, Method: 4})
		} else {
			err = webp.Encode(w, img)
		}
	case FormatAVIF:
		if tuned {
			err = avif.Encode(w, img, avif.Options{Quality: Quality, QualityAlpha: Quality, Speed: 8})
		} else {
			err = avif.Encode(w, img)
		}
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, nil)
	default:
		return fmt.Errorf("%w: no encoder for format %q", ErrUnsupportedInput, format)
	}

	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}
