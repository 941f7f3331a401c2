// Package imaging transcodes raw page captures into the requested output
// codec and dimensions.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	imglib "github.com/disintegration/imaging"
	webpenc "github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

var (
	// ErrUnsupportedFormat rejects unknown output format strings.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrEncodingFailed covers corrupt capture payloads and codec failures.
	// No partial output is ever returned alongside it.
	ErrEncodingFailed = errors.New("image encoding failed")
)

const (
	webpQuality = 80
	jpegQuality = 85
)

// Encoded is the final artifact of one capture.
type Encoded struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Encode decodes a raw capture, resizes it to exactly width x height when the
// captured viewport differs (the browser may clamp what we asked for), and
// re-encodes it in the requested codec. Requested dimensions are always
// authoritative.
func Encode(capture []byte, width, height int, format Format) (*Encoded, error) {
	if len(capture) == 0 {
		return nil, fmt.Errorf("%w: empty capture buffer", ErrEncodingFailed)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid target size %dx%d", ErrEncodingFailed, width, height)
	}

	img, err := imglib.Decode(bytes.NewReader(capture))
	if err != nil {
		return nil, fmt.Errorf("%w: decode capture: %v", ErrEncodingFailed, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = imglib.Resize(img, width, height, imglib.Lanczos)
	}

	data, err := encode(img, format)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncodingFailed)
	}

	return &Encoded{
		Data:        data,
		ContentType: format.ContentType(),
		Width:       width,
		Height:      height,
	}, nil
}

func encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatWebP:
		opts, err := webpenc.NewLossyEncoderOptions(webpenc.PresetDefault, webpQuality)
		if err != nil {
			return nil, fmt.Errorf("%w: webp options: %v", ErrEncodingFailed, err)
		}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrEncodingFailed, err)
		}
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncodingFailed, err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncodingFailed, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}
