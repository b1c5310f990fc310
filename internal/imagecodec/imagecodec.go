// Package imagecodec turns a text-encoded image payload into an
// uncompressed RGBA pixel buffer.
//
// Decoding happens in two independent steps so callers can keep the raw
// container bytes even when the raster parse fails:
//
//	DecodeText  base64 (optionally a data: URL) → container bytes
//	Decode      container bytes → Image
//
// PNG, JPEG and GIF come from the standard library; BMP, TIFF and WebP are
// registered from golang.org/x/image.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMIME is declared for payloads whose container could not be identified.
const DefaultMIME = "image/png"

// MaxPixelBytes bounds the decoded RGBA buffer. Containers whose header
// declares a larger image are rejected before any pixels are allocated.
const MaxPixelBytes = 256 << 20

// ErrTooLarge is wrapped by a KindFormat DecodeError for oversized images.
var ErrTooLarge = errors.New("image dimensions exceed limit")

// Kind classifies a DecodeError.
type Kind string

const (
	KindEncoding Kind = "encoding"
	KindFormat   Kind = "format"
)

// DecodeError reports why an encoded image could not be decoded.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindEncoding:
		return fmt.Sprintf("failed to decode base64: %v", e.Err)
	default:
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Image is a decoded raster: 4 bytes per pixel, row-major, straight
// (non-premultiplied) RGBA. len(Pixels) == Width*Height*4.
type Image struct {
	Width  int
	Height int
	Pixels []byte
	// Format is the container name reported by the registered decoder
	// ("png", "jpeg", ...).
	Format string
}

// MIME returns the media type of the container the image was decoded from.
func (img *Image) MIME() string {
	if img == nil || img.Format == "" {
		return DefaultMIME
	}
	return "image/" + img.Format
}

// NRGBA wraps the pixel buffer as an *image.NRGBA without copying.
func (img *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}

// DecodeText reverses the text encoding of s. A leading data URL header
// ("data:image/png;base64,") is stripped first.
func DecodeText(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, &DecodeError{Kind: KindEncoding, Err: errors.New("data URL is not base64")}
		}
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Kind: KindEncoding, Err: err}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Kind: KindEncoding, Err: errors.New("empty payload")}
	}
	return raw, nil
}

// Decode parses raw as a raster image container and materialises its pixels.
// No resizing, colour-space conversion or premultiplication is applied.
func Decode(raw []byte) (*Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Kind: KindFormat, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height)*4 > MaxPixelBytes {
		return nil, &DecodeError{Kind: KindFormat, Err: fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)}
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Kind: KindFormat, Err: err}
	}
	b := src.Bounds()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
	}
	return &Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: nrgba.Pix[:b.Dx()*b.Dy()*4],
		Format: format,
	}, nil
}

// DecodeString runs DecodeText then Decode.
func DecodeString(s string) (*Image, error) {
	raw, err := DecodeText(s)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
