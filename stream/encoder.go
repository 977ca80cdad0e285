package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// Format selects the output container of an Encoder
type Format int

const (
	JPEG Format = iota
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Encoder compresses a raw frame. For JPEG quality is 1-100, for PNG it is
// read as a png.CompressionLevel.
type Encoder interface {
	Encode(img image.Image, format Format, quality int) ([]byte, error)
}

// ImageEncoder encodes frames with the standard image codecs.
type ImageEncoder struct {
	// StreamWidth downscales JPEG output wider than this many pixels, keeping
	// the aspect ratio. 0 keeps the capture size. PNG output is never scaled.
	StreamWidth int
}

func (e ImageEncoder) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("failed to encode %s: empty frame", format)
	}

	var buf bytes.Buffer
	switch format {
	case JPEG:
		if err := jpeg.Encode(&buf, e.scale(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case PNG:
		enc := png.Encoder{CompressionLevel: png.CompressionLevel(quality)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to encode: unsupported %s", format)
	}
	return buf.Bytes(), nil
}

// scale shrinks img to StreamWidth with a bilinear approximation, which
// is fast enough to run once per captured frame.
func (e ImageEncoder) scale(img image.Image) image.Image {
	b := img.Bounds()
	if e.StreamWidth <= 0 || b.Dx() <= e.StreamWidth {
		return img
	}
	h := b.Dy() * e.StreamWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, e.StreamWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
