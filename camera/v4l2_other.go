//go:build !linux

package camera

import (
	"context"
	"errors"
	"image"
)

var errV4L2Unsupported = errors.New("V4L2 capture is only available on Linux")

// V4L2Source is unavailable on this platform; use the mjpeg or pattern source
type V4L2Source struct{}

func NewV4L2Source(cfg Config, logger Logger) *V4L2Source {
	return &V4L2Source{}
}

func (s *V4L2Source) Open() error { return errV4L2Unsupported }

func (s *V4L2Source) Next(ctx context.Context) (image.Image, error) {
	return nil, errV4L2Unsupported
}

func (s *V4L2Source) Close() error { return nil }
