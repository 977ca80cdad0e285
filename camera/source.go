package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNoFrame is returned by Source.Next when nothing new was captured yet.
// Callers should simply try again.
var ErrNoFrame = errors.New("no new frame")

// Source produces raw frames. Next blocks until a frame is available or ctx
// ends. Frames may share memory with the source and are only valid until
// the next call to Next.
type Source interface {
	Open() error
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Config describes the capture device
type Config struct {
	Device string
	Width  int
	Height int
	FPS    int
}

// Source kinds accepted by NewSource
const (
	SourceV4L2    = "v4l2"
	SourceMJPEG   = "mjpeg"
	SourcePattern = "pattern"
)

// NewSource builds the source named by kind. mjpegPath is only used by the
// mjpeg source.
func NewSource(kind string, cfg Config, mjpegPath string, logger Logger) (Source, error) {
	switch kind {
	case SourceV4L2:
		return NewV4L2Source(cfg, logger), nil
	case SourceMJPEG:
		return NewMJPEGFileSource(mjpegPath, cfg.FPS, logger), nil
	case SourcePattern:
		return NewPatternSource(cfg.Width, cfg.Height, cfg.FPS), nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

// frameInterval converts fps into a poll period, falling back to 10 Hz
func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 10
	}
	return time.Second / time.Duration(fps)
}
