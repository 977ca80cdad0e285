package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

const (
	// Errors are logged at most this often
	errorLogInterval = 5 * time.Second

	// Pause after a failed capture before retrying
	captureRetryDelay = 100 * time.Millisecond

	// Log capture progress every this many frames
	captureLogInterval = 300
)

// Sink receives captured frames, typically the stream server
type Sink interface {
	UpdateFrame(img image.Image)
}

// Options for Run
type Options struct {
	// Overlay stamps the capture time on each frame when set
	Overlay *Overlay
}

// Run opens src and forwards every frame to sink until ctx is cancelled.
// Capture errors are logged and retried; they never reach the sink.
func Run(ctx context.Context, src Source, sink Sink, logger Logger, opts Options) error {
	if err := src.Open(); err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warnf("Failed to close frame source: %v", err)
		}
	}()

	var (
		lastErrorTime time.Time
		frames        uint64
	)
	for {
		img, err := src.Next(ctx)
		if ctx.Err() != nil {
			logger.Debugf("Capture stopped after %d frames", frames)
			return nil
		}
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		if err != nil {
			if time.Since(lastErrorTime) > errorLogInterval {
				logger.Warnf("Capture error: %v", err)
				lastErrorTime = time.Now()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(captureRetryDelay):
			}
			continue
		}

		if opts.Overlay != nil {
			img = opts.Overlay.Apply(img, time.Now())
		}
		sink.UpdateFrame(img)

		frames++
		if frames%captureLogInterval == 0 {
			logger.Debugf("Captured %d frames", frames)
		}
	}
}
