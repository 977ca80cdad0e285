package stream

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
)

type testLogger struct {
	t *testing.T
}

func (l testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }
func (l testLogger) Debugf(format string, v ...interface{}) { l.t.Logf("[DEBUG] "+format, v...) }
func (l testLogger) Warnf(format string, v ...interface{}) { l.t.Logf("[WARN] "+format, v...) }
func (l testLogger) Errorf(format string, v ...interface{}) { l.t.Logf("[ERROR] "+format, v...) }
func (l testLogger) Fatalf(format string, v ...interface{}) { l.t.Fatalf(format, v...) }

// counterEncoder returns "frame-<n>" for the n-th successful JPEG encode, so
// with a single producer the payload mirrors the store's frame id.
type counterEncoder struct {
	n    atomic.Uint64
	fail atomic.Bool
	mu   sync.Mutex
	pngs int
}

func (e *counterEncoder) Encode(img image.Image, format Format, quality int) ([]byte, error) {
	if e.fail.Load() {
		return nil, errors.New("encoder broken")
	}
	if format == PNG {
		e.mu.Lock()
		e.pngs++
		e.mu.Unlock()
		return ImageEncoder{}.Encode(img, format, quality)
	}
	return []byte(fmt.Sprintf("frame-%d", e.n.Add(1))), nil
}

func testImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
