package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
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

func encodeTestJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}
