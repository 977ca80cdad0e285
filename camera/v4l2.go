//go:build linux

package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/blackjack/webcam"
)

const (
	// Seconds to wait for a frame before checking for cancellation
	v4l2WaitTimeout = 1

	// Driver buffers; a few let capture continue while we decode
	v4l2BufferCount = 4

	// Consecutive timeouts before the device is reported as stalled
	v4l2MaxTimeouts = 5
)

// V4L2Source captures from a UVC or CSI device through the V4L2 API
type V4L2Source struct {
	cfg    Config
	logger Logger

	cam      *webcam.Webcam
	format   webcam.PixelFormat
	width    int
	height   int
	timeouts int
}

func NewV4L2Source(cfg Config, logger Logger) *V4L2Source {
	return &V4L2Source{cfg: cfg, logger: logger}
}

// Open configures the device. MJPEG is preferred since it saves USB
// bandwidth; YUYV is the fallback every UVC camera supports.
func (s *V4L2Source) Open() error {
	device := s.cfg.Device
	if device == "" {
		device = "/dev/video0"
	}

	cam, err := webcam.Open(device)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", device, err)
	}

	formats := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	switch {
	case hasFormat(formats, pixFmtMJPEG):
		format = pixFmtMJPEG
	case hasFormat(formats, pixFmtYUYV):
		format = pixFmtYUYV
	default:
		cam.Close()
		return fmt.Errorf("%s supports neither MJPEG nor YUYV", device)
	}

	f, w, h, err := cam.SetImageFormat(format, uint32(s.cfg.Width), uint32(s.cfg.Height))
	if err != nil {
		cam.Close()
		return fmt.Errorf("failed to set image format: %w", err)
	}
	if f != format {
		cam.Close()
		return fmt.Errorf("driver switched pixel format to %s", formats[f])
	}
	if int(w) != s.cfg.Width || int(h) != s.cfg.Height {
		s.logger.Warnf("%s: requested %dx%d, driver chose %dx%d", device, s.cfg.Width, s.cfg.Height, w, h)
	}

	if s.cfg.FPS > 0 {
		if err := cam.SetFramerate(float32(s.cfg.FPS)); err != nil {
			s.logger.Warnf("%s: failed to set frame rate %d: %v", device, s.cfg.FPS, err)
		}
	}

	if err := cam.SetBufferCount(v4l2BufferCount); err != nil {
		s.logger.Debugf("%s: failed to set buffer count: %v", device, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("failed to start streaming: %w", err)
	}

	s.cam = cam
	s.format = format
	s.width = int(w)
	s.height = int(h)
	s.timeouts = 0
	s.logger.Printf("Opened %s: %s %dx%d", device, formats[format], w, h)
	return nil
}

func (s *V4L2Source) Next(ctx context.Context) (image.Image, error) {
	if s.cam == nil {
		return nil, fmt.Errorf("device not open")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.cam.WaitForFrame(v4l2WaitTimeout)
		switch err.(type) {
		case nil:
			s.timeouts = 0
		case *webcam.Timeout:
			s.timeouts++
			if s.timeouts >= v4l2MaxTimeouts {
				s.timeouts = 0
				return nil, fmt.Errorf("no frame from %s for %ds", s.cfg.Device, v4l2WaitTimeout*v4l2MaxTimeouts)
			}
			continue
		default:
			return nil, fmt.Errorf("failed to wait for frame: %w", err)
		}

		frame, err := s.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		if len(frame) == 0 {
			return nil, ErrNoFrame
		}
		return s.decode(frame)
	}
}

func (s *V4L2Source) decode(frame []byte) (image.Image, error) {
	if s.format == pixFmtYUYV {
		return yuyvToYCbCr(frame, s.width, s.height)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode MJPEG frame: %w", err)
	}
	return img, nil
}

func (s *V4L2Source) Close() error {
	if s.cam == nil {
		return nil
	}
	if err := s.cam.StopStreaming(); err != nil {
		s.logger.Debugf("Failed to stop streaming: %v", err)
	}
	err := s.cam.Close()
	s.cam = nil
	return err
}

func hasFormat(formats map[webcam.PixelFormat]string, f webcam.PixelFormat) bool {
	_, ok := formats[f]
	return ok
}

var (
	pixFmtMJPEG = webcam.PixelFormat(fourCC("MJPG"))
	pixFmtYUYV  = webcam.PixelFormat(fourCC("YUYV"))
)

func fourCC(code string) uint32 {
	return uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
}
