package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"
)

// Standard 75% colour bars
var barColors = []color.RGBA{
	{191, 191, 191, 255},
	{191, 191, 0, 255},
	{0, 191, 191, 255},
	{0, 191, 0, 255},
	{191, 0, 191, 255},
	{191, 0, 0, 255},
	{0, 0, 191, 255},
}

// PatternSource generates scrolling colour bars, for running without
// camera hardware.
type PatternSource struct {
	width    int
	height   int
	interval time.Duration

	img    *image.RGBA
	offset int
	next   time.Time
}

func NewPatternSource(width, height, fps int) *PatternSource {
	return &PatternSource{
		width:    width,
		height:   height,
		interval: frameInterval(fps),
	}
}

func (s *PatternSource) Open() error {
	if s.width <= 0 || s.height <= 0 {
		return fmt.Errorf("invalid pattern size %dx%d", s.width, s.height)
	}
	s.img = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	s.offset = 0
	s.next = time.Time{}
	return nil
}

// Next returns the following frame, paced to the configured rate. The
// returned image is reused by the next call.
func (s *PatternSource) Next(ctx context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, fmt.Errorf("pattern source not open")
	}
	if wait := time.Until(s.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	s.next = time.Now().Add(s.interval)

	s.draw()
	s.offset = (s.offset + 4) % s.width
	return s.img, nil
}

func (s *PatternSource) draw() {
	barWidth := s.width / len(barColors)
	if barWidth == 0 {
		barWidth = 1
	}
	for x := 0; x < s.width; x++ {
		c := barColors[((x+s.offset)%s.width/barWidth)%len(barColors)]
		for y := 0; y < s.height; y++ {
			i := s.img.PixOffset(x, y)
			s.img.Pix[i+0] = c.R
			s.img.Pix[i+1] = c.G
			s.img.Pix[i+2] = c.B
			s.img.Pix[i+3] = c.A
		}
	}
}

func (s *PatternSource) Close() error {
	s.img = nil
	return nil
}
