package camera

import (
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const overlayPadding = 4

// Overlay stamps the capture time in the top left corner of a frame
type Overlay struct {
	// Layout is a time.Format layout, UTC is always used
	Layout string
}

func NewOverlay() *Overlay {
	return &Overlay{Layout: "2006-01-02 15:04:05 (UTC)"}
}

// Apply returns a copy of img with the timestamp drawn on a dark box
func (o *Overlay) Apply(img image.Image, t time.Time) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	text := t.UTC().Format(o.Layout)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()

	box := image.Rect(0, 0, width+2*overlayPadding, height+2*overlayPadding).Add(b.Min).Intersect(b)
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d.Dot = fixed.P(b.Min.X+overlayPadding, b.Min.Y+overlayPadding+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
	return dst
}
