package camera

import (
	"fmt"
	"image"
)

// yuyvToYCbCr wraps a packed YUYV 4:2:2 buffer (Y0 U Y1 V per pixel pair)
// into a planar image. The data is copied, so buf may be reused afterwards.
func yuyvToYCbCr(buf []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid YUYV frame size %dx%d", width, height)
	}
	if need := width * height * 2; len(buf) < need {
		return nil, fmt.Errorf("short YUYV frame: got %d bytes, want %d", len(buf), need)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := buf[y*width*2 : (y+1)*width*2]
		yi := y * img.YStride
		ci := y * img.CStride
		for x := 0; x < width; x += 2 {
			p := row[x*2 : x*2+4]
			img.Y[yi+x] = p[0]
			img.Y[yi+x+1] = p[2]
			img.Cb[ci+x/2] = p[1]
			img.Cr[ci+x/2] = p[3]
		}
	}
	return img, nil
}
