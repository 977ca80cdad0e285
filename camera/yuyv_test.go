package camera

import "testing"

func TestYUYVToYCbCr(t *testing.T) {
	img, err := yuyvToYCbCr([]byte{10, 100, 20, 200}, 2, 1)
	if err != nil {
		t.Fatalf("yuyvToYCbCr() error = %v", err)
	}

	if img.Y[0] != 10 || img.Y[1] != 20 {
		t.Errorf("Y = %v, want [10 20]", img.Y[:2])
	}
	if img.Cb[0] != 100 {
		t.Errorf("Cb = %d, want 100", img.Cb[0])
	}
	if img.Cr[0] != 200 {
		t.Errorf("Cr = %d, want 200", img.Cr[0])
	}
}

func TestYUYVToYCbCrRows(t *testing.T) {
	buf := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		11, 12, 13, 14, 15, 16, 17, 18,
	}
	img, err := yuyvToYCbCr(buf, 4, 2)
	if err != nil {
		t.Fatalf("yuyvToYCbCr() error = %v", err)
	}

	c := img.YCbCrAt(3, 1)
	if c.Y != 17 || c.Cb != 16 || c.Cr != 18 {
		t.Errorf("pixel (3,1) = %+v, want Y=17 Cb=16 Cr=18", c)
	}

	// Source buffer reuse must not show through
	buf[0] = 99
	if img.Y[0] != 1 {
		t.Errorf("Y[0] = %d after source reuse, want 1", img.Y[0])
	}
}

func TestYUYVToYCbCrInvalid(t *testing.T) {
	tests := []struct {
		name          string
		buf           []byte
		width, height int
	}{
		{"odd width", make([]byte, 6), 3, 1},
		{"zero size", nil, 0, 0},
		{"short buffer", make([]byte, 7), 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := yuyvToYCbCr(tt.buf, tt.width, tt.height); err == nil {
				t.Error("yuyvToYCbCr() error = nil, want error")
			}
		})
	}
}
