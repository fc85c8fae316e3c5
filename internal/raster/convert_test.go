package raster

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"
)

func TestGrayscaleLuma(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}) // white
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})       // black
	src.SetNRGBA(2, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})     // red
	src.SetNRGBA(3, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 0})      // transparent

	gray := Grayscale(src)

	if got := gray.GrayAt(0, 0).Y; got != 255 {
		t.Errorf("white -> %d, want 255", got)
	}
	if got := gray.GrayAt(1, 0).Y; got != 0 {
		t.Errorf("black -> %d, want 0", got)
	}
	// Rec. 601: pure red is 0.299 * 255 ≈ 76.
	if got := gray.GrayAt(2, 0).Y; got < 74 || got > 78 {
		t.Errorf("red -> %d, want ~76", got)
	}
	if got := gray.GrayAt(3, 0).Y; got != 255 {
		t.Errorf("transparent -> %d, want 255 (paper white)", got)
	}
}

func TestGrayscaleNonNRGBA(t *testing.T) {
	src := image.NewRGBA(image.Rect(2, 3, 6, 5)) // non-zero origin on purpose
	src.Set(2, 3, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.Set(5, 4, color.RGBA{A: 255})

	gray := Grayscale(src)
	if gray.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatalf("bounds = %v", gray.Bounds())
	}
	if gray.GrayAt(0, 0).Y != 255 {
		t.Error("origin pixel should be white")
	}
	if gray.GrayAt(3, 1).Y != 0 {
		t.Error("far pixel should be black")
	}
}

func TestThreshold(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.Pix[0] = 10
	img.Pix[1] = 127
	img.Pix[2] = 128

	Threshold(img, 128)

	want := []uint8{0, 0, 255}
	for i, w := range want {
		if img.Pix[i] != w {
			t.Errorf("pix[%d] = %d, want %d", i, img.Pix[i], w)
		}
	}
}

func TestGrayscaleEncodesAsBMP(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, Grayscale(src)); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}

	out := buf.Bytes()
	if len(out) < 2 || out[0] != 'B' || out[1] != 'M' {
		t.Fatalf("missing BMP magic, got % x", out[:2])
	}

	decoded, err := bmp.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("bmp decode: %v", err)
	}
	if decoded.Bounds().Dx() != 8 || decoded.Bounds().Dy() != 8 {
		t.Errorf("decoded bounds = %v", decoded.Bounds())
	}
}

func TestNewPipelineDefaults(t *testing.T) {
	p := NewPipeline(Options{})
	if p.opts.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", p.opts.Timeout)
	}
	if p.opts.SettleDelay != DefaultSettleDelay {
		t.Errorf("SettleDelay = %v", p.opts.SettleDelay)
	}
	if p.opts.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %v", p.opts.MaxConcurrent)
	}
}
