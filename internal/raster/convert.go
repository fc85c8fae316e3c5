package raster

import (
	"image"
	"image/color"
)

// monoCutoff splits luma into ink and paper for 1-bit output. Empirical:
// text stems stay solid while light gray backgrounds drop to white.
const monoCutoff = 128

// Grayscale converts any image into 8-bit grayscale using perceptual luma
// weights. The fast path reads NRGBA pixels straight from the backing slice.
func Grayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			rowOff := y * n.Stride
			for x := 0; x < b.Dx(); x++ {
				i := rowOff + x*4
				dst.Pix[y*dst.Stride+x] = luma(n.Pix[i], n.Pix[i+1], n.Pix[i+2], n.Pix[i+3])
			}
		}
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: luma(c.R, c.G, c.B, c.A)})
		}
	}
	return dst
}

// luma computes perceptual brightness (Rec. 601 weights). Transparent and
// semi-transparent pixels count as paper white, matching how the panel
// shows nothing there.
func luma(r, g, b, a uint8) uint8 {
	if a < 128 {
		return 255
	}
	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if y > 255 {
		y = 255
	}
	return uint8(y)
}

// Threshold binarizes a grayscale image in place: luma below cutoff becomes
// full black, everything else full white.
func Threshold(img *image.Gray, cutoff uint8) {
	for i, v := range img.Pix {
		if v < cutoff {
			img.Pix[i] = 0
		} else {
			img.Pix[i] = 255
		}
	}
}
