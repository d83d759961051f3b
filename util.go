package texgen

import (
	"image"
	"math"
)

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

func rgb8At(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
