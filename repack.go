package texgen

import "image"

// forceAlpha returns an NRGBA copy of img with a fully opaque alpha channel,
// for encoders that require four channels.
func forceAlpha(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8At(img, x, y)
			i := out.PixOffset(x, y)
			out.Pix[i] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = bl
			out.Pix[i+3] = 0xFF
		}
	}
	return out
}

// swapRB swaps the red and blue samples of every pixel in place, for
// containers that store BGR(A) byte order.
func swapRB(img *image.NRGBA) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
	}
}
