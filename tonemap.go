package texgen

import (
	"errors"
	"image"
)

// PureWhiteMask returns one bool per pixel in row-major order, true where all
// three source channels are exactly the maximum representable sRGB value.
// Equality is exact: a 254/255 near-white pixel does not qualify.
func PureWhiteMask(img image.Image) []bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8At(img, x, y)
			mask[y*w+x] = r == maxSample && g == maxSample && bl == maxSample
		}
	}
	return mask
}

// ToneMapSDR converts an 8-bit sRGB image to linear radiance and boosts the
// exposure of pixels that were saturated white in the source. The conversion
// is the piecewise sRGB transfer function applied elementwise; the boost is a
// plain multiplier on all three channels of mask-flagged pixels. The result
// is planar float32, deterministic for identical inputs.
func ToneMapSDR(img image.Image, optFns ...func(*ToneMapOptions)) (*RadianceImage, error) {
	opt := ToneMapOptions{WhiteBoost: defaultWhiteBoost}
	for _, fn := range optFns {
		fn(&opt)
	}
	if opt.WhiteBoost <= 0 {
		opt.WhiteBoost = defaultWhiteBoost
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.New("empty source image")
	}

	mask := PureWhiteMask(img)
	out := NewRadianceImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r8, g8, b8 := rgb8At(img, x, y)
			r := srgbInvOetf(float32(r8) / maxSample)
			g := srgbInvOetf(float32(g8) / maxSample)
			bl := srgbInvOetf(float32(b8) / maxSample)
			if mask[y*w+x] {
				r *= opt.WhiteBoost
				g *= opt.WhiteBoost
				bl *= opt.WhiteBoost
			}
			out.set(x, y, r, g, bl)
		}
	}
	return out, nil
}
