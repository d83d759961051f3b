package texgen

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestSRGBTransferContinuity(t *testing.T) {
	// Both branches of the piecewise transfer function must agree at the
	// split point.
	low := float64(0.04045) / 12.92
	high := math.Pow((0.04045+0.055)/1.055, 2.4)
	if diff := math.Abs(low - high); diff > 1e-5 {
		t.Fatalf("transfer function discontinuous at 0.04045: %g vs %g (diff %g)", low, high, diff)
	}
	if got := srgbInvOetf(0.04045); math.Abs(float64(got)-low) > 1e-6 {
		t.Fatalf("srgbInvOetf(0.04045) = %g, want %g", got, low)
	}
}

func TestSRGBTransferSamples(t *testing.T) {
	cases := []struct {
		in   float32
		want float64
	}{
		{in: 0.0, want: 0.0},
		{in: 0.5, want: 0.21404114},
		{in: 1.0, want: 1.0},
	}
	for _, tc := range cases {
		if got := srgbInvOetf(tc.in); math.Abs(float64(got)-tc.want) > 1e-5 {
			t.Errorf("srgbInvOetf(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func testPatternImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}) // pure white
	img.SetNRGBA(1, 0, color.NRGBA{R: 254, G: 254, B: 254, A: 255}) // near white
	img.SetNRGBA(2, 0, color.NRGBA{R: 255, G: 255, B: 254, A: 255}) // one channel off
	img.SetNRGBA(3, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})       // black
	img.SetNRGBA(0, 1, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	img.SetNRGBA(2, 1, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
	img.SetNRGBA(3, 1, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	return img
}

func TestPureWhiteMask(t *testing.T) {
	mask := PureWhiteMask(testPatternImage())
	want := []bool{true, false, false, false, false, false, false, false}
	if len(mask) != len(want) {
		t.Fatalf("mask has %d entries, want %d", len(mask), len(want))
	}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}

func TestToneMapSDRBoost(t *testing.T) {
	out, err := ToneMapSDR(testPatternImage())
	if err != nil {
		t.Fatal(err)
	}

	// Pure white: linear(1.0) = 1.0, boosted by 10.
	for c := 0; c < 3; c++ {
		if got := out.Planes[c][0]; got != 10.0 {
			t.Errorf("white pixel channel %d = %g, want 10", c, got)
		}
	}

	// Near-white must not be boosted: exact equality semantics.
	nearWhite := srgbInvOetf(254.0 / 255.0)
	for c := 0; c < 3; c++ {
		if got := out.Planes[c][1]; got != nearWhite {
			t.Errorf("near-white channel %d = %g, want %g", c, got, nearWhite)
		}
	}
	if got := out.Planes[0][2]; got != 1.0 {
		t.Errorf("off-white red channel = %g, want unboosted 1", got)
	}

	// Black stays zero.
	for c := 0; c < 3; c++ {
		if got := out.Planes[c][3]; got != 0 {
			t.Errorf("black channel %d = %g, want 0", c, got)
		}
	}

	// Single saturated channels are not pure white.
	if got := out.Planes[0][4]; got != 1.0 {
		t.Errorf("red pixel R = %g, want 1", got)
	}
	if got := out.Planes[1][4]; got != 0 {
		t.Errorf("red pixel G = %g, want 0", got)
	}
}

func TestToneMapSDRCustomBoost(t *testing.T) {
	out, err := ToneMapSDR(testPatternImage(), func(o *ToneMapOptions) { o.WhiteBoost = 4 })
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Planes[0][0]; got != 4.0 {
		t.Fatalf("white pixel = %g, want 4", got)
	}
}

func TestToneMapSDRShape(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	out, err := ToneMapSDR(img)
	if err != nil {
		t.Fatal(err)
	}
	if out.W != 7 || out.H != 5 {
		t.Fatalf("dimensions %dx%d, want 7x5", out.W, out.H)
	}
	for c := range out.Planes {
		if len(out.Planes[c]) != 35 {
			t.Fatalf("plane %d has %d samples, want 35", c, len(out.Planes[c]))
		}
	}
}

func TestToneMapSDRDeterministic(t *testing.T) {
	img := testPatternImage()
	a, err := ToneMapSDR(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ToneMapSDR(img)
	if err != nil {
		t.Fatal(err)
	}
	for c := range a.Planes {
		for i := range a.Planes[c] {
			if math.Float32bits(a.Planes[c][i]) != math.Float32bits(b.Planes[c][i]) {
				t.Fatalf("plane %d sample %d differs between runs", c, i)
			}
		}
	}
}

func TestToneMapSDREmptyImage(t *testing.T) {
	if _, err := ToneMapSDR(image.NewNRGBA(image.Rectangle{})); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func BenchmarkToneMapSDR(b *testing.B) {
	img := image.NewNRGBA(image.Rect(0, 0, 512, 512))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 31)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ToneMapSDR(img); err != nil {
			b.Fatal(err)
		}
	}
}
