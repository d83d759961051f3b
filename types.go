package texgen

import (
	"image"
	"image/color"

	"github.com/mdouchement/hdr/hdrcolor"
)

// RadianceImage stores a linear-light HDR image as three planar float32
// channels in R, G, B order. Each plane holds W*H samples in row-major order.
// Planar layout matches what the per-channel HDR containers (OpenEXR, KTX2)
// consume directly.
type RadianceImage struct {
	W, H   int
	Planes [3][]float32
}

// NewRadianceImage allocates a zeroed planar image of the given size.
func NewRadianceImage(w, h int) *RadianceImage {
	p := &RadianceImage{W: w, H: h}
	for c := range p.Planes {
		p.Planes[c] = make([]float32, w*h)
	}
	return p
}

func (p *RadianceImage) set(x, y int, r, g, b float32) {
	i := y*p.W + x
	p.Planes[0][i] = r
	p.Planes[1][i] = g
	p.Planes[2][i] = b
}

func (p *RadianceImage) at(x, y int) (float32, float32, float32) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= p.W {
		x = p.W - 1
	}
	if y >= p.H {
		y = p.H - 1
	}
	i := y*p.W + x
	return p.Planes[0][i], p.Planes[1][i], p.Planes[2][i]
}

// ColorModel implements image.Image.
func (p *RadianceImage) ColorModel() color.Model { return hdrcolor.RGBModel }

// Bounds implements image.Image.
func (p *RadianceImage) Bounds() image.Rectangle { return image.Rect(0, 0, p.W, p.H) }

// At implements image.Image.
func (p *RadianceImage) At(x, y int) color.Color { return p.HDRAt(x, y) }

// HDRAt implements hdr.Image so that RGBE and other radiance codecs can
// consume the buffer without conversion.
func (p *RadianceImage) HDRAt(x, y int) hdrcolor.Color {
	r, g, b := p.at(x, y)
	return hdrcolor.RGB{R: float64(r), G: float64(g), B: float64(b)}
}

// Size implements hdr.Image.
func (p *RadianceImage) Size() int { return p.W * p.H }

// ToneMapOptions controls the SDR to HDR tone mapping step.
type ToneMapOptions struct {
	// WhiteBoost multiplies the linear value of pixels that were saturated
	// white in the 8-bit source. Defaults to 10.
	WhiteBoost float32
}

// ExportResult reports the outcome of a single format export.
type ExportResult struct {
	Format  string
	Path    string // empty when skipped or failed
	Skipped bool   // format requires an external encoder
	Err     error  // encode failure, or the reason for a skip
}

// ExportOptions controls a texture export batch.
type ExportOptions struct {
	// Formats restricts the batch to the listed format keys. Empty means all.
	Formats []string
	// WhiteBoost is passed through to the tone mapper.
	WhiteBoost float32
	// OnResult, if set, is invoked after each format attempt.
	OnResult func(res ExportResult)
}
