package texgen

import (
	"bytes"
	"errors"
	"image"
	"io"
)

const (
	ddsHeaderSize = 124
	ddsPixfmtSize = 32

	ddsFlagCaps        = 0x1
	ddsFlagHeight      = 0x2
	ddsFlagWidth       = 0x4
	ddsFlagPitch       = 0x8
	ddsFlagPixelFormat = 0x1000

	ddsPixfmtAlphaPixels = 0x1
	ddsPixfmtRGB         = 0x40

	ddsCapsTexture = 0x1000
)

// EncodeDDS writes img as an uncompressed 32-bit A8R8G8B8 DDS texture.
// That layout is BGRA in memory, so the pixels are repacked with a forced
// opaque alpha channel and swapped red/blue order before the raw dump.
func EncodeDDS(w io.Writer, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return errors.New("empty source image")
	}

	px := forceAlpha(img)
	swapRB(px)

	var buf bytes.Buffer
	buf.WriteString("DDS ")
	writeU32(&buf, ddsHeaderSize)
	writeU32(&buf, ddsFlagCaps|ddsFlagHeight|ddsFlagWidth|ddsFlagPitch|ddsFlagPixelFormat)
	writeU32(&buf, uint32(height))
	writeU32(&buf, uint32(width))
	writeU32(&buf, uint32(width*4)) // pitch
	writeU32(&buf, 0)               // depth
	writeU32(&buf, 0)               // mipMapCount
	for i := 0; i < 11; i++ {       // reserved
		writeU32(&buf, 0)
	}
	writeU32(&buf, ddsPixfmtSize)
	writeU32(&buf, ddsPixfmtRGB|ddsPixfmtAlphaPixels)
	writeU32(&buf, 0)  // fourCC
	writeU32(&buf, 32) // RGB bit count
	writeU32(&buf, 0x00FF0000)
	writeU32(&buf, 0x0000FF00)
	writeU32(&buf, 0x000000FF)
	writeU32(&buf, 0xFF000000)
	writeU32(&buf, ddsCapsTexture)
	for i := 0; i < 4; i++ { // caps2..4 + reserved
		writeU32(&buf, 0)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	for y := 0; y < height; y++ {
		row := px.Pix[y*px.Stride : y*px.Stride+width*4]
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
