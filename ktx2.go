package texgen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// ktx2Identifier is the fixed 12-byte file magic.
var ktx2Identifier = []byte{0xAB, 0x4B, 0x54, 0x58, 0x20, 0x32, 0x30, 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	vkFormatR32Sfloat          = 100
	vkFormatR32G32B32Sfloat    = 106
	vkFormatR32G32B32A32Sfloat = 109
)

const (
	ktx2SupercompressionNone = 0
	ktx2SupercompressionZstd = 2
)

// KTX2Format selects the pixel format of an uncompressed float KTX2 level.
type KTX2Format int

const (
	KTX2R32Float    KTX2Format = iota // red channel only
	KTX2RGB32Float                    // three channels
	KTX2RGBA32Float                   // three channels plus constant 1.0 alpha
)

// KTX2Options controls the KTX2 container writer.
type KTX2Options struct {
	Format KTX2Format
	// Zstd enables Zstandard supercompression of the level data.
	Zstd bool
	// Mips writes a full mip chain down to 1x1, each level a 2x2 box
	// reduction of the previous one.
	Mips bool
}

func (f KTX2Format) vkFormat() (vkFormat uint32, channels int, err error) {
	switch f {
	case KTX2R32Float:
		return vkFormatR32Sfloat, 1, nil
	case KTX2RGB32Float:
		return vkFormatR32G32B32Sfloat, 3, nil
	case KTX2RGBA32Float:
		return vkFormatR32G32B32A32Sfloat, 4, nil
	default:
		return 0, 0, fmt.Errorf("unsupported KTX2 format %d", f)
	}
}

// EncodeKTX2 writes p as a 2D single-layer KTX2 texture with 32-bit float
// texels.
func EncodeKTX2(w io.Writer, p *RadianceImage, optFns ...func(*KTX2Options)) error {
	var opt KTX2Options
	for _, fn := range optFns {
		fn(&opt)
	}
	if p == nil || p.W <= 0 || p.H <= 0 {
		return errors.New("empty radiance image")
	}
	vkFormat, channels, err := opt.Format.vkFormat()
	if err != nil {
		return err
	}
	texelSize := channels * 4

	levels := []*RadianceImage{p}
	if opt.Mips {
		for m := p; m.W > 1 || m.H > 1; {
			m = mipHalve(m)
			levels = append(levels, m)
		}
	}

	images := make([][]byte, len(levels))
	for i, lvl := range levels {
		images[i] = ktx2PackLevel(lvl, channels)
	}

	scheme := uint32(ktx2SupercompressionNone)
	stored := images
	if opt.Zstd {
		scheme = ktx2SupercompressionZstd
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		stored = make([][]byte, len(images))
		for i, img := range images {
			stored[i] = enc.EncodeAll(img, nil)
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}

	dfd := ktx2DataFormatDescriptor(channels, texelSize)

	const headerSize = 80
	levelIndexSize := 24 * len(levels)
	dfdOffset := headerSize + levelIndexSize

	// Level data goes smallest level first, each aligned for direct mapping.
	align := lcm(texelSize, 4)
	offsets := make([]uint64, len(levels))
	pos := dfdOffset + len(dfd)
	for i := len(levels) - 1; i >= 0; i-- {
		pos = alignUp(pos, align)
		offsets[i] = uint64(pos)
		pos += len(stored[i])
	}

	var buf bytes.Buffer
	buf.Write(ktx2Identifier)
	writeU32(&buf, vkFormat)
	writeU32(&buf, 4) // typeSize: 32-bit components
	writeU32(&buf, uint32(p.W))
	writeU32(&buf, uint32(p.H))
	writeU32(&buf, 0) // pixelDepth
	writeU32(&buf, 0) // layerCount
	writeU32(&buf, 1) // faceCount
	writeU32(&buf, uint32(len(levels)))
	writeU32(&buf, scheme)
	writeU32(&buf, uint32(dfdOffset))
	writeU32(&buf, uint32(len(dfd)))
	writeU32(&buf, 0) // kvdByteOffset: no key/value data
	writeU32(&buf, 0) // kvdByteLength
	writeU64(&buf, 0) // sgdByteOffset
	writeU64(&buf, 0) // sgdByteLength
	for i := range levels {
		writeU64(&buf, offsets[i])
		writeU64(&buf, uint64(len(stored[i])))
		writeU64(&buf, uint64(len(images[i])))
	}
	buf.Write(dfd)
	for i := len(levels) - 1; i >= 0; i-- {
		for uint64(buf.Len()) < offsets[i] {
			buf.WriteByte(0)
		}
		buf.Write(stored[i])
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// ktx2PackLevel interleaves the planar channels into row-major texels. The
// alpha channel, when present, is constant 1.0.
func ktx2PackLevel(p *RadianceImage, channels int) []byte {
	out := make([]byte, p.W*p.H*channels*4)
	pos := 0
	one := math.Float32bits(1.0)
	for i := 0; i < p.W*p.H; i++ {
		for c := 0; c < channels; c++ {
			v := one
			if c < 3 {
				v = math.Float32bits(p.Planes[c][i])
			}
			binary.LittleEndian.PutUint32(out[pos:pos+4], v)
			pos += 4
		}
	}
	return out
}

// ktx2DataFormatDescriptor builds the basic DFD block for linear SFLOAT
// texels.
func ktx2DataFormatDescriptor(channels, texelSize int) []byte {
	blockSize := 24 + 16*channels
	var buf bytes.Buffer
	writeU32(&buf, uint32(4+blockSize)) // dfdTotalSize
	writeU32(&buf, 0)                   // vendorId 0, descriptorType 0
	buf.WriteByte(2)                    // versionNumber lo
	buf.WriteByte(0)                    // versionNumber hi
	buf.WriteByte(byte(blockSize))      // descriptorBlockSize lo
	buf.WriteByte(byte(blockSize >> 8)) // descriptorBlockSize hi
	buf.WriteByte(1)                    // colorModel: RGBSDA
	buf.WriteByte(1)                    // colorPrimaries: BT709
	buf.WriteByte(1)                    // transferFunction: linear
	buf.WriteByte(0)                    // flags
	buf.Write([]byte{0, 0, 0, 0})       // texelBlockDimension0..3
	planes := [8]byte{}
	planes[0] = byte(texelSize)
	buf.Write(planes[:]) // bytesPlane0..7

	channelIDs := [4]byte{0, 1, 2, 15} // R, G, B, A
	for c := 0; c < channels; c++ {
		bitOffset := uint16(c * 32)
		buf.WriteByte(byte(bitOffset))
		buf.WriteByte(byte(bitOffset >> 8))
		buf.WriteByte(31)                    // bitLength - 1
		buf.WriteByte(0xC0 | channelIDs[c])  // signed float qualifier
		buf.Write([]byte{0, 0, 0, 0})        // samplePosition0..3
		writeU32(&buf, math.Float32bits(-1)) // sampleLower
		writeU32(&buf, math.Float32bits(1))  // sampleUpper
	}
	return buf.Bytes()
}

// mipHalve reduces each dimension by half (minimum 1) with a 2x2 box filter
// on the linear float planes.
func mipHalve(p *RadianceImage) *RadianceImage {
	w := p.W / 2
	if w < 1 {
		w = 1
	}
	h := p.H / 2
	if h < 1 {
		h = 1
	}
	out := NewRadianceImage(w, h)
	for c := range p.Planes {
		src := p.Planes[c]
		dst := out.Planes[c]
		for y := 0; y < h; y++ {
			y0 := y * 2
			y1 := y0 + 1
			if y1 >= p.H {
				y1 = y0
			}
			for x := 0; x < w; x++ {
				x0 := x * 2
				x1 := x0 + 1
				if x1 >= p.W {
					x1 = x0
				}
				sum := src[y0*p.W+x0] + src[y0*p.W+x1] + src[y1*p.W+x0] + src[y1*p.W+x1]
				dst[y*w+x] = sum / 4
			}
		}
	}
	return out
}

func alignUp(v, align int) int {
	if r := v % align; r != 0 {
		return v + align - r
	}
	return v
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
