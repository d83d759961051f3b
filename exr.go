package texgen

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const exrMagic = 20000630

// EXRCompression selects the scanline compression scheme.
type EXRCompression int

const (
	EXRCompressionNone EXRCompression = iota
	EXRCompressionZIPS                // zlib, one scanline per block
	EXRCompressionZIP                 // zlib, 16 scanlines per block
)

const (
	exrWireNone = 0
	exrWireZips = 2
	exrWireZip  = 3
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

// EXR channels are stored sorted by name, so B comes first on the wire even
// though the in-memory plane order is R, G, B.
var exrChannelOrder = [3]struct {
	name  string
	plane int
}{
	{name: "B", plane: 2},
	{name: "G", plane: 1},
	{name: "R", plane: 0},
}

// EncodeEXR writes p as a single-part scanline OpenEXR file with three
// float32 channels.
func EncodeEXR(w io.Writer, p *RadianceImage, compression EXRCompression) error {
	if p == nil || p.W <= 0 || p.H <= 0 {
		return errors.New("empty radiance image")
	}
	for c := range p.Planes {
		if len(p.Planes[c]) != p.W*p.H {
			return fmt.Errorf("channel %d has %d samples, want %d", c, len(p.Planes[c]), p.W*p.H)
		}
	}

	var wire byte
	blockLines := 1
	switch compression {
	case EXRCompressionNone:
		wire = exrWireNone
	case EXRCompressionZIPS:
		wire = exrWireZips
	case EXRCompressionZIP:
		wire = exrWireZip
		blockLines = 16
	default:
		return fmt.Errorf("unsupported EXR compression %d", compression)
	}

	var header bytes.Buffer
	writeU32(&header, exrMagic)
	writeU32(&header, 2) // version 2, no tiles, no multipart

	writeEXRChannels(&header)
	writeEXRAttr(&header, "compression", "compression", []byte{wire})

	var box [16]byte
	binary.LittleEndian.PutUint32(box[8:12], uint32(p.W-1))
	binary.LittleEndian.PutUint32(box[12:16], uint32(p.H-1))
	writeEXRAttr(&header, "dataWindow", "box2i", box[:])
	writeEXRAttr(&header, "displayWindow", "box2i", box[:])

	writeEXRAttr(&header, "lineOrder", "lineOrder", []byte{0}) // increasing Y

	var f4 [4]byte
	binary.LittleEndian.PutUint32(f4[:], math.Float32bits(1.0))
	writeEXRAttr(&header, "pixelAspectRatio", "float", f4[:])
	writeEXRAttr(&header, "screenWindowCenter", "v2f", make([]byte, 8))
	writeEXRAttr(&header, "screenWindowWidth", "float", f4[:])
	header.WriteByte(0) // end of header

	blockCount := (p.H + blockLines - 1) / blockLines
	blocks := make([][]byte, blockCount)
	for b := 0; b < blockCount; b++ {
		startY := b * blockLines
		lines := blockLines
		if startY+lines > p.H {
			lines = p.H - startY
		}
		raw := exrPackBlock(p, startY, lines)
		packed, err := exrCompress(wire, raw)
		if err != nil {
			return err
		}
		block := make([]byte, 8+len(packed))
		binary.LittleEndian.PutUint32(block[0:4], uint32(startY))
		binary.LittleEndian.PutUint32(block[4:8], uint32(len(packed)))
		copy(block[8:], packed)
		blocks[b] = block
	}

	// The offset table immediately follows the header and points at every
	// scanline block.
	offset := uint64(header.Len()) + uint64(8*blockCount)
	var table bytes.Buffer
	for _, block := range blocks {
		writeU64(&table, offset)
		offset += uint64(len(block))
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(table.Bytes()); err != nil {
		return err
	}
	for _, block := range blocks {
		if _, err := w.Write(block); err != nil {
			return err
		}
	}
	return nil
}

func writeEXRChannels(buf *bytes.Buffer) {
	var ch bytes.Buffer
	for _, c := range exrChannelOrder {
		ch.WriteString(c.name)
		ch.WriteByte(0)
		writeU32(&ch, exrPixelFloat)
		ch.Write([]byte{0, 0, 0, 0}) // pLinear + reserved
		writeU32(&ch, 1)             // xSampling
		writeU32(&ch, 1)             // ySampling
	}
	ch.WriteByte(0)
	writeEXRAttr(buf, "channels", "chlist", ch.Bytes())
}

func writeEXRAttr(buf *bytes.Buffer, name, typ string, payload []byte) {
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteString(typ)
	buf.WriteByte(0)
	writeU32(buf, uint32(len(payload)))
	buf.Write(payload)
}

// exrPackBlock lays out lines*3 scanlines of float32 samples, per line
// grouped by channel in wire order.
func exrPackBlock(p *RadianceImage, startY, lines int) []byte {
	out := make([]byte, lines*3*p.W*4)
	pos := 0
	for row := 0; row < lines; row++ {
		y := startY + row
		for _, c := range exrChannelOrder {
			plane := p.Planes[c.plane][y*p.W : (y+1)*p.W]
			for _, v := range plane {
				binary.LittleEndian.PutUint32(out[pos:pos+4], math.Float32bits(v))
				pos += 4
			}
		}
	}
	return out
}

func exrCompress(wire byte, raw []byte) ([]byte, error) {
	if wire == exrWireNone {
		return raw, nil
	}
	shuffled := shuffleBytes(raw)
	applyPredictor(shuffled)
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(shuffled); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	// The format stores whichever is smaller; keeping raw blocks also keeps
	// the decoder's size check happy for incompressible data.
	if buf.Len() >= len(raw) {
		return raw, nil
	}
	return buf.Bytes(), nil
}

// shuffleBytes splits even-indexed bytes into the first half of the output
// and odd-indexed bytes into the second, as the ZIP codecs expect.
func shuffleBytes(data []byte) []byte {
	n := len(data) / 2
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		out[i] = data[2*i]
		out[i+n] = data[2*i+1]
	}
	return out
}

func applyPredictor(data []byte) {
	for i := len(data) - 1; i >= 1; i-- {
		data[i] = byte(int(data[i]) - int(data[i-1]) + 128)
	}
}

func undoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

func unshuffleBytes(data []byte) []byte {
	n := len(data) / 2
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		out[2*i] = data[i]
		out[2*i+1] = data[i+n]
	}
	return out
}

const (
	exrPlaneSkip = -1 // channel carries no color data we keep
	exrPlaneLuma = 3  // Y channel, replicated into all three planes
)

type exrChannel struct {
	name      string
	pixelType int32
	plane     int // index into RadianceImage.Planes, or exrPlaneSkip/exrPlaneLuma
}

// DecodeEXR reads a single-part scanline OpenEXR file with R, G and B
// channels (half or float) into a planar RadianceImage. A luminance-only
// image with a Y channel is replicated into all three planes. NONE, ZIPS
// and ZIP compression are supported.
func DecodeEXR(data []byte) (*RadianceImage, error) {
	r := bytes.NewReader(data)
	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != exrMagic {
		return nil, errors.New("not an OpenEXR file")
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version&0x00000200 != 0 {
		return nil, errors.New("tiled OpenEXR not supported")
	}
	if version&0x00000C00 != 0 {
		return nil, errors.New("deep/multipart OpenEXR not supported")
	}

	var channels []exrChannel
	var dataWindow [4]int32
	var hasDataWindow bool
	var compression byte = exrWireNone

	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		typ, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		size, err := readU32(r)
		if err != nil {
			return nil, err
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}

		switch name {
		case "channels":
			if typ != "chlist" {
				return nil, errors.New("unexpected channels attribute type")
			}
			channels, err = parseEXRChannels(payload)
			if err != nil {
				return nil, err
			}
		case "dataWindow":
			if typ != "box2i" || len(payload) != 16 {
				return nil, errors.New("invalid dataWindow attribute")
			}
			for i := range dataWindow {
				dataWindow[i] = int32(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
			}
			hasDataWindow = true
		case "compression":
			if typ != "compression" || len(payload) < 1 {
				return nil, errors.New("invalid compression attribute")
			}
			compression = payload[0]
		case "tiles":
			return nil, errors.New("tiled OpenEXR not supported")
		}
	}

	if len(channels) == 0 {
		return nil, errors.New("OpenEXR missing channels")
	}
	mapped := false
	for _, ch := range channels {
		if ch.plane != exrPlaneSkip {
			mapped = true
			break
		}
	}
	if !mapped {
		return nil, errors.New("OpenEXR has no R, G, B or Y channel")
	}
	if !hasDataWindow {
		return nil, errors.New("OpenEXR missing dataWindow")
	}
	if compression != exrWireNone && compression != exrWireZips && compression != exrWireZip {
		return nil, fmt.Errorf("unsupported OpenEXR compression %d", compression)
	}

	width := int(dataWindow[2]-dataWindow[0]) + 1
	height := int(dataWindow[3]-dataWindow[1]) + 1
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid OpenEXR dimensions")
	}

	blockLines := 1
	if compression == exrWireZip {
		blockLines = 16
	}
	blockCount := (height + blockLines - 1) / blockLines
	offsets := make([]uint64, blockCount)
	for i := range offsets {
		if offsets[i], err = readU64(r); err != nil {
			return nil, err
		}
	}

	out := NewRadianceImage(width, height)
	baseY := int(dataWindow[1])
	for block := 0; block < blockCount; block++ {
		if offsets[block] == 0 {
			continue
		}
		if _, err := r.Seek(int64(offsets[block]), io.SeekStart); err != nil {
			return nil, err
		}
		y, err := readU32(r)
		if err != nil {
			return nil, err
		}
		dataSize, err := readU32(r)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, dataSize)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}

		startY := int(int32(y)) - baseY
		if startY < 0 || startY >= height {
			return nil, errors.New("OpenEXR scanline out of bounds")
		}
		lines := blockLines
		if startY+lines > height {
			lines = height - startY
		}

		expected := exrExpectedBlockBytes(width, lines, channels)
		unpacked, err := exrDecompress(compression, raw, expected)
		if err != nil {
			return nil, err
		}
		if err := exrDecodeBlock(out, channels, startY, width, lines, unpacked); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	var channels []exrChannel
	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		pixelType, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if pixelType != exrPixelHalf && pixelType != exrPixelFloat && pixelType != exrPixelUint {
			return nil, fmt.Errorf("unsupported OpenEXR pixel type %d", pixelType)
		}
		if _, err := r.Seek(4, io.SeekCurrent); err != nil { // pLinear + reserved
			return nil, err
		}
		xSampling, err := readU32(r)
		if err != nil {
			return nil, err
		}
		ySampling, err := readU32(r)
		if err != nil {
			return nil, err
		}
		if xSampling != 1 || ySampling != 1 {
			return nil, errors.New("OpenEXR subsampled channels are not supported")
		}
		plane := exrPlaneSkip
		switch name {
		case "R":
			plane = 0
		case "G":
			plane = 1
		case "B":
			plane = 2
		case "Y":
			plane = exrPlaneLuma
		}
		channels = append(channels, exrChannel{name: name, pixelType: int32(pixelType), plane: plane})
	}
	return channels, nil
}

func exrExpectedBlockBytes(width, lines int, channels []exrChannel) int {
	total := 0
	for _, ch := range channels {
		total += width * lines * exrBytesPerSample(ch.pixelType)
	}
	return total
}

func exrBytesPerSample(pixelType int32) int {
	if pixelType == exrPixelHalf {
		return 2
	}
	return 4
}

func exrDecompress(compression byte, data []byte, expected int) ([]byte, error) {
	if compression == exrWireNone {
		if len(data) != expected {
			return nil, errors.New("unexpected OpenEXR block size")
		}
		return data, nil
	}
	uncompressed, err := exrInflate(data, expected)
	if err != nil {
		// Writers store a block verbatim when zlib does not shrink it.
		if len(data) == expected {
			return data, nil
		}
		return nil, err
	}
	undoPredictor(uncompressed)
	return unshuffleBytes(uncompressed), nil
}

func exrInflate(data []byte, expected int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	uncompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if len(uncompressed) != expected {
		return nil, errors.New("unexpected OpenEXR decompressed size")
	}
	return uncompressed, nil
}

func exrDecodeBlock(dst *RadianceImage, channels []exrChannel, startY, width, lines int, data []byte) error {
	offset := 0
	for row := 0; row < lines; row++ {
		y := startY + row
		for _, ch := range channels {
			lineBytes := width * exrBytesPerSample(ch.pixelType)
			if offset+lineBytes > len(data) {
				return errors.New("OpenEXR block truncated")
			}
			line := data[offset : offset+lineBytes]
			offset += lineBytes
			if ch.plane == exrPlaneSkip {
				continue
			}
			for x := 0; x < width; x++ {
				var v float32
				switch ch.pixelType {
				case exrPixelHalf:
					v = halfToFloat32(binary.LittleEndian.Uint16(line[x*2 : x*2+2]))
				case exrPixelFloat:
					v = math.Float32frombits(binary.LittleEndian.Uint32(line[x*4 : x*4+4]))
				case exrPixelUint:
					v = float32(binary.LittleEndian.Uint32(line[x*4 : x*4+4]))
				}
				if ch.plane == exrPlaneLuma {
					dst.Planes[0][y*width+x] = v
					dst.Planes[1][y*width+x] = v
					dst.Planes[2][y*width+x] = v
					continue
				}
				dst.Planes[ch.plane][y*width+x] = v
			}
		}
	}
	return nil
}

func readNullString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	mant := int32(h & 0x03FF)

	if exp == 0 {
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03FF
	} else if exp == 31 {
		if mant == 0 {
			return math.Float32frombits((sign << 31) | 0x7F800000)
		}
		return math.Float32frombits((sign << 31) | 0x7F800000 | (uint32(mant) << 13))
	}

	exp = exp + (127 - 15)
	mant <<= 13
	bits := (sign << 31) | (uint32(exp) << 23) | uint32(mant)
	return math.Float32frombits(bits)
}
