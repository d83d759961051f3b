package texgen

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	ico "github.com/Kodeworks/golang-image-ico"
	"github.com/chai2010/webp"
	"github.com/ftrvxmtrx/tga"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/nfnt/resize"
	"github.com/spakin/netpbm"
	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// FormatInfo describes one entry of the export table.
type FormatInfo struct {
	Key string
	Ext string
	// External names the external encoder binary a format would need.
	// Non-empty means the format is skipped with a message.
	External string
}

type exportFormat struct {
	key       string
	ext       string
	external  string
	encode    func(w io.Writer, img image.Image) error
	encodeHDR func(w io.Writer, p *RadianceImage) error
}

// exportTable lists every target format. LDR entries re-encode the decoded
// source pixels; HDR entries consume the tone-mapped radiance buffer. The
// GPU-compressed variants need encoder binaries this tool does not embed, so
// they are reported as skipped.
var exportTable = []exportFormat{
	{key: "png", ext: "png", encode: func(w io.Writer, img image.Image) error {
		return png.Encode(w, img)
	}},
	{key: "bmp", ext: "bmp", encode: bmp.Encode},
	{key: "dds", ext: "dds", encode: EncodeDDS},
	{key: "gif", ext: "gif", encode: func(w io.Writer, img image.Image) error {
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	}},
	{key: "ico", ext: "ico", encode: encodeICO},
	{key: "jpg", ext: "jpg", encode: func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	}},
	{key: "ppm", ext: "ppm", encode: func(w io.Writer, img image.Image) error {
		return netpbm.Encode(w, img, &netpbm.EncodeOptions{Format: netpbm.PPM, MaxValue: maxSample})
	}},
	{key: "pam", ext: "pam", encode: func(w io.Writer, img image.Image) error {
		// PAM is written as RGB_ALPHA, which needs the forced fourth channel.
		return netpbm.Encode(w, forceAlpha(img), &netpbm.EncodeOptions{Format: netpbm.PAM, MaxValue: maxSample})
	}},
	{key: "qoi", ext: "qoi", encode: qoi.Encode},
	{key: "tif", ext: "tif", encode: func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}},
	{key: "tga", ext: "tga", encode: tga.Encode},
	{key: "webp", ext: "webp", encode: func(w io.Writer, img image.Image) error {
		return webp.Encode(w, img, &webp.Options{Lossless: true})
	}},

	{key: "exr", ext: "exr", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeEXR(w, p, EXRCompressionZIP)
	}},
	{key: "hdr", ext: "hdr", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return rgbe.Encode(w, p)
	}},
	{key: "ktx2-r32", ext: "ktx2", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeKTX2(w, p, func(o *KTX2Options) { o.Format = KTX2R32Float })
	}},
	{key: "ktx2-rgb32", ext: "ktx2", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeKTX2(w, p, func(o *KTX2Options) { o.Format = KTX2RGB32Float })
	}},
	{key: "ktx2-rgba32", ext: "ktx2", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeKTX2(w, p, func(o *KTX2Options) { o.Format = KTX2RGBA32Float })
	}},
	{key: "ktx2-zstd-rgba32", ext: "ktx2", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeKTX2(w, p, func(o *KTX2Options) { o.Format = KTX2RGBA32Float; o.Zstd = true })
	}},
	{key: "ktx2-rgba32-mips", ext: "ktx2", encodeHDR: func(w io.Writer, p *RadianceImage) error {
		return EncodeKTX2(w, p, func(o *KTX2Options) { o.Format = KTX2RGBA32Float; o.Mips = true })
	}},

	{key: "ktx2-astc", ext: "ktx2", external: "toktx"},
	{key: "ktx2-etc1s", ext: "ktx2", external: "toktx"},
	{key: "ktx2-uastc", ext: "ktx2", external: "toktx"},
	{key: "basis-etc1s", ext: "basis", external: "basisu"},
	{key: "basis-uastc", ext: "basis", external: "basisu"},
}

// Formats lists every known format key in export order.
func Formats() []FormatInfo {
	out := make([]FormatInfo, 0, len(exportTable))
	for _, f := range exportTable {
		out = append(out, FormatInfo{Key: f.key, Ext: f.ext, External: f.external})
	}
	return out
}

func encodeICO(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Dx() > maxICOSide || b.Dy() > maxICOSide {
		img = resize.Thumbnail(maxICOSide, maxICOSide, img, resize.Lanczos3)
	}
	// The icon directory stores 32-bit entries, so alpha is mandatory.
	return ico.Encode(w, forceAlpha(img))
}

// ExportTextures writes img to outDir once per requested format. Formats are
// attempted independently: a failed or skipped format never prevents the
// remaining ones, and each outcome is reported as one ExportResult. The tone
// mapper runs once and its output is shared by all HDR formats.
//
// The returned error is non-nil only for failures that affect every format:
// an unknown format key, an unusable output directory, or a degenerate
// source image.
func ExportTextures(img image.Image, outDir string, optFns ...func(*ExportOptions)) ([]ExportResult, error) {
	opt := ExportOptions{WhiteBoost: defaultWhiteBoost}
	for _, fn := range optFns {
		fn(&opt)
	}

	formats, err := selectFormats(opt.Formats)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var radiance *RadianceImage
	for _, f := range formats {
		if f.encodeHDR == nil {
			continue
		}
		radiance, err = ToneMapSDR(img, func(o *ToneMapOptions) { o.WhiteBoost = opt.WhiteBoost })
		if err != nil {
			return nil, err
		}
		break
	}

	results := make([]ExportResult, 0, len(formats))
	for _, f := range formats {
		res := ExportResult{Format: f.key}
		switch {
		case f.external != "":
			res.Skipped = true
			res.Err = fmt.Errorf("requires external encoder %q", f.external)
		default:
			path := filepath.Join(outDir, f.key+"."+f.ext)
			err := writeFile(path, func(w io.Writer) error {
				if f.encodeHDR != nil {
					return f.encodeHDR(w, radiance)
				}
				return f.encode(w, img)
			})
			if err != nil {
				res.Err = fmt.Errorf("encode %s: %w", f.key, err)
			} else {
				res.Path = path
			}
		}
		if opt.OnResult != nil {
			opt.OnResult(res)
		}
		results = append(results, res)
	}
	return results, nil
}

func selectFormats(keys []string) ([]exportFormat, error) {
	if len(keys) == 0 {
		return exportTable, nil
	}
	out := make([]exportFormat, 0, len(keys))
	for _, key := range keys {
		found := false
		for _, f := range exportTable {
			if f.key == key {
				out = append(out, f)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown format %q", key)
		}
	}
	return out, nil
}

// writeFile opens, encodes and closes one output file, removing the partial
// file when encoding fails.
func writeFile(path string, enc func(w io.Writer) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := enc(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
