package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/vearutop/texgen"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "export":
		if err := runExport(os.Args[2:]); err != nil {
			fail(err)
		}
	case "tonemap":
		if err := runToneMap(os.Args[2:]); err != nil {
			fail(err)
		}
	case "formats":
		runFormats()
	default:
		usage()
		os.Exit(2)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: texgen <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  export  -in input.png -out dir [-formats png,exr,...] [-boost 10]")
	fmt.Fprintln(os.Stderr, "  tonemap -in input.png -out output.exr [-boost 10] [-compression zip]")
	fmt.Fprintln(os.Stderr, "  formats")
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	inPath := fs.String("in", "", "source image (PNG, JPEG, GIF, BMP or TIFF)")
	outDir := fs.String("out", "", "output directory")
	formats := fs.String("formats", "", "comma-separated format keys, empty for all")
	boost := fs.Float64("boost", 10, "exposure multiplier for saturated white pixels")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outDir == "" {
		return errors.New("missing required arguments")
	}

	img, err := decodeImage(*inPath)
	if err != nil {
		return err
	}

	var keys []string
	if *formats != "" {
		keys = strings.Split(*formats, ",")
	}
	results, err := texgen.ExportTextures(img, *outDir, func(opt *texgen.ExportOptions) {
		opt.Formats = keys
		opt.WhiteBoost = float32(*boost)
	})
	if err != nil {
		return err
	}

	// Per-format failures are reported but do not fail the run.
	for _, res := range results {
		switch {
		case res.Skipped:
			fmt.Fprintf(os.Stdout, "skip %s: %v\n", res.Format, res.Err)
		case res.Err != nil:
			fmt.Fprintf(os.Stdout, "fail %s: %v\n", res.Format, res.Err)
		default:
			fmt.Fprintf(os.Stdout, "wrote %s\n", res.Path)
		}
	}
	return nil
}

func runToneMap(args []string) error {
	fs := flag.NewFlagSet("tonemap", flag.ContinueOnError)
	inPath := fs.String("in", "", "source image (PNG, JPEG, GIF, BMP or TIFF)")
	outPath := fs.String("out", "", "output OpenEXR file")
	boost := fs.Float64("boost", 10, "exposure multiplier for saturated white pixels")
	compression := fs.String("compression", "zip", "EXR compression: none, zips or zip")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}

	var comp texgen.EXRCompression
	switch *compression {
	case "none":
		comp = texgen.EXRCompressionNone
	case "zips":
		comp = texgen.EXRCompressionZIPS
	case "zip":
		comp = texgen.EXRCompressionZIP
	default:
		return fmt.Errorf("unknown compression %q", *compression)
	}

	img, err := decodeImage(*inPath)
	if err != nil {
		return err
	}
	radiance, err := texgen.ToneMapSDR(img, func(opt *texgen.ToneMapOptions) {
		opt.WhiteBoost = float32(*boost)
	})
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(*outPath))
	if err != nil {
		return err
	}
	if err := texgen.EncodeEXR(f, radiance, comp); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *outPath)
	return nil
}

func runFormats() {
	for _, f := range texgen.Formats() {
		if f.External != "" {
			fmt.Fprintf(os.Stdout, "%s\t.%s\trequires external encoder %s\n", f.Key, f.Ext, f.External)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s\t.%s\n", f.Key, f.Ext)
	}
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
