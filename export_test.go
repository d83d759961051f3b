package texgen

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testSourceImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 32), G: uint8(y * 32), B: 128, A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func TestExportTexturesAllFormats(t *testing.T) {
	dir := t.TempDir()
	results, err := ExportTextures(testSourceImage(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(Formats()) {
		t.Fatalf("%d results, want %d", len(results), len(Formats()))
	}

	for _, res := range results {
		if res.Skipped {
			if res.Err == nil || !strings.Contains(res.Err.Error(), "external encoder") {
				t.Errorf("%s: skip without reason", res.Format)
			}
			continue
		}
		if res.Err != nil {
			t.Errorf("%s: %v", res.Format, res.Err)
			continue
		}
		if _, err := os.Stat(res.Path); err != nil {
			t.Errorf("%s: missing output: %v", res.Format, err)
		}
	}
}

func TestExportTexturesExtensionsMatch(t *testing.T) {
	dir := t.TempDir()
	results, err := ExportTextures(testSourceImage(), dir)
	if err != nil {
		t.Fatal(err)
	}
	byKey := map[string]string{}
	for _, f := range Formats() {
		byKey[f.Key] = f.Ext
	}
	for _, res := range results {
		if res.Path == "" {
			continue
		}
		if want := "." + byKey[res.Format]; !strings.HasSuffix(res.Path, want) {
			t.Errorf("%s: path %s does not end in %s", res.Format, res.Path, want)
		}
	}
}

func TestExportTexturesFailureDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()
	// Occupying the dds output path with a directory makes that one format
	// fail; everything after it must still be written.
	if err := os.Mkdir(filepath.Join(dir, "dds.dds"), 0o755); err != nil {
		t.Fatal(err)
	}

	results, err := ExportTextures(testSourceImage(), dir, func(opt *ExportOptions) {
		opt.Formats = []string{"bmp", "dds", "png", "exr"}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("%d results, want 4", len(results))
	}
	if results[1].Format != "dds" || results[1].Err == nil {
		t.Fatalf("expected dds failure, got %+v", results[1])
	}
	for _, i := range []int{0, 2, 3} {
		if results[i].Err != nil {
			t.Errorf("%s failed after dds: %v", results[i].Format, results[i].Err)
		}
		if _, err := os.Stat(results[i].Path); err != nil {
			t.Errorf("%s: missing output: %v", results[i].Format, err)
		}
	}
}

func TestExportTexturesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := ExportTextures(testSourceImage(), dir, func(opt *ExportOptions) {
		opt.Formats = []string{"png", "exr"}
	})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "png.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("png bounds %v", img.Bounds())
	}

	data, err := os.ReadFile(filepath.Join(dir, "exr.exr"))
	if err != nil {
		t.Fatal(err)
	}
	radiance, err := DecodeEXR(data)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b := radiance.at(0, 0)
	if r != 10 || g != 10 || b != 10 {
		t.Fatalf("boosted white survived as (%g, %g, %g), want (10, 10, 10)", r, g, b)
	}
}

func TestExportTexturesUnknownFormat(t *testing.T) {
	if _, err := ExportTextures(testSourceImage(), t.TempDir(), func(opt *ExportOptions) {
		opt.Formats = []string{"avif"}
	}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExportTexturesOnResult(t *testing.T) {
	var seen []string
	_, err := ExportTextures(testSourceImage(), t.TempDir(), func(opt *ExportOptions) {
		opt.Formats = []string{"png", "bmp"}
		opt.OnResult = func(res ExportResult) { seen = append(seen, res.Format) }
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "png" || seen[1] != "bmp" {
		t.Fatalf("OnResult saw %v", seen)
	}
}
