// Package texgen converts a single 8-bit sRGB source image into the set of
// texture test assets used by format-support scenes: LDR raster formats (BMP,
// DDS, GIF, ICO, JPEG, PAM, PNG, PPM, QOI, TGA, TIFF, WebP) plus HDR variants
// (OpenEXR, Radiance RGBE, float KTX2) in which pixels that were saturated
// white in the source are exposure-boosted above SDR white.
//
// Each export is an independent decode-transform-encode step; a failure in one
// format never aborts the rest of the batch.
package texgen
