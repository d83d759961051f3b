package texgen

const (
	// maxSample is the maximum representable 8-bit sRGB sample.
	maxSample = 255.0

	// defaultWhiteBoost is the exposure multiplier applied to pixels that
	// were saturated white in the source.
	defaultWhiteBoost = 10.0
)

const (
	// maxICOSide is the largest icon dimension the ICO directory can carry.
	maxICOSide = 256

	jpegQuality = 90
)
