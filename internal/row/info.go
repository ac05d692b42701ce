// Package row describes the geometry of a single scanline as it moves
// through the filter engine and the transform pipeline.
package row

import "fmt"

// ColorType is the PNG color type. The low three bits are masks.
type ColorType uint8

const (
	MaskPalette ColorType = 1
	MaskColor   ColorType = 2
	MaskAlpha   ColorType = 4
)

const (
	Gray      ColorType = 0
	RGB       ColorType = MaskColor
	Palette   ColorType = MaskColor | MaskPalette
	GrayAlpha ColorType = MaskAlpha
	RGBA      ColorType = MaskColor | MaskAlpha
)

func (c ColorType) String() string {
	switch c {
	case Gray:
		return "Gray"
	case RGB:
		return "RGB"
	case Palette:
		return "Palette"
	case GrayAlpha:
		return "GrayAlpha"
	case RGBA:
		return "RGBA"
	}
	return fmt.Sprintf("ColorType(%d)", uint8(c))
}

// Valid reports whether c is one of the five PNG color types.
func (c ColorType) Valid() bool {
	switch c {
	case Gray, RGB, Palette, GrayAlpha, RGBA:
		return true
	}
	return false
}

// Channels returns the number of samples per pixel stored for c.
func (c ColorType) Channels() uint8 {
	switch c {
	case RGB:
		return 3
	case GrayAlpha:
		return 2
	case RGBA:
		return 4
	}
	return 1
}

// HasAlpha reports whether c carries an alpha channel.
func (c ColorType) HasAlpha() bool { return c&MaskAlpha != 0 }

// HasColor reports whether c carries red, green and blue samples.
func (c ColorType) HasColor() bool { return c&MaskColor != 0 }

// IsPalette reports whether c stores palette indices.
func (c ColorType) IsPalette() bool { return c&MaskPalette != 0 }

// ValidDepth reports whether the (color type, bit depth) pair is allowed
// in a PNG datastream.
func ValidDepth(c ColorType, depth uint8) bool {
	switch c {
	case Gray:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case Palette:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	case RGB, GrayAlpha, RGBA:
		return depth == 8 || depth == 16
	}
	return false
}

// Info is the per-row geometry. PixelDepth and RowBytes are derived and
// must be refreshed with Recompute whenever Width, BitDepth or Channels
// change.
type Info struct {
	Width      uint32
	ColorType  ColorType
	BitDepth   uint8
	Channels   uint8
	PixelDepth uint8
	RowBytes   int
}

// New returns the Info for a row of width pixels of the given format.
func New(width uint32, c ColorType, depth uint8) Info {
	i := Info{
		Width:     width,
		ColorType: c,
		BitDepth:  depth,
		Channels:  c.Channels(),
	}
	i.Recompute()
	return i
}

// Recompute refreshes PixelDepth and RowBytes from the other fields.
func (i *Info) Recompute() {
	i.PixelDepth = i.BitDepth * i.Channels
	i.RowBytes = Bytes(i.Width, i.PixelDepth)
}

// SetWidth changes the width and refreshes the derived fields.
func (i *Info) SetWidth(width uint32) {
	i.Width = width
	i.Recompute()
}

// BytesPerPixel is the filter's left-neighbour offset: ceil(PixelDepth/8).
func (i Info) BytesPerPixel() int {
	return (int(i.PixelDepth) + 7) >> 3
}

func (i Info) String() string {
	return fmt.Sprintf("%s/%d w=%d ch=%d px=%d rb=%d",
		i.ColorType, i.BitDepth, i.Width, i.Channels, i.PixelDepth, i.RowBytes)
}

// Bytes returns the number of bytes needed to hold width pixels of
// pixelDepth bits each.
func Bytes(width uint32, pixelDepth uint8) int {
	if pixelDepth >= 8 {
		return int(width) * (int(pixelDepth) >> 3)
	}
	return (int(width)*int(pixelDepth) + 7) >> 3
}
