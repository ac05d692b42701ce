// Package interlace implements Adam7 pass geometry and the in-place row
// compaction and expansion used when writing and reading interlaced
// images.
package interlace

import "pngpipe.adpollak.net/internal/row"

// Passes is the number of Adam7 passes.
const Passes = 7

// Pass describes which pixels of the full image belong to one pass.
type Pass struct {
	XStart, XStep int
	YStart, YStep int
}

// Adam7 lists the seven passes in order.
var Adam7 = [Passes]Pass{
	{0, 8, 0, 8},
	{4, 8, 0, 8},
	{0, 4, 4, 8},
	{2, 4, 0, 4},
	{0, 2, 2, 4},
	{1, 2, 0, 2},
	{0, 1, 1, 2},
}

// Cols returns the number of pixels per row of pass p for an image of
// the given width.
func Cols(width uint32, p int) uint32 {
	ps := Adam7[p]
	if int64(width) <= int64(ps.XStart) {
		return 0
	}
	return uint32((int64(width) - int64(ps.XStart) + int64(ps.XStep) - 1) / int64(ps.XStep))
}

// Rows returns the number of rows of pass p for an image of the given
// height.
func Rows(height uint32, p int) uint32 {
	ps := Adam7[p]
	if int64(height) <= int64(ps.YStart) {
		return 0
	}
	return uint32((int64(height) - int64(ps.YStart) + int64(ps.YStep) - 1) / int64(ps.YStep))
}

// Empty reports whether pass p has no pixels for a width×height image.
func Empty(width, height uint32, p int) bool {
	return Cols(width, p) == 0 || Rows(height, p) == 0
}

// ImageY returns the image row of the r-th row of pass p.
func ImageY(p int, r uint32) uint32 {
	return uint32(Adam7[p].YStart) + r*uint32(Adam7[p].YStep)
}

// ImageSize is the number of filtered bytes (including one filter-type
// byte per row) an image occupies before compression.
func ImageSize(width, height uint32, pixelDepth uint8, interlaced bool) int64 {
	if width == 0 || height == 0 {
		return 0
	}
	if !interlaced {
		return int64(row.Bytes(width, pixelDepth)+1) * int64(height)
	}
	var n int64
	for p := 0; p < Passes; p++ {
		w := Cols(width, p)
		h := Rows(height, p)
		if w == 0 || h == 0 {
			continue
		}
		n += int64(row.Bytes(w, pixelDepth)+1) * int64(h)
	}
	return n
}

// InPass reports whether the pixel (x, y) belongs to pass p.
func InPass(p int, x, y uint32) bool {
	ps := Adam7[p]
	return int(x)%ps.XStep == ps.XStart && int(y)%ps.YStep == ps.YStart
}

// BlockRows is the number of image rows starting at a pass row that the
// pass covers when rendered progressively.
func BlockRows(p int) int {
	return Adam7[p].YStep - Adam7[p].YStart
}
