package transform

import "pngpipe.adpollak.net/internal/row"

// bgr exchanges red and blue.
func bgr(info *row.Info, buf []byte) {
	ct := info.ColorType
	if !ct.HasColor() || ct.IsPalette() || info.BitDepth < 8 {
		return
	}
	bs := int(info.BitDepth) / 8
	px := int(info.Channels) * bs
	for o := 0; o+px <= info.RowBytes; o += px {
		for k := 0; k < bs; k++ {
			buf[o+k], buf[o+2*bs+k] = buf[o+2*bs+k], buf[o+k]
		}
	}
}

var swapTables [3][256]uint8

func init() {
	for ti, d := range []int{1, 2, 4} {
		per := 8 / d
		m := 1<<d - 1
		for b := 0; b < 256; b++ {
			var out int
			for k := 0; k < per; k++ {
				v := b >> (8 - d*(k+1)) & m
				out |= v << (d * k)
			}
			swapTables[ti][b] = uint8(out)
		}
	}
}

// packSwap reverses the order of the samples packed into each byte.
func packSwap(info *row.Info, buf []byte) {
	var t *[256]uint8
	switch info.BitDepth {
	case 1:
		t = &swapTables[0]
	case 2:
		t = &swapTables[1]
	case 4:
		t = &swapTables[2]
	default:
		return
	}
	for i := 0; i < info.RowBytes; i++ {
		buf[i] = t[buf[i]]
	}
}

// invertMono inverts gray samples so that 0 is white.
func invertMono(info *row.Info, buf []byte) {
	switch {
	case info.ColorType == row.Gray:
		for i := 0; i < info.RowBytes; i++ {
			buf[i] = ^buf[i]
		}
	case info.ColorType == row.GrayAlpha && info.BitDepth == 8:
		for i := 0; i < info.RowBytes; i += 2 {
			buf[i] = ^buf[i]
		}
	case info.ColorType == row.GrayAlpha && info.BitDepth == 16:
		for i := 0; i < info.RowBytes; i += 4 {
			buf[i] = ^buf[i]
			buf[i+1] = ^buf[i+1]
		}
	}
}

// swapBytes turns big-endian 16-bit samples little-endian, or back.
func swapBytes(info *row.Info, buf []byte) {
	if info.BitDepth != 16 {
		return
	}
	for i := 0; i+1 < info.RowBytes; i += 2 {
		buf[i], buf[i+1] = buf[i+1], buf[i]
	}
}
