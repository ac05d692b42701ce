package transform

import (
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// sampleAt reads sample x of a packed row of the given depth (1, 2, 4 or
// 8 bits), leftmost sample in the high bits.
func sampleAt(b []byte, x int, depth uint8) uint8 {
	if depth == 8 {
		return b[x]
	}
	per := 8 / int(depth)
	shift := uint(8 - int(depth)*(x%per+1))
	return b[x/per] >> shift & (1<<depth - 1)
}

func setSample(b []byte, x int, depth uint8, v uint8) {
	if depth == 8 {
		b[x] = v
		return
	}
	per := 8 / int(depth)
	shift := uint(8 - int(depth)*(x%per+1))
	m := uint8(1<<depth-1) << shift
	i := x / per
	b[i] = b[i]&^m | v<<shift&m
}

func get16(b []byte, i int) uint16 { return uint16(b[i])<<8 | uint16(b[i+1]) }

func put16(b []byte, i int, v uint16) {
	b[i] = uint8(v >> 8)
	b[i+1] = uint8(v)
}

// expand widens palette rows to RGB or RGBA, gray rows below 8 bits to 8
// bits, and with FlagExpandTRNS turns the color key into alpha. All walks
// run from the last pixel so output never overwrites unread input.
func (s *Session) expand(info *row.Info, buf []byte) {
	if info.ColorType == row.Palette {
		s.expandPalette(info, buf)
		return
	}
	if info.ColorType == row.Gray && info.BitDepth < 8 {
		d := info.BitDepth
		scale := uint8(expandScale(d))
		for x := int(info.Width) - 1; x >= 0; x-- {
			buf[x] = sampleAt(buf, x, d) * scale
		}
		info.BitDepth = 8
		info.Recompute()
	}
	if s.hasKey && s.flags.Has(FlagExpandTRNS) {
		switch info.ColorType {
		case row.Gray, row.RGB:
			s.keyToAlpha(info, buf)
		}
	}
}

func (s *Session) expandPalette(info *row.Info, buf []byte) {
	d := info.BitDepth
	n := 3
	if len(s.trans) > 0 {
		n = 4
	}
	bad := false
	for x := int(info.Width) - 1; x >= 0; x-- {
		idx := int(sampleAt(buf, x, d))
		if idx >= len(s.palette) {
			bad = true
			idx = 0
		}
		p := s.palette[idx]
		o := x * n
		buf[o], buf[o+1], buf[o+2] = p.R, p.G, p.B
		if n == 4 {
			a := uint8(0xff)
			if idx < len(s.trans) {
				a = s.trans[idx]
			}
			buf[o+3] = a
		}
	}
	if bad {
		s.warnOnce(&s.warnedIndex, pngerr.New(pngerr.Benign, "expand palette", pngerr.ErrPaletteIndex))
	}
	info.ColorType = row.RGB
	if n == 4 {
		info.ColorType = row.RGBA
	}
	info.BitDepth = 8
	info.Channels = uint8(n)
	info.Recompute()
}

// keyMatch reports whether the pixel at byte offset o equals the color
// key. Rows are 8 or 16 bits deep.
func (s *Session) keyMatch(info *row.Info, buf []byte, o int) bool {
	k := s.transColor
	if info.BitDepth == 16 {
		if !info.ColorType.HasColor() {
			return get16(buf, o) == k.Gray
		}
		return get16(buf, o) == k.R && get16(buf, o+2) == k.G && get16(buf, o+4) == k.B
	}
	if !info.ColorType.HasColor() {
		return buf[o] == uint8(k.Gray)
	}
	return buf[o] == uint8(k.R) && buf[o+1] == uint8(k.G) && buf[o+2] == uint8(k.B)
}

func (s *Session) keyToAlpha(info *row.Info, buf []byte) {
	bs := int(info.BitDepth) / 8
	in := int(info.Channels) * bs
	out := in + bs
	for x := int(info.Width) - 1; x >= 0; x-- {
		src, dst := x*in, x*out
		a := uint8(0xff)
		if s.keyMatch(info, buf, src) {
			a = 0
		}
		copy(buf[dst:dst+in], buf[src:src+in])
		for k := 0; k < bs; k++ {
			buf[dst+in+k] = a
		}
	}
	info.ColorType |= row.MaskAlpha
	info.Channels++
	info.Recompute()
}

// expand16 widens 8-bit samples by byte replication.
func expand16(info *row.Info, buf []byte) {
	if info.BitDepth != 8 || info.ColorType == row.Palette {
		return
	}
	n := int(info.Width) * int(info.Channels)
	for i := n - 1; i >= 0; i-- {
		buf[2*i+1] = buf[i]
		buf[2*i] = buf[i]
	}
	info.BitDepth = 16
	info.Recompute()
}

// unpack stores samples below 8 bits one per byte, unscaled.
func unpack(info *row.Info, buf []byte) {
	if info.BitDepth >= 8 {
		return
	}
	d := info.BitDepth
	for x := int(info.Width) - 1; x >= 0; x-- {
		buf[x] = sampleAt(buf, x, d)
	}
	info.BitDepth = 8
	info.Recompute()
}

// checkPalette reports indices past the end of the palette in rows that
// stay indexed.
func (s *Session) checkPalette(info *row.Info, buf []byte) {
	if info.ColorType != row.Palette || s.warnedIndex {
		return
	}
	n := len(s.Palette())
	for x := 0; x < int(info.Width); x++ {
		if int(sampleAt(buf, x, info.BitDepth)) >= n {
			s.warnOnce(&s.warnedIndex, pngerr.New(pngerr.Benign, "palette check", pngerr.ErrPaletteIndex))
			return
		}
	}
}
