package transform

import "pngpipe.adpollak.net/internal/row"

// correctGamma maps color samples from file to screen encoding. Alpha is
// left alone and 1-bit gray has nothing to correct.
func (s *Session) correctGamma(info *row.Info, buf []byte) {
	t := s.tables
	ct := info.ColorType
	if t == nil || ct.IsPalette() {
		return
	}
	d := info.BitDepth
	if d < 8 {
		if d == 1 || t.Table == nil {
			return
		}
		scale := uint8(expandScale(d))
		for x := 0; x < int(info.Width); x++ {
			v := sampleAt(buf, x, d)
			setSample(buf, x, d, t.Table[v*scale]>>(8-d))
		}
		return
	}
	ch := int(info.Channels)
	colors := ch
	if ct.HasAlpha() {
		colors--
	}
	if d == 8 {
		if t.Table == nil {
			return
		}
		for o := 0; o+ch <= info.RowBytes; o += ch {
			for k := 0; k < colors; k++ {
				buf[o+k] = t.Table[buf[o+k]]
			}
		}
		return
	}
	if t.Table16 == nil {
		return
	}
	px := 2 * ch
	for o := 0; o+px <= info.RowBytes; o += px {
		for k := 0; k < colors; k++ {
			i := o + 2*k
			put16(buf, i, t.Lookup16(t.Table16, get16(buf, i)))
		}
	}
}
