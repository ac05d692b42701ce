package transform

import "pngpipe.adpollak.net/internal/row"

// composite8 blends fg over bg with the given alpha, rounding to nearest:
// (fg*a + bg*(255-a)) / 255.
func composite8(fg, a, bg uint8) uint8 {
	t := uint16(fg)*uint16(a) + uint16(bg)*uint16(255-a) + 128
	return uint8((t + t>>8) >> 8)
}

func composite16(fg, a, bg uint16) uint16 {
	t := uint32(fg)*uint32(a) + uint32(bg)*(65535-uint32(a)) + 32768
	return uint16((t + t>>16) >> 16)
}

// channelsOf lists the background components in row channel order.
func channelsOf(c row.Color16, colors int) [3]uint16 {
	if colors == 1 {
		return [3]uint16{c.Gray}
	}
	return [3]uint16{c.R, c.G, c.B}
}

// compose replaces transparent pixels by the background and blends
// partially transparent ones. When gamma tables exist the blend happens
// in linear space and opaque pixels are gamma-corrected here, which is
// why the separate gamma stage is skipped for these images.
func (s *Session) compose(info *row.Info, buf []byte) {
	ct := info.ColorType
	switch {
	case ct.IsPalette():
	case ct.HasAlpha():
		if info.BitDepth == 16 {
			s.composeAlpha16(info, buf)
		} else {
			s.composeAlpha8(info, buf)
		}
	case s.hasKey && (ct.HasColor() || !s.src.ColorType.HasColor()):
		// A color key cannot match a row already reduced to gray.
		s.composeKey(info, buf)
	}
}

func (s *Session) composeKey(info *row.Info, buf []byte) {
	t := s.tables
	d := info.BitDepth
	w := int(info.Width)
	if d < 8 {
		m := uint8(1<<d - 1)
		key := uint8(s.transColor.Gray) & m
		bg := uint8(s.bg.Gray) & m
		gam := t != nil && t.Table != nil
		scale := uint8(expandScale(d))
		for x := 0; x < w; x++ {
			v := sampleAt(buf, x, d)
			switch {
			case v == key:
				setSample(buf, x, d, bg)
			case gam:
				setSample(buf, x, d, t.Table[v*scale]>>(8-d))
			}
		}
		return
	}

	colors := int(info.Channels)
	bg := channelsOf(s.bg, colors)
	bs := int(d) / 8
	px := colors * bs
	for o := 0; o < w*px; o += px {
		if s.keyMatch(info, buf, o) {
			for k := 0; k < colors; k++ {
				if bs == 2 {
					put16(buf, o+2*k, bg[k])
				} else {
					buf[o+k] = uint8(bg[k])
				}
			}
			continue
		}
		switch {
		case bs == 1 && t != nil && t.Table != nil:
			for k := 0; k < colors; k++ {
				buf[o+k] = t.Table[buf[o+k]]
			}
		case bs == 2 && t != nil && t.Table16 != nil:
			for k := 0; k < colors; k++ {
				put16(buf, o+2*k, t.Lookup16(t.Table16, get16(buf, o+2*k)))
			}
		}
	}
}

func (s *Session) composeAlpha8(info *row.Info, buf []byte) {
	t := s.tables
	gam := t.HasLinear(8) && t.Table != nil
	optimize := s.flags.Has(FlagOptimizeAlpha)
	colors := int(info.Channels) - 1
	bg, bg1 := channelsOf(s.bg, colors), channelsOf(s.bg1, colors)
	px := int(info.Channels)
	for o := 0; o+px <= info.RowBytes; o += px {
		a := buf[o+colors]
		for k := 0; k < colors; k++ {
			v := buf[o+k]
			switch {
			case a == 0:
				v = uint8(bg[k])
			case !gam:
				if a != 0xff {
					v = composite8(v, a, uint8(bg[k]))
				}
			case a == 0xff:
				// Linear gray rows arrive with opaque pixels already encoded.
				if !s.linearGray {
					v = t.Table[v]
				}
			default:
				if !s.linearGray {
					v = t.To1[v]
				}
				v = composite8(v, a, uint8(bg1[k]))
				if !optimize {
					v = t.From1[v]
				}
			}
			buf[o+k] = v
		}
	}
}

func (s *Session) composeAlpha16(info *row.Info, buf []byte) {
	t := s.tables
	gam := t.HasLinear(16) && t.Table16 != nil
	optimize := s.flags.Has(FlagOptimizeAlpha)
	colors := int(info.Channels) - 1
	bg, bg1 := channelsOf(s.bg, colors), channelsOf(s.bg1, colors)
	px := 2 * int(info.Channels)
	for o := 0; o+px <= info.RowBytes; o += px {
		a := get16(buf, o+2*colors)
		for k := 0; k < colors; k++ {
			i := o + 2*k
			v := get16(buf, i)
			switch {
			case a == 0:
				v = bg[k]
			case !gam:
				if a != 0xffff {
					v = composite16(v, a, bg[k])
				}
			case a == 0xffff:
				if !s.linearGray {
					v = t.Lookup16(t.Table16, v)
				}
			default:
				if !s.linearGray {
					v = t.Lookup16(t.To1_16, v)
				}
				v = composite16(v, a, bg1[k])
				if !optimize {
					v = t.Lookup16(t.From1_16, v)
				}
			}
			put16(buf, i, v)
		}
	}
}
