package transform

import (
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// rgbToGray replaces the color channels by their weighted luminance.
// Pixels whose channels are equal are copied rather than recomputed, and
// any other pixel marks the image as having had color.
//
// With gamma tables present the weighting happens in linear space. When
// compose follows in linear mode, partially transparent and transparent
// pixels stay linear for the blend; opaque ones are encoded for the
// screen here.
func (s *Session) rgbToGray(info *row.Info, buf []byte) error {
	ct := info.ColorType
	if ct.IsPalette() || !ct.HasColor() {
		return nil
	}
	rc, gc := s.redCoeff, s.greenCoeff
	bc := 32768 - rc - gc
	alpha := ct.HasAlpha()
	t := s.tables
	w := int(info.Width)
	nonGray := false

	if info.BitDepth == 8 {
		lin := t.HasLinear(8)
		sp, dp := 0, 0
		for x := 0; x < w; x++ {
			r, g, b := buf[sp], buf[sp+1], buf[sp+2]
			sp += 3
			// Opaque pixels bypass the blend, so they are finished here.
			linear := s.linearGray && !(alpha && buf[sp] == 0xff)
			var out uint8
			switch {
			case r == g && r == b:
				out = r
				if lin {
					if linear {
						out = t.To1[r]
					} else if t.Table != nil {
						out = t.Table[r]
					}
				}
			case lin:
				nonGray = true
				r, g, b = t.To1[r], t.To1[g], t.To1[b]
				v := uint8((rc*uint32(r) + gc*uint32(g) + bc*uint32(b) + 16384) >> 15)
				if linear {
					out = v
				} else {
					out = t.From1[v]
				}
			default:
				nonGray = true
				out = uint8((rc*uint32(r) + gc*uint32(g) + bc*uint32(b)) >> 15)
			}
			buf[dp] = out
			dp++
			if alpha {
				buf[dp] = buf[sp]
				dp++
				sp++
			}
		}
	} else {
		lin := t.HasLinear(16)
		sp, dp := 0, 0
		for x := 0; x < w; x++ {
			r, g, b := get16(buf, sp), get16(buf, sp+2), get16(buf, sp+4)
			sp += 6
			linear := s.linearGray && !(alpha && get16(buf, sp) == 0xffff)
			var out uint16
			switch {
			case r == g && r == b:
				out = r
				if lin {
					if linear {
						out = t.Lookup16(t.To1_16, r)
					} else if t.Table16 != nil {
						out = t.Lookup16(t.Table16, r)
					}
				}
			case lin:
				nonGray = true
				r1 := uint32(t.Lookup16(t.To1_16, r))
				g1 := uint32(t.Lookup16(t.To1_16, g))
				b1 := uint32(t.Lookup16(t.To1_16, b))
				v := uint16((rc*r1 + gc*g1 + bc*b1 + 16384) >> 15)
				if linear {
					out = v
				} else {
					out = t.Lookup16(t.From1_16, v)
				}
			default:
				nonGray = true
				out = uint16((rc*uint32(r) + gc*uint32(g) + bc*uint32(b) + 16384) >> 15)
			}
			put16(buf, dp, out)
			dp += 2
			if alpha {
				buf[dp], buf[dp+1] = buf[sp], buf[sp+1]
				dp += 2
				sp += 2
			}
		}
	}

	info.ColorType &^= row.MaskColor
	info.Channels -= 2
	info.Recompute()

	if !nonGray {
		return nil
	}
	s.hadColor = true
	return pngerr.Apply(s.cfg.RGBToGray.Action, s.rep, pngerr.New(pngerr.Policy, "rgb to gray", pngerr.ErrNonGray))
}

// grayToRGB replicates gray into three channels. Only 8 and 16-bit rows
// qualify.
func grayToRGB(info *row.Info, buf []byte) {
	if info.BitDepth < 8 || info.ColorType.HasColor() {
		return
	}
	bs := int(info.BitDepth) / 8
	alpha := info.ColorType.HasAlpha()
	in := int(info.Channels) * bs
	out := in + 2*bs
	for x := int(info.Width) - 1; x >= 0; x-- {
		src, dst := x*in, x*out
		var px [4]byte
		copy(px[:in], buf[src:src+in])
		for c := 0; c < 3; c++ {
			copy(buf[dst+c*bs:dst+(c+1)*bs], px[:bs])
		}
		if alpha {
			copy(buf[dst+3*bs:dst+4*bs], px[bs:2*bs])
		}
	}
	info.ColorType |= row.MaskColor
	info.Channels += 2
	info.Recompute()
}
