package transform

import (
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// dropChannel removes channel ch from every pixel of rows with 8 or 16-bit
// samples. Pixels shrink, so the walk goes forward.
func dropChannel(info *row.Info, buf []byte, ch int) {
	bs := int(info.BitDepth) / 8
	in := int(info.Channels) * bs
	out := in - bs
	cut := ch * bs
	for x := 0; x < int(info.Width); x++ {
		src, dst := x*in, x*out
		copy(buf[dst:dst+cut], buf[src:src+cut])
		copy(buf[dst+cut:dst+out], buf[src+cut+bs:src+in])
	}
	info.Channels--
	info.Recompute()
}

func stripAlpha(info *row.Info, buf []byte) {
	if info.ColorType != row.GrayAlpha && info.ColorType != row.RGBA {
		return
	}
	dropChannel(info, buf, int(info.Channels)-1)
	info.ColorType &^= row.MaskAlpha
}

// invertAlpha replaces alpha with its complement so that 0 is opaque.
// Alpha is the last channel.
func invertAlpha(info *row.Info, buf []byte) {
	if info.ColorType != row.GrayAlpha && info.ColorType != row.RGBA {
		return
	}
	bs := int(info.BitDepth) / 8
	px := int(info.Channels) * bs
	for o := px - bs; o < info.RowBytes; o += px {
		for k := 0; k < bs; k++ {
			buf[o+k] = ^buf[o+k]
		}
	}
}

// rotate moves channel bytes of every pixel by one channel: right puts
// the last channel first, left the first channel last.
func rotate(info *row.Info, buf []byte, right bool) {
	bs := int(info.BitDepth) / 8
	px := int(info.Channels) * bs
	var tmp [2]byte
	for o := 0; o+px <= info.RowBytes; o += px {
		p := buf[o : o+px]
		if right {
			copy(tmp[:bs], p[px-bs:])
			copy(p[bs:], p[:px-bs])
			copy(p[:bs], tmp[:bs])
		} else {
			copy(tmp[:bs], p[:bs])
			copy(p, p[bs:])
			copy(p[px-bs:], tmp[:bs])
		}
	}
}

// readSwapAlpha turns RGBA into ARGB and GA into AG.
func readSwapAlpha(info *row.Info, buf []byte) {
	if info.ColorType == row.GrayAlpha || info.ColorType == row.RGBA {
		rotate(info, buf, true)
	}
}

// writeSwapAlpha turns ARGB into RGBA and AG into GA.
func writeSwapAlpha(info *row.Info, buf []byte) {
	if info.ColorType == row.GrayAlpha || info.ColorType == row.RGBA {
		rotate(info, buf, false)
	}
}

// encodeAlpha gamma-encodes the alpha channel with the screen gamma.
func (s *Session) encodeAlpha(info *row.Info, buf []byte) {
	if !info.ColorType.HasAlpha() {
		return
	}
	t := s.tables
	bs := int(info.BitDepth) / 8
	px := int(info.Channels) * bs
	switch {
	case info.BitDepth == 8 && t != nil && t.From1 != nil:
		for o := px - 1; o < info.RowBytes; o += px {
			buf[o] = t.From1[buf[o]]
		}
	case info.BitDepth == 16 && t != nil && t.From1_16 != nil:
		for o := px - 2; o < info.RowBytes; o += px {
			put16(buf, o, t.Lookup16(t.From1_16, get16(buf, o)))
		}
	default:
		s.warnOnce(&s.warnedEncode, pngerr.Newf(pngerr.Benign, "encode alpha", "no linear tables for %v", *info))
	}
}

// addFiller inserts the filler channel into gray and RGB rows.
func (s *Session) addFiller(info *row.Info, buf []byte) {
	if !fillable(*info) {
		return
	}
	fl := s.cfg.Filler
	bs := int(info.BitDepth) / 8
	in := int(info.Channels) * bs
	out := in + bs
	var fill [2]byte
	if bs == 1 {
		fill[0] = uint8(fl.Value)
	} else {
		fill[0], fill[1] = uint8(fl.Value>>8), uint8(fl.Value)
	}
	for x := int(info.Width) - 1; x >= 0; x-- {
		src, dst := x*in, x*out
		if fl.Before {
			copy(buf[dst+bs:dst+out], buf[src:src+in])
			copy(buf[dst:dst+bs], fill[:bs])
		} else {
			copy(buf[dst:dst+in], buf[src:src+in])
			copy(buf[dst+in:dst+out], fill[:bs])
		}
	}
	info.Channels++
	if s.flags.Has(FlagAddAlpha) {
		info.ColorType |= row.MaskAlpha
	}
	info.Recompute()
}
