package transform

import "pngpipe.adpollak.net/internal/row"

// transformInfo predicts the shape rows leave the pipeline with, without
// touching pixel data, and the widest pixel seen on the way. The decoder
// checks every transformed row against the prediction.
func (s *Session) transformInfo(in row.Info) (row.Info, uint8) {
	f := s.flags
	info := in
	widest := info.PixelDepth
	step := func() {
		info.Recompute()
		widest = max(widest, info.PixelDepth)
	}
	compose := f.Has(FlagCompose)

	if f.Has(FlagExpand) {
		switch {
		case info.ColorType == row.Palette:
			info.ColorType, info.Channels = row.RGB, 3
			if len(s.trans) > 0 {
				info.ColorType, info.Channels = row.RGBA, 4
			}
			info.BitDepth = 8
		default:
			if info.BitDepth < 8 {
				info.BitDepth = 8
			}
			if s.hasKey && f.Has(FlagExpandTRNS) {
				switch info.ColorType {
				case row.Gray:
					info.ColorType, info.Channels = row.GrayAlpha, 2
				case row.RGB:
					info.ColorType, info.Channels = row.RGBA, 4
				}
			}
		}
		step()
	}
	stripAlpha := func() {
		if info.ColorType == row.GrayAlpha || info.ColorType == row.RGBA {
			info.ColorType &^= row.MaskAlpha
			info.Channels--
			step()
		}
	}
	grayToRGB := func() {
		if info.BitDepth >= 8 && !info.ColorType.HasColor() {
			info.ColorType |= row.MaskColor
			info.Channels += 2
			step()
		}
	}
	if f.Has(FlagStripAlpha) && !compose {
		stripAlpha()
	}
	if f.Has(FlagRGBToGray) && info.ColorType.HasColor() && !info.ColorType.IsPalette() {
		info.ColorType &^= row.MaskColor
		info.Channels -= 2
		step()
	}
	if f.Has(FlagGrayToRGB) && !s.bgGray {
		grayToRGB()
	}
	if f.Has(FlagStripAlpha) && compose {
		stripAlpha()
	}
	if f.Any(FlagScale16|FlagStrip16) && info.BitDepth == 16 {
		info.BitDepth = 8
		step()
	}
	if f.Has(FlagQuantize) && info.BitDepth == 8 {
		if s.quant.lookup != nil && (info.ColorType == row.RGB || info.ColorType == row.RGBA) {
			info.ColorType, info.Channels = row.Palette, 1
			step()
		}
	}
	if f.Has(FlagExpand16) && info.BitDepth == 8 && info.ColorType != row.Palette {
		info.BitDepth = 16
		step()
	}
	if f.Has(FlagGrayToRGB) && s.bgGray {
		grayToRGB()
	}
	if f.Has(FlagUnpack) && info.BitDepth < 8 {
		info.BitDepth = 8
		step()
	}
	if f.Has(FlagFiller) && fillable(info) {
		info.Channels++
		if f.Has(FlagAddAlpha) {
			info.ColorType |= row.MaskAlpha
		}
		step()
	}
	if f.Has(FlagHook) {
		if d := s.cfg.HookDepth; d != 0 {
			info.BitDepth = d
		}
		if c := s.cfg.HookChannels; c != 0 {
			info.Channels = c
		}
		step()
	}
	return info, widest
}

// fillable reports whether a filler channel can be added to rows of this
// shape.
func fillable(info row.Info) bool {
	if info.BitDepth != 8 && info.BitDepth != 16 {
		return false
	}
	return (info.ColorType == row.Gray || info.ColorType == row.RGB) &&
		info.Channels == info.ColorType.Channels()
}
