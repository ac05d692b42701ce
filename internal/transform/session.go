package transform

import (
	"fmt"
	"slices"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// Session is a finalized read pipeline. All tables, the background and
// the palette are computed by NewSession and never change afterwards, so
// a Session may be reused for every row of the image but not shared
// between goroutines (it records the rgb to gray status).
type Session struct {
	src   Source
	cfg   ReadConfig
	flags Flags
	rep   pngerr.Reporter

	fileGamma, screenGamma gamma.Fixed
	tables                 *gamma.Tables

	// Background in screen encoding and in linear form.
	bg, bg1 row.Color16
	bgType  GammaType
	bgGamma gamma.Fixed
	bgGray  bool
	// linearGray makes rgb to gray hand linear samples to compose.
	linearGray bool

	palette    []row.Entry
	trans      []uint8
	transColor row.Color16
	hasKey     bool

	redCoeff, greenCoeff uint32
	quant                *quantizer
	unshift              row.SigBits

	stages   []stage
	out      row.Info
	maxDepth uint8

	hadColor     bool
	warnedIndex  bool
	warnedEncode bool
}

type stage struct {
	name string
	run  func(info *row.Info, buf []byte) error
}

// NewSession validates src and cfg and resolves the interdependencies
// between the requested transforms.
func NewSession(src Source, cfg ReadConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := src.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		src:     src,
		cfg:     cfg,
		rep:     cfg.Reporter,
		palette: slices.Clone(src.Palette),
	}
	if s.rep == nil {
		s.rep = &pngerr.LogReporter{}
	}
	if src.ColorType.IsPalette() {
		s.trans = slices.Clone(src.Trans)
		if len(s.trans) > len(s.palette) {
			s.rep.Warn(pngerr.Newf(pngerr.Benign, "tRNS", "%d alpha entries for %d palette entries", len(s.trans), len(s.palette)))
			s.trans = s.trans[:len(s.palette)]
		}
	} else if src.TransColor != nil && !src.ColorType.HasAlpha() {
		s.transColor = *src.TransColor
		s.hasKey = true
	}

	s.setFlags()
	s.initGamma()
	s.resolve()
	if src.ColorType.IsPalette() {
		s.initPalette()
	} else {
		s.initRGB()
	}
	s.detectGrayBackground()
	s.adjustBackgroundDepth()
	s.initTables()
	s.initPaletteShift()
	if s.flags.Has(FlagQuantize) {
		q, err := newQuantizer(cfg.Quantize, s.palette)
		if err != nil {
			return nil, err
		}
		s.quant = q
	}
	s.buildStages()
	s.out, s.maxDepth = s.transformInfo(src.Info())

	glog.V(1).Infof("transform: session %s/%d flags=%v out=%v", src.ColorType, src.BitDepth, s.flags, s.out)
	return s, nil
}

func (src Source) validate() error {
	if !src.ColorType.Valid() {
		return pngerr.Newf(pngerr.Format, "source", "invalid color type %d", src.ColorType)
	}
	if !row.ValidDepth(src.ColorType, src.BitDepth) {
		return pngerr.Newf(pngerr.Format, "source", "invalid bit depth %d for %v", src.BitDepth, src.ColorType)
	}
	if src.ColorType.IsPalette() {
		if len(src.Palette) == 0 {
			return pngerr.Newf(pngerr.Format, "source", "palette image without palette")
		}
		if len(src.Palette) > 256 {
			return pngerr.Newf(pngerr.Format, "source", "palette of %d entries", len(src.Palette))
		}
	}
	return nil
}

func (s *Session) setFlags() {
	c := &s.cfg
	var f Flags
	if c.Expand {
		f |= FlagExpand
	}
	if c.ExpandTRNS {
		f |= FlagExpand | FlagExpandTRNS
	}
	if c.Expand16 {
		f |= FlagExpand16 | FlagExpand | FlagExpandTRNS
	}
	if c.Scale16 {
		f |= FlagScale16
	} else if c.Strip16 {
		f |= FlagStrip16
	}
	if c.StripAlpha {
		f |= FlagStripAlpha
	}
	if c.GrayToRGB {
		// Gray to RGB only works on 8 and 16-bit samples.
		f |= FlagGrayToRGB | FlagExpand
	}
	if c.RGBToGray != nil {
		switch {
		case !s.src.ColorType.HasColor():
			glog.V(1).Info("transform: dropping rgb to gray for a gray image")
		case s.src.ColorType.IsPalette():
			f |= FlagRGBToGray | FlagExpand
		default:
			f |= FlagRGBToGray
		}
	}
	if bg := c.Background; bg != nil {
		f |= FlagCompose | FlagStripAlpha
		if bg.NeedExpand {
			f |= FlagBackgroundExpand
		}
		s.bg = bg.Color
		s.bgType = bg.GammaType
		s.bgGamma = bg.Gamma
	}

	s.screenGamma = c.ScreenGamma
	s.fileGamma = s.src.Gamma
	if c.AlphaMode != AlphaPNG {
		switch c.AlphaMode {
		case AlphaAssociated:
			f |= FlagCompose
			s.screenGamma = gamma.Unity
		case AlphaOptimized:
			f |= FlagCompose | FlagOptimizeAlpha
		case AlphaBroken:
			f |= FlagCompose | FlagEncodeAlpha
		}
		if s.screenGamma == 0 {
			s.screenGamma = gamma.Display
		}
		if s.fileGamma == 0 {
			s.fileGamma = gamma.Reciprocal(s.screenGamma)
		}
		// Premultiplication is compositing on black.
		s.bg = row.Color16{}
		s.bgType = BackgroundFile
		s.bgGamma = s.fileGamma
	}

	// A color key must become alpha before rgb to gray drops the color
	// it is matched on.
	if f.Has(FlagRGBToGray|FlagCompose) && s.hasKey {
		f |= FlagExpand | FlagExpandTRNS
	}

	if c.Quantize != nil {
		f |= FlagQuantize
	}
	if c.InvertMono {
		f |= FlagInvertMono
	}
	if c.InvertAlpha {
		f |= FlagInvertAlpha
	}
	if c.Unshift != nil {
		f |= FlagShift
		s.unshift = *c.Unshift
	}
	if c.Unpack {
		f |= FlagUnpack
	}
	if c.BGR {
		f |= FlagBGR
	}
	if c.PackSwap {
		f |= FlagPackSwap
	}
	if c.Filler != nil {
		f |= FlagFiller
		if c.Filler.AddAlpha {
			f |= FlagAddAlpha
		}
	}
	if c.SwapAlpha {
		f |= FlagSwapAlpha
	}
	if c.SwapBytes {
		f |= FlagSwapBytes
	}
	if c.Hook != nil {
		f |= FlagHook
	}
	s.flags = f
}

// initGamma settles the file and screen gamma pair and decides whether
// an overall gamma correction is needed.
func (s *Session) initGamma() {
	correct := false
	switch {
	case s.fileGamma != 0 && s.screenGamma != 0:
		correct = gamma.Needed(s.fileGamma, s.screenGamma)
	case s.fileGamma != 0:
		s.screenGamma = gamma.Reciprocal(s.fileGamma)
	case s.screenGamma != 0:
		s.fileGamma = gamma.Reciprocal(s.screenGamma)
	default:
		s.fileGamma, s.screenGamma = gamma.Unity, gamma.Unity
	}
	if correct {
		s.flags |= FlagGamma
	} else {
		s.flags &^= FlagGamma
	}
}

// resolve cancels transforms made pointless by others.
func (s *Session) resolve() {
	if s.flags.Has(FlagStripAlpha) && !s.flags.Has(FlagCompose) {
		s.flags &^= FlagEncodeAlpha | FlagExpandTRNS | FlagOptimizeAlpha
		s.trans = nil
		s.hasKey = false
	}
	if !gamma.Significant(s.screenGamma) {
		s.flags &^= FlagEncodeAlpha | FlagOptimizeAlpha
	}
	if s.flags.Has(FlagRGBToGray) {
		s.setCoefficients()
	}
}

func (s *Session) setCoefficients() {
	s.redCoeff, s.greenCoeff = defaultRedCoeff, defaultGreenCoeff
	r, g := s.cfg.RGBToGray.Red, s.cfg.RGBToGray.Green
	if r <= 0 && g <= 0 {
		return
	}
	if r < 0 || g < 0 || r+g > gamma.Unity {
		s.rep.Warn(pngerr.Newf(pngerr.Benign, "rgb to gray", "coefficients %d+%d exceed 1.0, using defaults", r, g))
		return
	}
	s.redCoeff = uint32(int64(r) * 32768 / int64(gamma.Unity))
	s.greenCoeff = uint32(int64(g) * 32768 / int64(gamma.Unity))
}

func (s *Session) initPalette() {
	hasAlpha, hasTransparency := false, false
	for _, a := range s.trans {
		if a == 0xff {
			continue
		}
		hasTransparency = true
		if a != 0 {
			hasAlpha = true
			break
		}
	}
	if !hasAlpha {
		s.flags &^= FlagEncodeAlpha | FlagOptimizeAlpha
		if !hasTransparency {
			s.flags &^= FlagCompose | FlagBackgroundExpand
		}
	}
	if s.flags.Has(FlagBackgroundExpand) {
		i := int(s.bg.Index)
		if i >= len(s.palette) {
			s.rep.Warn(pngerr.New(pngerr.Benign, "background", pngerr.ErrPaletteIndex))
			i = 0
		}
		p := s.palette[i]
		s.bg.R, s.bg.G, s.bg.B = uint16(p.R), uint16(p.G), uint16(p.B)
	}
}

// expandScale maps a sample of depth d below 8 to its 8-bit equivalent
// by multiplication.
func expandScale(d uint8) uint16 {
	switch d {
	case 1:
		return 0xff
	case 2:
		return 0x55
	case 4:
		return 0x11
	}
	return 1
}

func (s *Session) initRGB() {
	ct := s.src.ColorType
	if !ct.HasAlpha() {
		s.flags &^= FlagEncodeAlpha | FlagOptimizeAlpha
		if !s.hasKey {
			s.flags &^= FlagCompose | FlagBackgroundExpand
		}
	}
	d := s.src.BitDepth
	if !ct.HasColor() && d < 8 && s.flags.Has(FlagExpand) {
		mask := uint16(1)<<d - 1
		scale := expandScale(d)
		if s.flags.Has(FlagBackgroundExpand) {
			s.bg.Gray = (s.bg.Gray & mask) * scale
		}
		if s.hasKey {
			s.transColor.Gray = (s.transColor.Gray & mask) * scale
		}
	}
	if !ct.HasColor() && s.flags.Has(FlagBackgroundExpand) {
		s.bg.R, s.bg.G, s.bg.B = s.bg.Gray, s.bg.Gray, s.bg.Gray
	}
	// Gray rows may be promoted to RGB before the key is matched.
	if !ct.HasColor() && s.hasKey {
		k := &s.transColor
		k.R, k.G, k.B = k.Gray, k.Gray, k.Gray
	}
}

// detectGrayBackground decides whether gray to RGB can wait until after
// compositing. Gray images compose in gray unless the background has
// color.
func (s *Session) detectGrayBackground() {
	compose := s.flags.Has(FlagCompose)
	if !s.src.ColorType.HasColor() {
		s.bgGray = !compose || s.flags.Has(FlagBackgroundExpand) || s.bg.IsGray()
		if compose && s.bgGray {
			s.bg.R, s.bg.G, s.bg.B = s.bg.Gray, s.bg.Gray, s.bg.Gray
		}
		return
	}
	switch {
	case compose && s.bg.IsGray():
		s.bgGray = true
		s.bg.Gray = s.bg.R
	case compose && s.flags.Has(FlagRGBToGray):
		b := s.bg
		bc := 32768 - s.redCoeff - s.greenCoeff
		s.bg.Gray = uint16((s.redCoeff*uint32(b.R) + s.greenCoeff*uint32(b.G) + bc*uint32(b.B) + 16384) >> 15)
	}
}

func div257(v uint16) uint16 {
	return uint16((uint32(v)*255 + 32895) >> 16)
}

// adjustBackgroundDepth moves a background given in output depth to the
// depth compositing runs at, which is before any 16/8 conversion.
func (s *Session) adjustBackgroundDepth() {
	f := s.flags
	if !f.Has(FlagCompose) || f.Has(FlagBackgroundExpand) {
		return
	}
	b := &s.bg
	switch {
	case f.Has(FlagExpand16) && s.src.BitDepth != 16:
		b.R, b.G, b.B, b.Gray = div257(b.R), div257(b.G), div257(b.B), div257(b.Gray)
	case f.Any(FlagScale16|FlagStrip16) && s.src.BitDepth == 16:
		b.R, b.G, b.B, b.Gray = b.R*257, b.G*257, b.B*257, b.Gray*257
	}
}

// composeDepth is the sample depth of rows when compose runs.
func (s *Session) composeDepth() uint8 {
	switch {
	case s.src.ColorType.IsPalette():
		return 8
	case s.src.BitDepth < 8 && s.flags.Has(FlagExpand):
		return 8
	}
	return s.src.BitDepth
}

// correctSample applies g to a sample of the given depth. Depths below 8
// go through the 8-bit curve.
func correctSample(v uint16, g gamma.Fixed, depth uint8) uint16 {
	if depth >= 8 {
		return gamma.Correct(v, g, depth)
	}
	m := uint16(1)<<depth - 1
	v8 := uint8((v & m) * expandScale(depth))
	return uint16(gamma.Correct8(v8, g) >> (8 - depth))
}

// backgroundGammas returns the corrections from the background encoding
// to linear (g) and to the screen (gs).
func (s *Session) backgroundGammas() (g, gs gamma.Fixed) {
	switch s.bgType {
	case BackgroundScreen:
		return s.screenGamma, gamma.Unity
	case BackgroundFile:
		return gamma.Reciprocal(s.fileGamma), gamma.Reciprocal2(s.fileGamma, s.screenGamma)
	case BackgroundUnique:
		return gamma.Reciprocal(s.bgGamma), gamma.Reciprocal2(s.bgGamma, s.screenGamma)
	}
	return gamma.Unity, gamma.Unity
}

func (s *Session) needTables() bool {
	f := s.flags
	file, screen := s.fileGamma, s.screenGamma
	sig := gamma.Significant(file) || gamma.Significant(screen)
	switch {
	case f.Has(FlagGamma):
		return true
	case f.Has(FlagRGBToGray) && sig:
		return true
	case f.Has(FlagCompose) && (sig || (s.bgType == BackgroundUnique && gamma.Significant(s.bgGamma))):
		return true
	case f.Has(FlagOptimizeAlpha) && gamma.Significant(screen):
		return true
	}
	return false
}

func (s *Session) initTables() {
	pal := s.src.ColorType.IsPalette()
	if !s.needTables() {
		if s.flags.Has(FlagCompose) && pal {
			s.composePalette()
			s.flags &^= FlagCompose
		}
		return
	}
	var sig uint8
	if s.src.SigBits != nil {
		sig = s.src.SigBits.Max(s.src.ColorType)
	}
	s.tables = gamma.Build(gamma.Params{
		File:     s.fileGamma,
		Screen:   s.screenGamma,
		Depth:    s.src.BitDepth,
		SigBits:  sig,
		Linear:   s.flags.Any(FlagCompose | FlagRGBToGray),
		Reduce16: s.flags.Any(FlagScale16 | FlagStrip16),
	})

	switch {
	case s.flags.Has(FlagCompose) && pal && !s.flags.Has(FlagRGBToGray):
		s.composePaletteGamma()
		s.flags &^= FlagCompose | FlagGamma
	case s.flags.Has(FlagCompose):
		s.backgroundToScreen()
		if s.flags.Has(FlagRGBToGray) {
			if s.cfg.LegacyGrayCompose {
				s.rep.Warn(pngerr.Newf(pngerr.Benign, "compose", "gamma, background and rgb to gray together correct gamma twice"))
			} else if s.alphaAtCompose() {
				s.linearGray = s.tables.HasLinear(s.composeDepth())
			}
		}
	case pal && !(s.flags.Has(FlagExpand) && s.flags.Has(FlagRGBToGray)):
		// Rgb to gray needs the uncorrected palette.
		t := s.tables.Table
		for i, p := range s.palette {
			s.palette[i] = row.Entry{R: t[p.R], G: t[p.G], B: t[p.B]}
		}
		s.flags &^= FlagGamma
	}
}

// alphaAtCompose reports whether rows carry an alpha channel when they
// reach compose.
func (s *Session) alphaAtCompose() bool {
	switch {
	case s.src.ColorType.HasAlpha():
		return true
	case s.src.ColorType.IsPalette():
		return s.flags.Has(FlagExpand) && len(s.trans) > 0
	}
	return s.hasKey && s.flags.Has(FlagExpandTRNS)
}

// backgroundToScreen derives the screen and linear forms of the
// background of a gray or RGB image.
func (s *Session) backgroundToScreen() {
	g, gs := s.backgroundGammas()
	gSig, gsSig := gamma.Significant(g), gamma.Significant(gs)
	depth := s.composeDepth()
	raw := s.bg
	s.bg1 = raw
	if gSig {
		s.bg1.Gray = correctSample(raw.Gray, g, depth)
	}
	if gsSig {
		s.bg.Gray = correctSample(raw.Gray, gs, depth)
	}
	if raw.IsGray() && raw.R == raw.Gray {
		s.bg1.R, s.bg1.G, s.bg1.B = s.bg1.Gray, s.bg1.Gray, s.bg1.Gray
		s.bg.R, s.bg.G, s.bg.B = s.bg.Gray, s.bg.Gray, s.bg.Gray
	} else {
		if gSig {
			s.bg1.R = correctSample(raw.R, g, depth)
			s.bg1.G = correctSample(raw.G, g, depth)
			s.bg1.B = correctSample(raw.B, g, depth)
		}
		if gsSig {
			s.bg.R = correctSample(raw.R, gs, depth)
			s.bg.G = correctSample(raw.G, gs, depth)
			s.bg.B = correctSample(raw.B, gs, depth)
		}
	}
	s.bgType = BackgroundScreen
	glog.V(2).Infof("transform: background screen=%+v linear=%+v", s.bg, s.bg1)
}

func (s *Session) paletteBackgrounds() (back, back1 row.Entry) {
	raw := row.Entry{R: uint8(s.bg.R), G: uint8(s.bg.G), B: uint8(s.bg.B)}
	t := s.tables
	if s.bgType == BackgroundFile {
		back = row.Entry{R: t.Table[raw.R], G: t.Table[raw.G], B: t.Table[raw.B]}
		back1 = row.Entry{R: t.To1[raw.R], G: t.To1[raw.G], B: t.To1[raw.B]}
		return back, back1
	}
	g, gs := s.backgroundGammas()
	back, back1 = raw, raw
	if gamma.Significant(gs) {
		back = row.Entry{R: gamma.Correct8(raw.R, gs), G: gamma.Correct8(raw.G, gs), B: gamma.Correct8(raw.B, gs)}
	}
	if gamma.Significant(g) {
		back1 = row.Entry{R: gamma.Correct8(raw.R, g), G: gamma.Correct8(raw.G, g), B: gamma.Correct8(raw.B, g)}
	}
	return back, back1
}

// composePaletteGamma composes transparent palette entries against the
// background in linear space and gamma-corrects the opaque ones, so rows
// need neither stage.
func (s *Session) composePaletteGamma() {
	back, back1 := s.paletteBackgrounds()
	t := s.tables
	for i, p := range s.palette {
		if i >= len(s.trans) || s.trans[i] == 0xff {
			s.palette[i] = row.Entry{R: t.Table[p.R], G: t.Table[p.G], B: t.Table[p.B]}
			continue
		}
		a := s.trans[i]
		if a == 0 {
			s.palette[i] = back
			continue
		}
		s.palette[i] = row.Entry{
			R: t.From1[composite8(t.To1[p.R], a, back1.R)],
			G: t.From1[composite8(t.To1[p.G], a, back1.G)],
			B: t.From1[composite8(t.To1[p.B], a, back1.B)],
		}
	}
}

func (s *Session) composePalette() {
	back := row.Entry{R: uint8(s.bg.R), G: uint8(s.bg.G), B: uint8(s.bg.B)}
	for i, a := range s.trans {
		p := s.palette[i]
		switch a {
		case 0:
			s.palette[i] = back
		case 0xff:
		default:
			s.palette[i] = row.Entry{
				R: composite8(p.R, a, back.R),
				G: composite8(p.G, a, back.G),
				B: composite8(p.B, a, back.B),
			}
		}
	}
}

// initPaletteShift applies sBIT to the palette itself when rows stay
// indexed.
func (s *Session) initPaletteShift() {
	f := s.flags
	if !f.Has(FlagShift) || f.Has(FlagExpand) || !s.src.ColorType.IsPalette() {
		return
	}
	s.flags &^= FlagShift
	shift := func(v, sig uint8) uint8 {
		if n := 8 - int(sig); n > 0 && n < 8 {
			return v >> uint(n)
		}
		return v
	}
	for i, p := range s.palette {
		s.palette[i] = row.Entry{
			R: shift(p.R, s.unshift.R),
			G: shift(p.G, s.unshift.G),
			B: shift(p.B, s.unshift.B),
		}
	}
}

// gammaInRows reports whether the separate gamma stage runs: rgb to gray
// and compose do their own correction and palettes are corrected up
// front.
func (s *Session) gammaInRows() bool {
	f := s.flags
	if !f.Has(FlagGamma) || f.Has(FlagRGBToGray) {
		return false
	}
	if f.Has(FlagCompose) && (len(s.trans) != 0 || s.hasKey || s.src.ColorType.HasAlpha()) {
		return false
	}
	return !s.src.ColorType.IsPalette()
}

func (s *Session) buildStages() {
	f := s.flags
	add := func(on bool, name string, run func(*row.Info, []byte) error) {
		if on {
			s.stages = append(s.stages, stage{name, run})
		}
	}
	noErr := func(fn func(*row.Info, []byte)) func(*row.Info, []byte) error {
		return func(i *row.Info, b []byte) error { fn(i, b); return nil }
	}
	compose := f.Has(FlagCompose)
	add(f.Has(FlagExpand), "expand", noErr(s.expand))
	add(f.Has(FlagStripAlpha) && !compose, "strip-alpha", noErr(stripAlpha))
	add(f.Has(FlagRGBToGray), "rgb-to-gray", s.rgbToGray)
	add(f.Has(FlagGrayToRGB) && !s.bgGray, "gray-to-rgb", noErr(grayToRGB))
	add(compose, "compose", noErr(s.compose))
	add(s.gammaInRows(), "gamma", noErr(s.correctGamma))
	add(f.Has(FlagStripAlpha) && compose, "strip-alpha", noErr(stripAlpha))
	add(f.Has(FlagEncodeAlpha), "encode-alpha", noErr(s.encodeAlpha))
	add(f.Has(FlagScale16), "scale-16", noErr(scale16))
	add(f.Has(FlagStrip16), "strip-16", noErr(chop16))
	add(f.Has(FlagQuantize), "quantize", noErr(s.quant.apply))
	add(f.Has(FlagExpand16), "expand-16", noErr(expand16))
	add(f.Has(FlagGrayToRGB) && s.bgGray, "gray-to-rgb", noErr(grayToRGB))
	add(f.Has(FlagInvertMono), "invert-mono", noErr(invertMono))
	add(f.Has(FlagInvertAlpha), "invert-alpha", noErr(invertAlpha))
	add(f.Has(FlagShift), "unshift", noErr(s.unshiftRow))
	add(f.Has(FlagUnpack), "unpack", noErr(unpack))
	add(s.src.ColorType.IsPalette() && !f.Has(FlagExpand), "check-palette", noErr(s.checkPalette))
	add(f.Has(FlagBGR), "bgr", noErr(bgr))
	add(f.Has(FlagPackSwap), "packswap", noErr(packSwap))
	add(f.Has(FlagFiller), "filler", noErr(s.addFiller))
	add(f.Has(FlagSwapAlpha), "swap-alpha", noErr(readSwapAlpha))
	add(f.Has(FlagSwapBytes), "swap-bytes", noErr(swapBytes))
	add(f.Has(FlagHook), "hook", s.runHook)
}

// Apply runs every enabled stage over one unfiltered row. buf must be at
// least BufferSize(info.Width) bytes; info is updated to the shape of the
// result, which occupies buf[:info.RowBytes].
func (s *Session) Apply(info *row.Info, buf []byte) error {
	if need := s.BufferSize(info.Width); len(buf) < need {
		return pngerr.Newf(pngerr.Internal, "transform", "row buffer %d bytes, need %d", len(buf), need)
	}
	for _, st := range s.stages {
		if err := st.run(info, buf); err != nil {
			return fmt.Errorf("transform %s: %w", st.name, err)
		}
	}
	return nil
}

func (s *Session) runHook(info *row.Info, buf []byte) error {
	if err := s.cfg.Hook(info, buf[:s.BufferSize(info.Width)]); err != nil {
		return err
	}
	if d := s.cfg.HookDepth; d != 0 {
		info.BitDepth = d
	}
	if c := s.cfg.HookChannels; c != 0 {
		info.Channels = c
	}
	info.Recompute()
	return nil
}

// BufferSize is the number of bytes a row of width pixels may need at
// any stage.
func (s *Session) BufferSize(width uint32) int {
	return row.Bytes(width, s.maxDepth)
}

// Output is the shape of transformed rows at the image width.
func (s *Session) Output() row.Info { return s.out }

// OutputFor is the shape of transformed rows of the given width, as
// produced for interlace passes.
func (s *Session) OutputFor(width uint32) row.Info {
	o := s.out
	o.SetWidth(width)
	return o
}

// Flags returns the transforms left enabled after finalization.
func (s *Session) Flags() Flags { return s.flags }

// Stages names the row stages in the order they run.
func (s *Session) Stages() []string {
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.name
	}
	return names
}

// HadColor reports whether rgb to gray has seen a pixel whose channels
// differ.
func (s *Session) HadColor() bool { return s.hadColor }

// Palette returns the palette matching output indices: the quantized
// palette, or the image palette after any compositing and correction.
func (s *Session) Palette() []row.Entry {
	if s.quant != nil {
		return s.quant.palette
	}
	return s.palette
}

// Background returns the background in screen encoding and in linear
// form.
func (s *Session) Background() (screen, linear row.Color16) { return s.bg, s.bg1 }

// Gamma returns the file and screen gamma the session settled on.
func (s *Session) Gamma() (file, screen gamma.Fixed) { return s.fileGamma, s.screenGamma }

// Tables returns the gamma tables, nil when no correction is needed.
func (s *Session) Tables() *gamma.Tables { return s.tables }

func (s *Session) warnOnce(done *bool, err error) {
	if *done {
		return
	}
	*done = true
	s.rep.Warn(err)
}
