// Package transform implements the ordered per-row format conversions
// applied after unfiltering on read and before filtering on write.
//
// A read session is finalized once from the image's Source and a
// ReadConfig; its tables, background and palette are frozen from then on
// and every row goes through the same fixed sequence of stages.
package transform

import (
	"errors"
	"fmt"

	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// Source describes the image as stored in the file.
type Source struct {
	Width     uint32
	ColorType row.ColorType
	BitDepth  uint8

	Palette []row.Entry
	// Trans holds the tRNS alpha of palette entries; entries past its
	// end are opaque.
	Trans []uint8
	// TransColor is the tRNS color key of gray and RGB images, at the
	// file bit depth.
	TransColor *row.Color16

	// Gamma is the file gamma from gAMA or sRGB, 0 when unknown.
	Gamma   gamma.Fixed
	SigBits *row.SigBits
}

// Info returns the geometry of a file row.
func (s Source) Info() row.Info {
	return row.New(s.Width, s.ColorType, s.BitDepth)
}

// GammaType says how a background color is encoded.
type GammaType uint8

const (
	// BackgroundScreen colors are already in screen encoding.
	BackgroundScreen GammaType = iota + 1
	// BackgroundFile colors use the file's encoding, as bKGD does.
	BackgroundFile
	// BackgroundUnique colors use the gamma given in Background.Gamma.
	BackgroundUnique
)

// Background is the color partially transparent pixels are composed
// against.
type Background struct {
	Color     row.Color16
	GammaType GammaType
	Gamma     gamma.Fixed
	// NeedExpand means Color is in the file's format (a palette index, a
	// gray level at the file depth) rather than the output format.
	NeedExpand bool
}

// AlphaMode selects the alpha encoding of the output.
type AlphaMode uint8

const (
	// AlphaPNG keeps unassociated alpha, as stored in PNG.
	AlphaPNG AlphaMode = iota
	// AlphaAssociated premultiplies color by alpha in linear space and
	// outputs linear data.
	AlphaAssociated
	// AlphaOptimized premultiplies, gamma-encodes opaque pixels and leaves
	// partially transparent pixels linear.
	AlphaOptimized
	// AlphaBroken premultiplies in gamma-encoded space and encodes the
	// alpha channel with the screen gamma too.
	AlphaBroken
)

func (m AlphaMode) String() string {
	switch m {
	case AlphaPNG:
		return "png"
	case AlphaAssociated:
		return "associated"
	case AlphaOptimized:
		return "optimized"
	case AlphaBroken:
		return "broken"
	}
	return fmt.Sprintf("AlphaMode(%d)", uint8(m))
}

// RGBToGray configures color to gray conversion. Red and Green are
// luminance weights in units of 1/100000; blue takes the remainder. Zero
// or negative weights select the defaults 0.2126 and 0.7152.
type RGBToGray struct {
	Action     pngerr.Action
	Red, Green gamma.Fixed
}

// Default luminance coefficients over a 32768 denominator.
const (
	defaultRedCoeff   = 6968
	defaultGreenCoeff = 23434
)

// Quantize configures palette reduction.
type Quantize struct {
	// Palette is the target palette; nil uses the image palette.
	Palette   []row.Entry
	MaxColors int
	// Histogram gives per-entry usage counts for choosing which colors
	// survive the reduction.
	Histogram []uint16
	// Full maps RGB rows to the palette through a 5-5-5 lookup.
	Full bool
}

// Filler configures the extra channel added to gray and RGB rows on
// read, or stripped on write.
type Filler struct {
	Value  uint16
	Before bool
	// AddAlpha marks the added channel as alpha in the color type.
	AddAlpha bool
}

// Hook is a caller-supplied stage run last on read and first on write.
// It may change the row shape only as declared by HookDepth and
// HookChannels.
type Hook func(info *row.Info, data []byte) error

// ReadConfig selects the transforms a read session applies.
type ReadConfig struct {
	// Expand converts palette images to RGB, gray below 8 bits to 8 bits.
	Expand bool
	// ExpandTRNS turns a tRNS color key into a full alpha channel.
	ExpandTRNS bool
	// Expand16 widens 8-bit samples to 16 bits after all arithmetic.
	Expand16 bool
	// Scale16 reduces 16-bit samples to 8 bits exactly; Strip16 does the
	// same by dropping the low byte. Scale16 wins when both are set.
	Scale16, Strip16 bool

	StripAlpha bool
	GrayToRGB  bool
	RGBToGray  *RGBToGray
	Background *Background
	AlphaMode  AlphaMode

	// ScreenGamma is the display exponent, 0 for no gamma correction
	// unless an alpha mode implies one.
	ScreenGamma gamma.Fixed

	// LegacyGrayCompose reproduces the historical double gamma correction
	// when rgb to gray and compositing run together.
	LegacyGrayCompose bool

	Quantize *Quantize

	InvertMono  bool
	InvertAlpha bool
	// Unshift scales samples down to their significant bits.
	Unshift *row.SigBits
	// Unpack stores samples below 8 bits one per byte.
	Unpack    bool
	BGR       bool
	PackSwap  bool
	Filler    *Filler
	SwapAlpha bool
	SwapBytes bool

	Hook         Hook
	HookDepth    uint8
	HookChannels uint8

	// Reporter receives benign errors and warnings; nil logs them.
	Reporter pngerr.Reporter
}

var errConflictingAlpha = errors.New("alpha mode and background are mutually exclusive")

// Validate checks the configuration for contradictions.
func (c *ReadConfig) Validate() error {
	if c.AlphaMode != AlphaPNG && c.Background != nil {
		return pngerr.New(pngerr.Internal, "read config", errConflictingAlpha)
	}
	if c.AlphaMode > AlphaBroken {
		return pngerr.Newf(pngerr.Internal, "read config", "unknown alpha mode %d", c.AlphaMode)
	}
	if bg := c.Background; bg != nil {
		switch bg.GammaType {
		case BackgroundScreen, BackgroundFile:
		case BackgroundUnique:
			if bg.Gamma <= 0 {
				return pngerr.Newf(pngerr.Internal, "read config", "unique background gamma %d", bg.Gamma)
			}
		default:
			return pngerr.Newf(pngerr.Internal, "read config", "invalid background gamma type %d", bg.GammaType)
		}
	}
	if q := c.Quantize; q != nil && q.MaxColors <= 0 && !q.Full {
		return pngerr.Newf(pngerr.Internal, "read config", "quantize to %d colors", q.MaxColors)
	}
	if c.HookDepth != 0 {
		switch c.HookDepth {
		case 1, 2, 4, 8, 16:
		default:
			return pngerr.Newf(pngerr.Internal, "read config", "hook depth %d", c.HookDepth)
		}
	}
	if c.HookChannels > 4 {
		return pngerr.Newf(pngerr.Internal, "read config", "hook channels %d", c.HookChannels)
	}
	if c.ScreenGamma < 0 {
		return pngerr.Newf(pngerr.Internal, "read config", "screen gamma %d", c.ScreenGamma)
	}
	return nil
}

// WriteConfig selects the transforms applied to caller rows before they
// are filtered and compressed.
type WriteConfig struct {
	// Filler rows carry an extra channel that is stripped.
	Filler *Filler
	// Pack takes one sample per byte for depths below 8.
	Pack     bool
	PackSwap bool
	// SwapBytes takes 16-bit samples little-endian.
	SwapBytes bool
	// Shift replicates samples holding only their significant bits up to
	// the full bit depth.
	Shift       *row.SigBits
	SwapAlpha   bool
	InvertAlpha bool
	BGR         bool
	InvertMono  bool

	Hook Hook
}
