package transform

import "strings"

// Flags is the set of transforms a session has enabled after
// finalization. The order stages run in never depends on the order the
// flags were set in.
type Flags uint32

const (
	FlagExpand Flags = 1 << iota
	FlagExpandTRNS
	FlagStripAlpha
	FlagRGBToGray
	FlagGrayToRGB
	FlagCompose
	FlagBackgroundExpand
	FlagGamma
	FlagEncodeAlpha
	FlagOptimizeAlpha
	FlagScale16
	FlagStrip16
	FlagQuantize
	FlagExpand16
	FlagInvertMono
	FlagInvertAlpha
	FlagShift
	FlagUnpack
	FlagBGR
	FlagPackSwap
	FlagFiller
	FlagAddAlpha
	FlagSwapAlpha
	FlagSwapBytes
	FlagHook
)

var flagNames = []string{
	"expand", "expand-trns", "strip-alpha", "rgb-to-gray", "gray-to-rgb",
	"compose", "background-expand", "gamma", "encode-alpha", "optimize-alpha",
	"scale-16", "strip-16", "quantize", "expand-16", "invert-mono",
	"invert-alpha", "shift", "unpack", "bgr", "packswap", "filler",
	"add-alpha", "swap-alpha", "swap-bytes", "hook",
}

// Has reports whether every flag in g is set in f.
func (f Flags) Has(g Flags) bool { return f&g == g }

// Any reports whether at least one flag in g is set in f.
func (f Flags) Any(g Flags) bool { return f&g != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, n := range flagNames {
		if f&(1<<uint(i)) != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, "|")
}
