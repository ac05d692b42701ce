// Package filter implements the five PNG scanline predictors, their
// inverse, and the encoder's minimum-sum-of-absolute-differences
// filter selector.
package filter

import (
	"fmt"

	"pngpipe.adpollak.net/internal/pngerr"
)

// Type is the per-row filter type byte, as per the PNG spec.
type Type uint8

const (
	None Type = iota
	Sub
	Up
	Average
	Paeth
	NumTypes = 5
)

func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Sub:
		return "Sub"
	case Up:
		return "Up"
	case Average:
		return "Average"
	case Paeth:
		return "Paeth"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Set is a bitmask of candidate filter types.
type Set uint8

const (
	SetNone    Set = 1 << None
	SetSub     Set = 1 << Sub
	SetUp      Set = 1 << Up
	SetAverage Set = 1 << Average
	SetPaeth   Set = 1 << Paeth
	SetAll         = SetNone | SetSub | SetUp | SetAverage | SetPaeth
)

// Has reports whether t is a candidate in s.
func (s Set) Has(t Type) bool { return t < NumTypes && s&(1<<t) != 0 }

// Only returns the single filter in s and true, or false when s holds
// zero or several filters.
func (s Set) Only() (Type, bool) {
	for t := None; t < NumTypes; t++ {
		if s == 1<<t {
			return t, true
		}
	}
	return None, false
}

// NeedsPrevious reports whether any candidate reads the previous row.
func (s Set) NeedsPrevious() bool {
	return s&(SetUp|SetAverage|SetPaeth) != 0
}

// paeth implements the Paeth predictor. Ties resolve to a, then b, then c.
func paeth(a, b, c uint8) uint8 {
	pc := int(c)
	pa := int(b) - pc
	pb := int(a) - pc
	pc = abs(pa + pb)
	pa = abs(pa)
	pb = abs(pb)
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Unfilter reverses filter ft in place on cur using the reconstructed
// previous row prev. Both rows exclude the filter-type byte and must be
// the same length. bpp is the byte distance to the left neighbour.
func Unfilter(ft Type, cur, prev []byte, bpp int) error {
	if len(prev) < len(cur) {
		return pngerr.Newf(pngerr.Internal, "unfilter", "previous row %d bytes, current %d", len(prev), len(cur))
	}
	switch ft {
	case None:
		// No-op.
	case Sub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case Up:
		for i := range cur {
			cur[i] += prev[i]
		}
	case Average:
		// The first bpp bytes have no left neighbour.
		n := min(bpp, len(cur))
		for i := 0; i < n; i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += uint8((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case Paeth:
		n := min(bpp, len(cur))
		for i := 0; i < n; i++ {
			cur[i] += prev[i]
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	default:
		return pngerr.New(pngerr.Format, "unfilter", fmt.Errorf("%w %d", pngerr.ErrBadFilter, uint8(ft)))
	}
	return nil
}

// UnfilterRow reads the filter-type byte at framed[0] and reconstructs
// framed[1:] in place against prev, which excludes its own type byte.
func UnfilterRow(framed, prev []byte, bpp int) error {
	if len(framed) == 0 {
		return pngerr.New(pngerr.Format, "unfilter", pngerr.ErrRowSize)
	}
	return Unfilter(Type(framed[0]), framed[1:], prev, bpp)
}

// Apply writes the ft-filtered form of cur into dst. dst, cur and prev
// exclude the filter-type byte. dst must not alias cur.
func Apply(ft Type, dst, cur, prev []byte, bpp int) {
	n := len(cur)
	switch ft {
	case None:
		copy(dst, cur)
	case Sub:
		copy(dst[:min(bpp, n)], cur)
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - cur[i-bpp]
		}
	case Up:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - prev[i]
		}
	case Average:
		for i := 0; i < min(bpp, n); i++ {
			dst[i] = cur[i] - prev[i]/2
		}
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - uint8((int(cur[i-bpp])+int(prev[i]))/2)
		}
	case Paeth:
		for i := 0; i < min(bpp, n); i++ {
			dst[i] = cur[i] - prev[i]
		}
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	}
}
