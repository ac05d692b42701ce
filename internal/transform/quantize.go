package transform

import (
	"slices"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// Bits per channel of the full quantization lookup.
const (
	quantRedBits   = 5
	quantGreenBits = 5
	quantBlueBits  = 5
)

type quantizer struct {
	palette []row.Entry
	// index maps old palette indices to reduced ones; nil when the
	// palette was not reduced.
	index []uint8
	// lookup maps a 5-5-5 RGB cell to the nearest palette entry.
	lookup []uint8
}

func colorDistance(a, b row.Entry) int {
	return absInt(int(a.R)-int(b.R)) + absInt(int(a.G)-int(b.G)) + absInt(int(a.B)-int(b.B))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func newQuantizer(q *Quantize, imagePalette []row.Entry) (*quantizer, error) {
	pal := q.Palette
	if pal == nil {
		pal = imagePalette
	}
	if len(pal) == 0 || len(pal) > 256 {
		return nil, pngerr.Newf(pngerr.Internal, "quantize", "palette of %d entries", len(pal))
	}
	qz := &quantizer{palette: slices.Clone(pal)}
	if q.MaxColors > 0 && len(pal) > q.MaxColors {
		var rep []int
		if len(q.Histogram) == len(pal) {
			rep = reduceByHistogram(pal, q.Histogram, q.MaxColors)
		} else {
			rep = reduceByMerging(pal, q.MaxColors)
		}
		qz.palette, qz.index = compactPalette(pal, rep)
		glog.V(1).Infof("transform: quantized palette %d -> %d colors", len(pal), len(qz.palette))
	}
	if q.Full {
		qz.lookup = buildLookup(qz.palette)
	}
	return qz, nil
}

// reduceByHistogram keeps the limit most used colors and maps every other
// entry to its nearest survivor. It returns, per entry, the index of the
// entry that represents it.
func reduceByHistogram(pal []row.Entry, hist []uint16, limit int) []int {
	order := make([]int, len(pal))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return int(hist[b]) - int(hist[a]) })
	keep := order[:limit]
	kept := make([]bool, len(pal))
	for _, i := range keep {
		kept[i] = true
	}
	rep := make([]int, len(pal))
	for i := range pal {
		if kept[i] {
			rep[i] = i
			continue
		}
		best, bestD := keep[0], -1
		for _, k := range keep {
			if d := colorDistance(pal[i], pal[k]); bestD < 0 || d < bestD {
				best, bestD = k, d
			}
		}
		rep[i] = best
	}
	return rep
}

// reduceByMerging repeatedly folds the later entry of the closest pair
// into the earlier one until limit entries remain.
func reduceByMerging(pal []row.Entry, limit int) []int {
	rep := make([]int, len(pal))
	alive := make([]bool, len(pal))
	for i := range rep {
		rep[i] = i
		alive[i] = true
	}
	for n := len(pal); n > limit; n-- {
		bi, bj, bd := -1, -1, -1
		for i := range pal {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < len(pal); j++ {
				if !alive[j] {
					continue
				}
				if d := colorDistance(pal[i], pal[j]); bd < 0 || d < bd {
					bi, bj, bd = i, j, d
				}
			}
		}
		alive[bj] = false
		for k := range rep {
			if rep[k] == bj {
				rep[k] = bi
			}
		}
	}
	return rep
}

func compactPalette(pal []row.Entry, rep []int) ([]row.Entry, []uint8) {
	pos := make([]int, len(pal))
	var out []row.Entry
	for i := range pal {
		if rep[i] == i {
			pos[i] = len(out)
			out = append(out, pal[i])
		}
	}
	index := make([]uint8, 256)
	for i := range pal {
		index[i] = uint8(pos[rep[i]])
	}
	return out, index
}

// buildLookup assigns every 5-5-5 cell the palette entry at the smallest
// distance, spreading each entry's distance over the whole cube.
func buildLookup(pal []row.Entry) []uint8 {
	const (
		numRed   = 1 << quantRedBits
		numGreen = 1 << quantGreenBits
		numBlue  = 1 << quantBlueBits
	)
	lookup := make([]uint8, numRed*numGreen*numBlue)
	distance := make([]uint8, len(lookup))
	for i := range distance {
		distance[i] = 0xff
	}
	for i, p := range pal {
		r := int(p.R >> (8 - quantRedBits))
		g := int(p.G >> (8 - quantGreenBits))
		b := int(p.B >> (8 - quantBlueBits))
		for ir := 0; ir < numRed; ir++ {
			dr := absInt(ir - r)
			indexR := ir << (quantBlueBits + quantGreenBits)
			for ig := 0; ig < numGreen; ig++ {
				dg := absInt(ig - g)
				dt := dr + dg
				dm := max(dr, dg)
				indexG := indexR | ig<<quantBlueBits
				for ib := 0; ib < numBlue; ib++ {
					db := absInt(ib - b)
					d := max(dm, db) + dt + db
					if di := indexG | ib; d < int(distance[di]) {
						distance[di] = uint8(d)
						lookup[di] = uint8(i)
					}
				}
			}
		}
	}
	return lookup
}

func lookupCell(r, g, b uint8) int {
	return int(r>>(8-quantRedBits))<<(quantGreenBits+quantBlueBits) |
		int(g>>(8-quantGreenBits))<<quantBlueBits |
		int(b>>(8-quantBlueBits))
}

// apply maps RGB rows through the lookup and palette rows through the
// reduction index. Only 8-bit rows are quantized.
func (q *quantizer) apply(info *row.Info, buf []byte) {
	if info.BitDepth != 8 {
		return
	}
	switch {
	case q.lookup != nil && (info.ColorType == row.RGB || info.ColorType == row.RGBA):
		px := int(info.Channels)
		for x := 0; x < int(info.Width); x++ {
			o := x * px
			buf[x] = q.lookup[lookupCell(buf[o], buf[o+1], buf[o+2])]
		}
		info.ColorType = row.Palette
		info.Channels = 1
		info.Recompute()
	case info.ColorType == row.Palette && q.index != nil:
		for x := 0; x < int(info.Width); x++ {
			buf[x] = q.index[buf[x]]
		}
	}
}
