package interlace

import "github.com/golang/glog"

// bitPixel reads the depth-bit pixel x from a packed row. With swapped
// set the leftmost pixel sits in the low-order bits of each byte.
func bitPixel(r []byte, x int, depth int, swapped bool) uint8 {
	per := 8 / depth
	b := r[x/per]
	k := x % per
	shift := 8 - depth*(k+1)
	if swapped {
		shift = depth * k
	}
	return (b >> uint(shift)) & (1<<uint(depth) - 1)
}

func setBitPixel(r []byte, x int, depth int, swapped bool, v uint8) {
	per := 8 / depth
	i := x / per
	k := x % per
	shift := 8 - depth*(k+1)
	if swapped {
		shift = depth * k
	}
	mask := uint8(1<<uint(depth)-1) << uint(shift)
	r[i] = r[i]&^mask | (v<<uint(shift))&mask
}

// Compact packs, in place, the pixels of pass p out of a full image row
// of width pixels and returns the pass width. The write index never
// passes the read index, so a single buffer suffices.
func Compact(r []byte, width uint32, pixelDepth uint8, p int) uint32 {
	ps := Adam7[p]
	out := Cols(width, p)
	depth := int(pixelDepth)
	if depth < 8 {
		j := 0
		for i := ps.XStart; i < int(width); i += ps.XStep {
			setBitPixel(r, j, depth, false, bitPixel(r, i, depth, false))
			j++
		}
		// Zero the unused low bits of the last byte.
		if used := (j * depth) % 8; used != 0 {
			r[j*depth/8] &= 0xff << uint(8-used)
		}
		return out
	}
	n := depth >> 3
	dp := 0
	for i := ps.XStart; i < int(width); i += ps.XStep {
		sp := i * n
		if dp != sp {
			copy(r[dp:dp+n], r[sp:sp+n])
		}
		dp += n
	}
	return out
}

// ExpandedWidth is the width of a pass row after ExpandRow.
func ExpandedWidth(passWidth uint32, p int) uint32 {
	return passWidth * uint32(Adam7[p].XStep)
}

// ExpandRow replicates, in place, each of the passWidth pixels of a pass
// row XStep times so that pixel j covers expanded columns
// [j*XStep, (j+1)*XStep). r must hold ExpandedWidth bytes' worth of
// pixels. The walk runs from the last pixel to the first so sources are
// read before they are overwritten. It returns the expanded width.
func ExpandRow(r []byte, passWidth uint32, pixelDepth uint8, p int, packSwapped bool) uint32 {
	step := Adam7[p].XStep
	final := ExpandedWidth(passWidth, p)
	if step == 1 || passWidth == 0 {
		return final
	}
	depth := int(pixelDepth)
	if depth < 8 {
		for j := int(passWidth) - 1; j >= 0; j-- {
			v := bitPixel(r, j, depth, packSwapped)
			for k := step - 1; k >= 0; k-- {
				setBitPixel(r, j*step+k, depth, packSwapped, v)
			}
		}
		return final
	}
	n := depth >> 3
	for j := int(passWidth) - 1; j >= 0; j-- {
		sp := j * n
		for k := step - 1; k >= 0; k-- {
			dp := (j*step + k) * n
			if dp != sp {
				copy(r[dp:dp+n], r[sp:sp+n])
			}
		}
	}
	return final
}

// Mode selects how an expanded pass row lands in the destination row.
type Mode uint8

const (
	// Sparkle writes only the pixels that belong to the pass.
	Sparkle Mode = iota
	// Rectangle writes each pass pixel over its whole block, giving a
	// blocky preview that later passes refine.
	Rectangle
)

func (m Mode) covers(p int, x int) bool {
	ps := Adam7[p]
	if m == Rectangle {
		return x%ps.XStep >= ps.XStart
	}
	return x%ps.XStep == ps.XStart
}

// Combine copies into dst the pixels of the expanded pass row src that
// the mode assigns to pass p, for the first width pixels. Pixels outside
// the mask are left untouched.
func Combine(dst, src []byte, width uint32, pixelDepth uint8, p int, m Mode, packSwapped bool) {
	depth := int(pixelDepth)
	if depth < 8 {
		for x := 0; x < int(width); x++ {
			if m.covers(p, x) {
				setBitPixel(dst, x, depth, packSwapped, bitPixel(src, x, depth, packSwapped))
			}
		}
		return
	}
	n := depth >> 3
	for x := 0; x < int(width); x++ {
		if m.covers(p, x) {
			copy(dst[x*n:(x+1)*n], src[x*n:(x+1)*n])
		}
	}
	glog.V(3).Infof("interlace: combined pass %d width %d mode %d", p, width, m)
}
