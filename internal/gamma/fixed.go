// Package gamma provides fixed-point gamma arithmetic and the 8-bit and
// two-level 16-bit lookup tables used by the read pipeline.
package gamma

import "math"

// Fixed is a gamma value scaled by 100000, the encoding of the gAMA chunk.
type Fixed int32

// Unity is gamma 1.0.
const Unity Fixed = 100000

// Threshold is how far from Unity a gamma must be to be worth applying.
const Threshold Fixed = 5000

// Common values.
const (
	// SRGB is the file gamma implied by an sRGB chunk (1/2.2).
	SRGB Fixed = 45455
	// Display is the usual screen exponent 2.2.
	Display Fixed = 220000
)

// FromFloat converts g to fixed point, rounding to nearest.
func FromFloat(g float64) Fixed {
	return fixedOrZero(math.Floor(g*float64(Unity) + .5))
}

// Float returns f as a float64.
func (f Fixed) Float() float64 { return float64(f) / float64(Unity) }

func fixedOrZero(r float64) Fixed {
	if r > math.MaxInt32 || r < math.MinInt32 {
		return 0
	}
	return Fixed(r)
}

// Significant reports whether applying g would change anything.
func Significant(g Fixed) bool {
	return g < Unity-Threshold || g > Unity+Threshold
}

// Reciprocal returns 1/a in fixed point, or 0 on overflow.
func Reciprocal(a Fixed) Fixed {
	if a == 0 {
		return 0
	}
	return fixedOrZero(math.Floor(1e10/float64(a) + .5))
}

// Reciprocal2 returns 1/(a*b) in fixed point, or 0 on overflow.
func Reciprocal2(a, b Fixed) Fixed {
	if a == 0 || b == 0 {
		return 0
	}
	r := 1e15 / float64(a)
	r /= float64(b)
	return fixedOrZero(math.Floor(r + .5))
}

// Product2 returns a*b in fixed point, or 0 on overflow.
func Product2(a, b Fixed) Fixed {
	r := float64(a) * 1e-5 * float64(b)
	return fixedOrZero(math.Floor(r + .5))
}

// Needed reports whether file data encoded with fileGamma shown on a
// screen with exponent screenGamma needs correction: their product
// deviates from 1.0 by more than Threshold.
func Needed(fileGamma, screenGamma Fixed) bool {
	if fileGamma <= 0 || screenGamma <= 0 {
		return false
	}
	return Significant(Product2(screenGamma, fileGamma))
}

// Correct8 raises an 8-bit sample to the power g.
func Correct8(v uint8, g Fixed) uint8 {
	if v == 0 || v == 255 {
		return v
	}
	r := math.Floor(255*math.Pow(float64(v)/255, float64(g)*1e-5) + .5)
	return uint8(r)
}

// Correct16 raises a 16-bit sample to the power g.
func Correct16(v uint16, g Fixed) uint16 {
	if v == 0 || v == 65535 {
		return v
	}
	r := math.Floor(65535*math.Pow(float64(v)/65535, float64(g)*1e-5) + .5)
	return uint16(r)
}

// Correct applies g to a sample at the given bit depth; depths up to 8
// use the 8-bit curve.
func Correct(v uint16, g Fixed, depth uint8) uint16 {
	if depth == 16 {
		return Correct16(v, g)
	}
	return uint16(Correct8(uint8(v), g))
}
