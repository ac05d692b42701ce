package row

// Entry is one palette entry.
type Entry struct {
	R, G, B uint8
}

// Color16 is a color given in whatever depth the context calls for:
// a palette index, a gray level or an RGB triple of up to 16 bits.
// It is the in-memory form of bKGD and of the tRNS color key.
type Color16 struct {
	Index   uint8
	R, G, B uint16
	Gray    uint16
}

// IsGray reports whether the RGB components are all equal.
func (c Color16) IsGray() bool { return c.R == c.G && c.G == c.B }

// SigBits holds the number of significant bits per channel, as stored
// in sBIT.
type SigBits struct {
	R, G, B, Gray, Alpha uint8
}

// Max returns the largest significant-bit count among the color
// channels (gray for gray images).
func (s SigBits) Max(c ColorType) uint8 {
	if !c.HasColor() {
		return s.Gray
	}
	return max(s.R, s.G, s.B)
}
