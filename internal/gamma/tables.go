package gamma

import (
	"math"

	"github.com/golang/glog"
)

// Table16 is a two-level 16-bit table: the first index is the low byte
// shifted right by Shift, the second the high byte.
type Table16 [][]uint16

// Tables holds every lookup table one session needs. Tables are
// immutable after Build.
type Tables struct {
	// File to screen, file to linear, linear to screen, 8-bit.
	Table, To1, From1 []uint8
	// The same for 16-bit samples.
	Table16, To1_16, From1_16 Table16
	// Number of low bits dropped when indexing the 16-bit tables.
	Shift uint
}

// Params selects which tables Build produces.
type Params struct {
	File   Fixed // encoding gamma of the file (e.g. 45455)
	Screen Fixed // display exponent (e.g. 220000)
	Depth  uint8 // sample depth the tables serve; 16 builds the 16-bit set
	// SigBits is the largest significant-bit count of the color channels,
	// 0 when unknown; it lets 16-bit tables drop insignificant low bits.
	SigBits uint8
	// Linear also builds the to-linear and from-linear pair, needed for
	// compositing and rgb-to-gray.
	Linear bool
	// Reduce16 builds the 16-bit main table for output that will be
	// scaled to 8 bits.
	Reduce16 bool
}

// maxGamma8 is the number of significant bits kept when 16-bit gamma
// output only needs 8-bit accuracy.
const maxGamma8 = 11

// Build constructs the tables described by p.
func Build(p Params) *Tables {
	t := &Tables{}
	if p.Depth <= 8 {
		t.Table = build8(Reciprocal2(p.File, p.Screen))
		if p.Linear {
			t.To1 = build8(Reciprocal(p.File))
			t.From1 = build8(fromLinear(p))
		}
		glog.V(2).Infof("gamma: built 8-bit tables file=%d screen=%d linear=%v", p.File, p.Screen, p.Linear)
		return t
	}

	var shift uint
	if p.SigBits > 0 && p.SigBits < 16 {
		shift = uint(16 - p.SigBits)
	}
	if p.Reduce16 && shift < 16-maxGamma8 {
		shift = 16 - maxGamma8
	}
	if shift > 8 {
		shift = 8
	}
	t.Shift = shift

	if p.Reduce16 {
		g := Unity
		if p.Screen > 0 {
			g = Product2(p.File, p.Screen)
		}
		t.Table16 = build16to8(shift, g)
	} else {
		t.Table16 = build16(shift, Reciprocal2(p.File, p.Screen))
	}
	if p.Linear {
		t.To1_16 = build16(shift, Reciprocal(p.File))
		t.From1_16 = build16(shift, fromLinear(p))
	}
	glog.V(2).Infof("gamma: built 16-bit tables shift=%d reduce=%v linear=%v", shift, p.Reduce16, p.Linear)
	return t
}

func fromLinear(p Params) Fixed {
	if p.Screen > 0 {
		return Reciprocal(p.Screen)
	}
	return p.File
}

func build8(g Fixed) []uint8 {
	table := make([]uint8, 256)
	sig := Significant(g)
	for i := range table {
		if sig {
			table[i] = Correct8(uint8(i), g)
		} else {
			table[i] = uint8(i)
		}
	}
	return table
}

func build16(shift uint, g Fixed) Table16 {
	num := 1 << (8 - shift)
	max := (1 << (16 - shift)) - 1
	maxBy2 := 1 << (15 - shift)
	sig := Significant(g)
	table := make(Table16, num)
	for i := 0; i < num; i++ {
		sub := make([]uint16, 256)
		for j := 0; j < 256; j++ {
			ig := (j << (8 - shift)) + i
			if sig {
				d := math.Floor(65535*math.Pow(float64(ig)/float64(max), float64(g)*1e-5) + .5)
				sub[j] = uint16(d)
			} else {
				if shift != 0 {
					ig = (ig*65535 + maxBy2) / max
				}
				sub[j] = uint16(ig)
			}
		}
		table[i] = sub
	}
	return table
}

// build16to8 maps 16-bit input to 16-bit output values of the form i*257,
// so that a later 16 to 8 reduction is exact. It works from the output
// side: for each 8-bit output it finds the input bound via the inverse
// gamma g.
func build16to8(shift uint, g Fixed) Table16 {
	num := 1 << (8 - shift)
	max := 1 << (16 - shift)
	table := make(Table16, num)
	for i := range table {
		table[i] = make([]uint16, 256)
	}
	last := 0
	for i := 0; i < 255; i++ {
		out := uint16(i * 257)
		bound := int(Correct16(out+128, g))
		bound = (bound*max+32768)/65535 + 1
		for last < bound {
			table[last&(0xff>>shift)][last>>(8-shift)] = out
			last++
		}
	}
	for last < num<<8 {
		table[last&(0xff>>shift)][last>>(8-shift)] = 65535
		last++
	}
	return table
}

// Lookup16 corrects a 16-bit sample through tab.
func (t *Tables) Lookup16(tab Table16, v uint16) uint16 {
	return tab[(v&0xff)>>t.Shift][v>>8]
}

// HasLinear reports whether the to-linear and from-linear tables for the
// given depth are present.
func (t *Tables) HasLinear(depth uint8) bool {
	if t == nil {
		return false
	}
	if depth == 16 {
		return t.To1_16 != nil && t.From1_16 != nil
	}
	return t.To1 != nil && t.From1 != nil
}

// HasMain reports whether the file-to-screen table for depth is present.
func (t *Tables) HasMain(depth uint8) bool {
	if t == nil {
		return false
	}
	if depth == 16 {
		return t.Table16 != nil
	}
	return t.Table != nil
}
