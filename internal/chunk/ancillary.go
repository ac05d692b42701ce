package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

type IHDR struct {
	Width             uint32
	Height            uint32
	BitDepth          uint8
	ColorType         uint8
	CompressionMethod uint8
	FilterMethod      uint8
	InterlaceMethod   uint8
}

// MaxDimension bounds IHDR width and height.
const MaxDimension = 1<<31 - 1

func ParseIHDR(data []byte) (IHDR, error) {
	if len(data) != 13 {
		return IHDR{}, pngerr.Newf(pngerr.Format, "IHDR", "invalid length for IHDR: %d", len(data))
	}
	h := IHDR{
		Width:             binary.BigEndian.Uint32(data[0:4]),
		Height:            binary.BigEndian.Uint32(data[4:8]),
		BitDepth:          data[8],
		ColorType:         data[9],
		CompressionMethod: data[10],
		FilterMethod:      data[11],
		InterlaceMethod:   data[12],
	}
	return h, h.Validate()
}

// Validate checks the header fields against the PNG rules and the
// limits of this implementation.
func (h IHDR) Validate() error {
	if h.Width == 0 || h.Height == 0 || h.Width > MaxDimension || h.Height > MaxDimension {
		return pngerr.Newf(pngerr.Format, "IHDR", "%w: %dx%d", pngerr.ErrTooLarge, h.Width, h.Height)
	}
	// The widest row, 16-bit RGBA plus the filter byte, must fit an int.
	if uint64(h.Width)*8+1 > uint64(int(^uint(0)>>1)) {
		return pngerr.Newf(pngerr.Format, "IHDR", "%w: width %d", pngerr.ErrTooLarge, h.Width)
	}
	ct := row.ColorType(h.ColorType)
	if !ct.Valid() {
		return pngerr.Newf(pngerr.Format, "IHDR", "invalid color type %d", h.ColorType)
	}
	if !row.ValidDepth(ct, h.BitDepth) {
		return pngerr.Newf(pngerr.Format, "IHDR", "invalid bit depth %d for %v", h.BitDepth, ct)
	}
	if h.CompressionMethod != 0 {
		return pngerr.Newf(pngerr.Format, "IHDR", "unknown compression method %d", h.CompressionMethod)
	}
	if h.FilterMethod != 0 {
		return pngerr.Newf(pngerr.Format, "IHDR", "unknown filter method %d", h.FilterMethod)
	}
	if h.InterlaceMethod > 1 {
		return pngerr.Newf(pngerr.Format, "IHDR", "unknown interlace method %d", h.InterlaceMethod)
	}
	return nil
}

// Marshal encodes the header as IHDR chunk data.
func (h IHDR) Marshal() []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint32(b[0:4], h.Width)
	binary.BigEndian.PutUint32(b[4:8], h.Height)
	b[8], b[9] = h.BitDepth, h.ColorType
	b[10], b[11], b[12] = h.CompressionMethod, h.FilterMethod, h.InterlaceMethod
	return b
}

// Info is the geometry of a full image row.
func (h IHDR) Info() row.Info {
	return row.New(h.Width, row.ColorType(h.ColorType), h.BitDepth)
}

// Interlaced reports whether the image uses Adam7.
func (h IHDR) Interlaced() bool { return h.InterlaceMethod == 1 }

func ParsePLTE(data []byte) ([]row.Entry, error) {
	if len(data) == 0 || len(data)%3 != 0 || len(data) > 3*256 {
		return nil, pngerr.Newf(pngerr.Format, "PLTE", "invalid length %d", len(data))
	}
	pal := make([]row.Entry, len(data)/3)
	for i := range pal {
		pal[i] = row.Entry{R: data[3*i], G: data[3*i+1], B: data[3*i+2]}
	}
	return pal, nil
}

func MarshalPLTE(pal []row.Entry) []byte {
	b := make([]byte, 0, 3*len(pal))
	for _, p := range pal {
		b = append(b, p.R, p.G, p.B)
	}
	return b
}

// TRNS is the transparency chunk: per-entry alpha for palette images or
// a single color key for gray and RGB images.
type TRNS struct {
	Alpha []uint8
	Key   *row.Color16
}

func ParseTRNS(data []byte, ct row.ColorType) (TRNS, error) {
	switch ct {
	case row.Palette:
		if len(data) == 0 || len(data) > 256 {
			return TRNS{}, pngerr.Newf(pngerr.Format, "tRNS", "invalid length %d for palette", len(data))
		}
		return TRNS{Alpha: bytes.Clone(data)}, nil
	case row.Gray:
		if len(data) != 2 {
			return TRNS{}, pngerr.Newf(pngerr.Format, "tRNS", "invalid length %d for gray", len(data))
		}
		return TRNS{Key: &row.Color16{Gray: binary.BigEndian.Uint16(data)}}, nil
	case row.RGB:
		if len(data) != 6 {
			return TRNS{}, pngerr.Newf(pngerr.Format, "tRNS", "invalid length %d for RGB", len(data))
		}
		return TRNS{Key: &row.Color16{
			R: binary.BigEndian.Uint16(data[0:]),
			G: binary.BigEndian.Uint16(data[2:]),
			B: binary.BigEndian.Uint16(data[4:]),
		}}, nil
	}
	return TRNS{}, pngerr.Newf(pngerr.Format, "tRNS", "not allowed for %v", ct)
}

func (t TRNS) Marshal(ct row.ColorType) []byte {
	switch {
	case ct == row.Palette:
		return bytes.Clone(t.Alpha)
	case t.Key == nil:
		return nil
	case ct == row.Gray:
		return binary.BigEndian.AppendUint16(nil, t.Key.Gray)
	}
	b := binary.BigEndian.AppendUint16(nil, t.Key.R)
	b = binary.BigEndian.AppendUint16(b, t.Key.G)
	return binary.BigEndian.AppendUint16(b, t.Key.B)
}

type GAMA struct {
	Gamma uint32 // Encoded as a four-byte unsigned integer, representing Gamma * 100000
}

func ParseGAMA(data []byte) (*GAMA, error) {
	if len(data) != 4 {
		return nil, pngerr.Newf(pngerr.Format, "gAMA", "gAMA length must be 4 bytes; got: %d", len(data))
	}
	g := binary.BigEndian.Uint32(data)
	if g == 0 || g > uint32(gamma.Unity)*100 {
		return nil, pngerr.Newf(pngerr.Benign, "gAMA", "out of range gamma %d", g)
	}
	return &GAMA{Gamma: g}, nil
}

// ConvertGamma converts the Image gamma value to a float64.
func (g *GAMA) ConvertGamma() float64 {
	return float64(g.Gamma) / 100_000.0
}

// Fixed returns the gamma in the pipeline's fixed-point form.
func (g *GAMA) Fixed() gamma.Fixed {
	return gamma.Fixed(g.Gamma)
}

func (g *GAMA) Marshal() []byte {
	return binary.BigEndian.AppendUint32(nil, g.Gamma)
}

// SRGB is the rendering intent of an sRGB chunk. The chunk implies a file
// gamma of 1/2.2 (gamma.SRGB).
type SRGB uint8

func ParseSRGB(data []byte) (SRGB, error) {
	if len(data) != 1 {
		return 0, pngerr.Newf(pngerr.Format, "sRGB", "invalid length %d", len(data))
	}
	if data[0] > 3 {
		return 0, pngerr.Newf(pngerr.Benign, "sRGB", "unknown rendering intent %d", data[0])
	}
	return SRGB(data[0]), nil
}

func ParseSBIT(data []byte, ct row.ColorType, depth uint8) (*row.SigBits, error) {
	want := int(ct.Channels())
	if ct == row.Palette {
		want = 3
	}
	if len(data) != want {
		return nil, pngerr.Newf(pngerr.Format, "sBIT", "invalid length %d for %v", len(data), ct)
	}
	limit := depth
	if ct == row.Palette {
		limit = 8
	}
	for _, b := range data {
		if b == 0 || b > limit {
			return nil, pngerr.Newf(pngerr.Benign, "sBIT", "%d significant bits at depth %d", b, limit)
		}
	}
	var s row.SigBits
	switch ct {
	case row.Gray:
		s.Gray = data[0]
	case row.GrayAlpha:
		s.Gray, s.Alpha = data[0], data[1]
	case row.RGB, row.Palette:
		s.R, s.G, s.B = data[0], data[1], data[2]
	case row.RGBA:
		s.R, s.G, s.B, s.Alpha = data[0], data[1], data[2], data[3]
	}
	return &s, nil
}

func MarshalSBIT(s row.SigBits, ct row.ColorType) []byte {
	switch ct {
	case row.Gray:
		return []byte{s.Gray}
	case row.GrayAlpha:
		return []byte{s.Gray, s.Alpha}
	case row.RGBA:
		return []byte{s.R, s.G, s.B, s.Alpha}
	}
	return []byte{s.R, s.G, s.B}
}

// ParseBKGD decodes a background color. Values are in the file format: a
// palette index, or samples at the image bit depth.
func ParseBKGD(data []byte, ct row.ColorType) (row.Color16, error) {
	var c row.Color16
	switch {
	case ct == row.Palette:
		if len(data) != 1 {
			return c, pngerr.Newf(pngerr.Format, "bKGD", "invalid length %d for palette", len(data))
		}
		c.Index = data[0]
	case !ct.HasColor():
		if len(data) != 2 {
			return c, pngerr.Newf(pngerr.Format, "bKGD", "invalid length %d for gray", len(data))
		}
		c.Gray = binary.BigEndian.Uint16(data)
	default:
		if len(data) != 6 {
			return c, pngerr.Newf(pngerr.Format, "bKGD", "invalid length %d for RGB", len(data))
		}
		c.R = binary.BigEndian.Uint16(data[0:])
		c.G = binary.BigEndian.Uint16(data[2:])
		c.B = binary.BigEndian.Uint16(data[4:])
	}
	return c, nil
}

func MarshalBKGD(c row.Color16, ct row.ColorType) []byte {
	switch {
	case ct == row.Palette:
		return []byte{c.Index}
	case !ct.HasColor():
		return binary.BigEndian.AppendUint16(nil, c.Gray)
	}
	b := binary.BigEndian.AppendUint16(nil, c.R)
	b = binary.BigEndian.AppendUint16(b, c.G)
	return binary.BigEndian.AppendUint16(b, c.B)
}

// ParseHIST decodes the palette histogram; n is the palette size.
func ParseHIST(data []byte, n int) ([]uint16, error) {
	if len(data) != 2*n {
		return nil, pngerr.Newf(pngerr.Benign, "hIST", "length %d for %d palette entries", len(data), n)
	}
	h := make([]uint16, n)
	for i := range h {
		h[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return h, nil
}

// ZTXT is a compressed text chunk. Text holds the compressed bytes.
type ZTXT struct {
	Keyword string
	Text    []byte
}

func ParseZTXT(data []byte) (ZTXT, error) {
	i := bytes.IndexByte(data, 0)
	if i < 1 || i > 79 {
		return ZTXT{}, pngerr.Newf(pngerr.Benign, "zTXt", "bad keyword length %d", i)
	}
	if i+1 >= len(data) || data[i+1] != 0 {
		return ZTXT{}, pngerr.Newf(pngerr.Benign, "zTXt", "unknown or missing compression method")
	}
	return ZTXT{Keyword: string(data[:i]), Text: data[i+2:]}, nil
}

// ZTXTPrefix is the uncompressed head of a zTXt chunk: keyword, NUL and
// the compression method.
func ZTXTPrefix(keyword string) ([]byte, error) {
	if len(keyword) < 1 || len(keyword) > 79 || bytes.IndexByte([]byte(keyword), 0) >= 0 {
		return nil, fmt.Errorf("zTXt keyword %q: must be 1 to 79 bytes without NUL", keyword)
	}
	return append([]byte(keyword), 0, 0), nil
}
