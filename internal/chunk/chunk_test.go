package chunk

import (
	"bytes"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

func TestChecksumMatchesIEEE(t *testing.T) {
	data := []byte("some chunk data")
	want := crc32.ChecksumIEEE(append([]byte("tEXt"), data...))
	if got := Checksum(ChunktEXt, data); got != want {
		t.Errorf("Checksum = %08x, want %08x", got, want)
	}
	// IEND has a well-known CRC.
	if got := Checksum(ChunkIEND, nil); got != 0xae426082 {
		t.Errorf("IEND CRC = %08x", got)
	}
}

func TestWriteReadChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteSignature(); err != nil {
		t.Fatal(err)
	}
	chunks := []struct {
		t    ChunkType
		data []byte
	}{
		{ChunkIHDR, IHDR{Width: 3, Height: 2, BitDepth: 8, ColorType: 2}.Marshal()},
		{ChunkType{"prVt"}, []byte{1, 2, 3}},
		{ChunkIDAT, []byte{}},
		{ChunkIEND, nil},
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c.t, c.data); err != nil {
			t.Fatal(err)
		}
	}
	if w.Written != len(chunks) {
		t.Errorf("Written = %d", w.Written)
	}

	r := bytes.NewReader(buf.Bytes())
	if err := CheckSignature(r); err != nil {
		t.Fatal(err)
	}
	cr := NewReader(r)
	for _, c := range chunks {
		got, err := cr.ReadChunk()
		if err != nil {
			t.Fatal(err)
		}
		if got.Type != c.t || !bytes.Equal(got.Data, c.data) || got.Length != uint32(len(c.data)) {
			t.Errorf("read %v, want %s %x", got, c.t, c.data)
		}
	}
	if _, err := cr.ReadChunk(); !errors.Is(err, pngerr.ErrFormat) {
		t.Errorf("read past end: %v", err)
	}
}

func TestReadChunkCorrupt(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteChunk(ChunkgAMA, []byte{0, 0, 0xb1, 0x8f}); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	b[9] ^= 1
	_, err := NewReader(bytes.NewReader(b)).ReadChunk()
	if !errors.Is(err, pngerr.ErrFormat) || !strings.Contains(err.Error(), "checksums failed") {
		t.Errorf("corrupt chunk: %v", err)
	}

	r := NewReader(bytes.NewReader([]byte{0, 0, 1, 0, 'I', 'D', 'A', 'T'}))
	r.Limit = 16
	if _, err := r.ReadChunk(); !errors.Is(err, pngerr.ErrFormat) {
		t.Errorf("over-long chunk: %v", err)
	}
}

func TestCheckSignature(t *testing.T) {
	if err := CheckSignature(strings.NewReader("\x89PNG\r\n\x1a\x0a")); err != nil {
		t.Error(err)
	}
	if err := CheckSignature(strings.NewReader("GIF89a..")); !errors.Is(err, pngerr.ErrFormat) {
		t.Errorf("GIF accepted: %v", err)
	}
}

func TestFromString(t *testing.T) {
	if ct, err := FromString("IDAT"); err != nil || ct != ChunkIDAT {
		t.Errorf("IDAT: %v %v", ct, err)
	}
	ct, err := FromString("vpAg")
	if !errors.Is(err, ErrUnknownChunk) || ct.String() != "vpAg" || ct.Critical() {
		t.Errorf("vpAg: %v %v", ct, err)
	}
	if _, err := FromString("ID4T"); err == nil || errors.Is(err, ErrUnknownChunk) {
		t.Errorf("ID4T: %v", err)
	}
	if !ChunkPLTE.Critical() || ChunktRNS.Critical() {
		t.Error("criticality")
	}
}

func TestIHDRValidate(t *testing.T) {
	good := IHDR{Width: 1, Height: 1, BitDepth: 4, ColorType: 3, InterlaceMethod: 1}
	got, err := ParseIHDR(good.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(good, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !got.Interlaced() || got.Info().PixelDepth != 4 {
		t.Errorf("info %v", got.Info())
	}

	bad := []IHDR{
		{Width: 0, Height: 1, BitDepth: 8},
		{Width: 1, Height: 1 << 31, BitDepth: 8},
		{Width: 1, Height: 1, BitDepth: 16, ColorType: 3},
		{Width: 1, Height: 1, BitDepth: 8, ColorType: 5},
		{Width: 1, Height: 1, BitDepth: 8, FilterMethod: 1},
		{Width: 1, Height: 1, BitDepth: 8, InterlaceMethod: 2},
	}
	for _, h := range bad {
		if err := h.Validate(); !errors.Is(err, pngerr.ErrFormat) {
			t.Errorf("%+v: %v", h, err)
		}
	}
	if err := bad[0].Validate(); !errors.Is(err, pngerr.ErrTooLarge) {
		t.Errorf("zero width: %v", err)
	}
}

func TestAncillaryCodecs(t *testing.T) {
	tr, err := ParseTRNS([]byte{0x01, 0x02, 0, 3, 0xff, 0xff}, row.RGB)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&row.Color16{R: 0x102, G: 3, B: 0xffff}, tr.Key); diff != "" {
		t.Errorf("key (-want +got):\n%s", diff)
	}
	if got := tr.Marshal(row.RGB); !bytes.Equal(got, []byte{1, 2, 0, 3, 0xff, 0xff}) {
		t.Errorf("marshal %x", got)
	}
	if _, err := ParseTRNS([]byte{1, 2}, row.RGBA); err == nil {
		t.Error("tRNS accepted for RGBA")
	}

	bg, err := ParseBKGD([]byte{0, 9}, row.GrayAlpha)
	if err != nil || bg.Gray != 9 {
		t.Errorf("bKGD gray %v %v", bg, err)
	}
	if got := MarshalBKGD(row.Color16{Index: 4}, row.Palette); !bytes.Equal(got, []byte{4}) {
		t.Errorf("bKGD palette %x", got)
	}

	sb, err := ParseSBIT([]byte{5, 6, 5}, row.Palette, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&row.SigBits{R: 5, G: 6, B: 5}, sb); diff != "" {
		t.Errorf("sBIT (-want +got):\n%s", diff)
	}
	if _, err := ParseSBIT([]byte{9}, row.Gray, 8); !errors.Is(err, pngerr.ErrBenign) {
		t.Errorf("sBIT over depth: %v", err)
	}

	g, err := ParseGAMA([]byte{0, 0, 0xb1, 0x8f})
	if err != nil || g.Fixed() != 45455 {
		t.Errorf("gAMA %v %v", g, err)
	}
	if _, err := ParseGAMA([]byte{0, 0, 0, 0}); !errors.Is(err, pngerr.ErrBenign) {
		t.Errorf("zero gAMA: %v", err)
	}

	pal, err := ParsePLTE(MarshalPLTE([]row.Entry{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}}))
	if err != nil || len(pal) != 2 || pal[1].B != 6 {
		t.Errorf("PLTE %v %v", pal, err)
	}
	if _, err := ParsePLTE(make([]byte, 4)); err == nil {
		t.Error("PLTE of 4 bytes accepted")
	}

	prefix, err := ZTXTPrefix("Comment")
	if err != nil {
		t.Fatal(err)
	}
	z, err := ParseZTXT(append(prefix, 0x78, 0x9c))
	if err != nil || z.Keyword != "Comment" || !bytes.Equal(z.Text, []byte{0x78, 0x9c}) {
		t.Errorf("zTXt %+v %v", z, err)
	}
	if _, err := ZTXTPrefix(""); err == nil {
		t.Error("empty keyword accepted")
	}
}
