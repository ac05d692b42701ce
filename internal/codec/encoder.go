// Package codec drives whole images through the row machinery: chunk
// framing, the transform sessions, the filter engine, Adam7 and the
// shared compression stream.
//
// An Encoder takes caller rows one at a time and a Decoder hands them
// back one at a time. Both latch the first fatal error: every later call
// returns it, and the compressor is released before it is reported.
package codec

import (
	"io"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/chunk"
	"pngpipe.adpollak.net/internal/filter"
	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/interlace"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
	"pngpipe.adpollak.net/internal/transform"
	"pngpipe.adpollak.net/internal/zstream"
)

// Text is one keyword/value pair, written as zTXt.
type Text struct {
	Keyword string
	Value   string
}

// EncoderConfig describes the image to write and how to write it.
type EncoderConfig struct {
	Header chunk.IHDR

	Palette    []row.Entry
	Trans      *chunk.TRNS
	Gamma      gamma.Fixed // written as gAMA when non-zero
	SRGB       *chunk.SRGB
	SigBits    *row.SigBits
	Background *row.Color16
	Histogram  []uint16
	Texts      []Text

	// Filters are the candidate filters. Zero selects None alone for
	// palette and sub-byte images and all five otherwise.
	Filters filter.Set
	// Compression defaults to zstream.DefaultConfig. A StrategyAuto image
	// profile becomes Filtered when a filter other than None is enabled.
	Compression *zstream.Config
	Transform   transform.WriteConfig
}

// Encoder writes a PNG datastream row by row.
type Encoder struct {
	cfg   EncoderConfig
	cw    *chunk.Writer
	zs    *zstream.Stream
	claim *zstream.Claim
	ws    *transform.WriteSession
	sel   *filter.Selector
	file  row.Info

	buf, prev []byte
	pass      int
	y         uint32
	first     bool

	err    error
	done   bool
	closed bool
}

// defaultFilters is the candidate set used when none is configured.
func defaultFilters(h chunk.IHDR) filter.Set {
	if row.ColorType(h.ColorType).IsPalette() || h.BitDepth < 8 {
		return filter.SetNone
	}
	return filter.SetAll
}

// NewEncoder validates cfg, writes the signature and every chunk that
// precedes the image data, and claims the compressor for IDAT.
func NewEncoder(w io.Writer, cfg EncoderConfig) (*Encoder, error) {
	h := cfg.Header
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := checkPalette(h, cfg.Palette, cfg.Trans); err != nil {
		return nil, err
	}
	file := h.Info()
	ws, err := transform.NewWriteSession(file, cfg.Transform)
	if err != nil {
		return nil, err
	}

	if cfg.Filters&filter.SetAll == 0 {
		cfg.Filters = defaultFilters(h)
	}
	zc := zstream.DefaultConfig()
	if cfg.Compression != nil {
		zc = *cfg.Compression
	}
	if zc.Image.Strategy == zstream.StrategyAuto {
		zc.Image.Strategy = zstream.StrategyDefault
		if cfg.Filters != filter.SetNone {
			zc.Image.Strategy = zstream.StrategyFiltered
		}
	}
	zs, err := zstream.New(zc)
	if err != nil {
		return nil, err
	}

	e := &Encoder{
		cfg:   cfg,
		cw:    chunk.NewWriter(w),
		zs:    zs,
		ws:    ws,
		sel:   filter.NewSelector(cfg.Filters, file.RowBytes),
		file:  file,
		buf:   make([]byte, ws.BufferSize(h.Width)),
		prev:  make([]byte, file.RowBytes),
		first: true,
	}
	if err := e.writeHeader(); err != nil {
		return nil, err
	}
	size := interlace.ImageSize(h.Width, h.Height, file.PixelDepth, h.Interlaced())
	e.claim, err = zs.ClaimImage(e.cw, size)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("codec: encoding %dx%d %v/%d interlaced=%v filters=%08b image bytes=%d",
		h.Width, h.Height, file.ColorType, file.BitDepth, h.Interlaced(), cfg.Filters, size)
	return e, nil
}

func checkPalette(h chunk.IHDR, pal []row.Entry, trns *chunk.TRNS) error {
	ct := row.ColorType(h.ColorType)
	switch {
	case ct.IsPalette() && len(pal) == 0:
		return pngerr.Newf(pngerr.Format, "encoder", "palette image without palette")
	case !ct.HasColor() && len(pal) > 0:
		return pngerr.Newf(pngerr.Format, "encoder", "palette given for %v image", ct)
	case len(pal) > 256:
		return pngerr.Newf(pngerr.Format, "encoder", "palette of %d entries", len(pal))
	case ct.IsPalette() && len(pal) > 1<<h.BitDepth:
		return pngerr.Newf(pngerr.Format, "encoder", "palette of %d entries at depth %d", len(pal), h.BitDepth)
	}
	if trns == nil {
		return nil
	}
	if ct.HasAlpha() {
		return pngerr.Newf(pngerr.Format, "encoder", "tRNS given for %v image", ct)
	}
	if ct.IsPalette() && len(trns.Alpha) > len(pal) {
		return pngerr.Newf(pngerr.Format, "encoder", "%d tRNS entries for %d palette entries", len(trns.Alpha), len(pal))
	}
	if !ct.IsPalette() && trns.Key == nil {
		return pngerr.Newf(pngerr.Format, "encoder", "tRNS for %v needs a color key", ct)
	}
	return nil
}

// writeHeader writes the chunks that go before IDAT, in the order PNG
// prescribes around PLTE.
func (e *Encoder) writeHeader() error {
	c := &e.cfg
	ct := row.ColorType(c.Header.ColorType)
	if err := e.cw.WriteSignature(); err != nil {
		return err
	}
	if err := e.cw.WriteChunk(chunk.ChunkIHDR, c.Header.Marshal()); err != nil {
		return err
	}
	if c.SRGB != nil {
		if err := e.cw.WriteChunk(chunk.ChunksRGB, []byte{byte(*c.SRGB)}); err != nil {
			return err
		}
	}
	if g := c.Gamma; g > 0 || c.SRGB != nil {
		if g <= 0 {
			g = gamma.SRGB
		}
		gama := chunk.GAMA{Gamma: uint32(g)}
		if err := e.cw.WriteChunk(chunk.ChunkgAMA, gama.Marshal()); err != nil {
			return err
		}
	}
	if c.SigBits != nil {
		if err := e.cw.WriteChunk(chunk.ChunksBIT, chunk.MarshalSBIT(*c.SigBits, ct)); err != nil {
			return err
		}
	}
	if len(c.Palette) > 0 {
		if err := e.cw.WriteChunk(chunk.ChunkPLTE, chunk.MarshalPLTE(c.Palette)); err != nil {
			return err
		}
	}
	if c.Trans != nil {
		if err := e.cw.WriteChunk(chunk.ChunktRNS, c.Trans.Marshal(ct)); err != nil {
			return err
		}
	}
	if c.Background != nil {
		if err := e.cw.WriteChunk(chunk.ChunkbKGD, chunk.MarshalBKGD(*c.Background, ct)); err != nil {
			return err
		}
	}
	if len(c.Histogram) > 0 {
		if len(c.Histogram) != len(c.Palette) {
			return pngerr.Newf(pngerr.Format, "encoder", "hIST of %d entries for %d palette entries", len(c.Histogram), len(c.Palette))
		}
		data := make([]byte, 0, 2*len(c.Histogram))
		for _, v := range c.Histogram {
			data = append(data, byte(v>>8), byte(v))
		}
		if err := e.cw.WriteChunk(chunk.ChunkhIST, data); err != nil {
			return err
		}
	}
	for _, t := range c.Texts {
		prefix, err := chunk.ZTXTPrefix(t.Keyword)
		if err != nil {
			return pngerr.New(pngerr.Format, "encoder", err)
		}
		data, err := e.zs.CompressItem(chunk.ChunkzTXt, prefix, []byte(t.Value))
		if err != nil {
			return err
		}
		if err := e.cw.WriteChunk(chunk.ChunkzTXt, data); err != nil {
			return err
		}
	}
	return nil
}

// Passes is the number of times the caller supplies every image row:
// seven for interlaced images, one otherwise.
func (e *Encoder) Passes() int {
	if e.cfg.Header.Interlaced() {
		return interlace.Passes
	}
	return 1
}

// Input is the shape of the rows WriteRow expects.
func (e *Encoder) Input() row.Info { return e.ws.Input(e.cfg.Header.Width) }

// Chosen counts the filter picked per type so far.
func (e *Encoder) Chosen() [filter.NumTypes]int { return e.sel.Chosen }

// takes reports whether the current image row belongs to the current
// pass.
func (e *Encoder) takes() bool {
	if !e.cfg.Header.Interlaced() {
		return true
	}
	if interlace.Empty(e.cfg.Header.Width, e.cfg.Header.Height, e.pass) {
		return false
	}
	ps := interlace.Adam7[e.pass]
	return int(e.y)%ps.YStep == ps.YStart
}

func (e *Encoder) fail(err error) error {
	if e.err == nil {
		e.err = err
	}
	if e.claim != nil {
		e.claim.Release()
	}
	return e.err
}

// WriteRow takes the next image row in the Input format. For interlaced
// images the whole image is supplied once per pass, Passes times in all;
// rows outside the current pass are skipped.
func (e *Encoder) WriteRow(data []byte) error {
	if e.err != nil {
		return e.err
	}
	if e.done {
		return e.fail(pngerr.Newf(pngerr.Internal, "encoder", "row written after the last pass"))
	}
	h := e.cfg.Header
	in := e.ws.Input(h.Width)
	if len(data) < in.RowBytes {
		return e.fail(pngerr.Newf(pngerr.Internal, "encoder", "%w: %d bytes, need %d", pngerr.ErrRowSize, len(data), in.RowBytes))
	}
	if e.takes() {
		if err := e.encodeRow(data[:in.RowBytes], in); err != nil {
			return e.fail(err)
		}
	}
	e.y++
	if e.y == h.Height {
		e.y = 0
		e.pass++
		e.first = true
		glog.V(2).Infof("codec: pass %d written", e.pass-1)
		if e.pass == e.Passes() {
			e.done = true
		}
	}
	return nil
}

func (e *Encoder) encodeRow(data []byte, in row.Info) error {
	copy(e.buf, data)
	info := in
	if e.cfg.Header.Interlaced() {
		info.SetWidth(interlace.Compact(e.buf, in.Width, in.PixelDepth, e.pass))
	}
	if err := e.ws.Apply(&info, e.buf); err != nil {
		return err
	}
	cur := e.buf[:info.RowBytes]
	var prev []byte
	if !e.first {
		prev = e.prev[:info.RowBytes]
	}
	framed, ft := e.sel.Select(cur, prev, e.file.BytesPerPixel())
	if _, err := e.claim.Write(framed); err != nil {
		return err
	}
	copy(e.prev, cur)
	e.first = false
	glog.V(3).Infof("codec: pass %d row %d filter %v", e.pass, e.y, ft)
	return nil
}

// WriteImage writes every pass of rows, which must hold the whole image
// in the Input format, and closes the encoder.
func (e *Encoder) WriteImage(rows [][]byte) error {
	if len(rows) != int(e.cfg.Header.Height) {
		return e.fail(pngerr.Newf(pngerr.Internal, "encoder", "%d rows for an image of height %d", len(rows), e.cfg.Header.Height))
	}
	for p := 0; p < e.Passes(); p++ {
		for _, r := range rows {
			if err := e.WriteRow(r); err != nil {
				return err
			}
		}
	}
	return e.Close()
}

// Close finishes the image data and writes IEND. It fails when rows are
// missing. The compressor is released in every case.
func (e *Encoder) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	if !e.done {
		return e.fail(pngerr.Newf(pngerr.Internal, "encoder", "closed in pass %d at row %d", e.pass, e.y))
	}
	err := e.claim.Finish()
	e.claim.Release()
	if err != nil {
		return e.fail(err)
	}
	if err := e.cw.WriteChunk(chunk.ChunkIEND, nil); err != nil {
		return e.fail(err)
	}
	glog.V(1).Infof("codec: encoded %d chunks, filters %v, stream %+v", e.cw.Written, e.sel.Chosen, e.zs.Stats())
	return nil
}
