package codec

import (
	"bytes"
	"errors"
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

// Decoding stages. IHDR comes first, PLTE (if present) before IDAT, the
// IDAT chunks are contiguous and IEND is last.
const (
	dsStart = iota
	dsSeenIHDR
	dsSeenIDAT
	dsSeenIEND
)

var errChunkOrder = errors.New("chunk out of order")

// DecoderConfig selects the read transforms and the decoder limits.
type DecoderConfig struct {
	Transform transform.ReadConfig

	// FileBackground composes against the bKGD color when the image has
	// one and Transform sets neither a background nor an alpha mode.
	FileBackground bool
	// Unshift scales samples down to the sBIT significant bits when
	// Transform.Unshift is unset.
	Unshift bool
	// UseHistogram hands hIST to a palette quantization.
	UseHistogram bool
	// Progressive makes ReadImage replicate each pass pixel over its
	// block instead of writing only the pass's own pixels.
	Progressive bool

	// MaxWidth and MaxHeight bound the image; 0 means chunk.MaxDimension.
	MaxWidth, MaxHeight uint32
	// ChunkLimit bounds a single chunk's data; 0 means chunk.MaxLength.
	ChunkLimit uint32
	// TextLimit bounds an inflated zTXt value; 0 means chunk.MaxLength.
	TextLimit int64
}

// Metadata is what the decoder learned from the chunks around the image
// data. Chunks after IDAT are only included once Finish has run.
type Metadata struct {
	Header     chunk.IHDR
	Palette    []row.Entry
	Trans      *chunk.TRNS
	Gamma      gamma.Fixed
	SRGB       *chunk.SRGB
	SigBits    *row.SigBits
	Background *row.Color16
	Histogram  []uint16
	Texts      []Text
	// Skipped lists ancillary chunks that were not interpreted.
	Skipped []chunk.ChunkType
}

// Row locates a decoded row in the image.
type Row struct {
	// Pass is the Adam7 pass, 0 for non-interlaced images.
	Pass int
	// Y is the image row.
	Y    uint32
	Info row.Info
}

// Decoder reads a PNG datastream row by row through a read session.
type Decoder struct {
	cfg  DecoderConfig
	rep  pngerr.Reporter
	cr   *chunk.Reader
	idat *idatReader
	zr   io.ReadCloser

	meta  Metadata
	stage int
	sess  *transform.Session
	file  row.Info

	// cur and prev are framed rows: filter byte then data.
	cur, prev []byte
	buf       []byte
	pass      int
	passRow   uint32

	err      error
	finished bool
}

// NewDecoder checks the signature, reads every chunk up to the first
// IDAT and finalizes the read session.
func NewDecoder(r io.Reader, cfg DecoderConfig) (*Decoder, error) {
	if err := chunk.CheckSignature(r); err != nil {
		return nil, err
	}
	d := &Decoder{cfg: cfg, rep: cfg.Transform.Reporter, cr: chunk.NewReader(r)}
	if d.rep == nil {
		d.rep = &pngerr.LogReporter{}
		d.cfg.Transform.Reporter = d.rep
	}
	d.cr.Limit = cfg.ChunkLimit

	for {
		c, err := d.cr.ReadChunk()
		if err != nil {
			return nil, err
		}
		if c.Type == chunk.ChunkIDAT {
			if d.stage != dsSeenIHDR {
				return nil, pngerr.Newf(pngerr.Format, "decoder", "%w: IDAT before IHDR", errChunkOrder)
			}
			d.stage = dsSeenIDAT
			d.idat = &idatReader{cr: d.cr, data: c.Data}
			break
		}
		if err := d.handleChunk(c); err != nil {
			return nil, err
		}
	}

	h := d.meta.Header
	if row.ColorType(h.ColorType).IsPalette() && d.meta.Palette == nil {
		return nil, pngerr.Newf(pngerr.Format, "decoder", "palette image without PLTE")
	}
	sess, err := transform.NewSession(d.source(), d.readConfig())
	if err != nil {
		return nil, err
	}
	d.sess = sess
	d.file = h.Info()

	out := sess.Output()
	d.cur = make([]byte, 1+d.file.RowBytes)
	d.prev = make([]byte, 1+d.file.RowBytes)
	d.buf = make([]byte, max(sess.BufferSize(h.Width), row.Bytes((h.Width+7)&^7, out.PixelDepth)))

	d.zr, err = zstream.NewReader(d.idat)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("codec: decoding %dx%d %v/%d interlaced=%v out=%v stages=%v",
		h.Width, h.Height, d.file.ColorType, d.file.BitDepth, h.Interlaced(), out, sess.Stages())
	return d, nil
}

func (d *Decoder) source() transform.Source {
	m := &d.meta
	src := transform.Source{
		Width:     m.Header.Width,
		ColorType: row.ColorType(m.Header.ColorType),
		BitDepth:  m.Header.BitDepth,
		Palette:   m.Palette,
		Gamma:     m.Gamma,
		SigBits:   m.SigBits,
	}
	if t := m.Trans; t != nil {
		src.Trans = t.Alpha
		src.TransColor = t.Key
	}
	return src
}

func (d *Decoder) readConfig() transform.ReadConfig {
	rc := d.cfg.Transform
	m := &d.meta
	if d.cfg.FileBackground && rc.Background == nil && rc.AlphaMode == transform.AlphaPNG && m.Background != nil {
		rc.Background = &transform.Background{
			Color:      *m.Background,
			GammaType:  transform.BackgroundFile,
			NeedExpand: true,
		}
	}
	if d.cfg.Unshift && rc.Unshift == nil && m.SigBits != nil {
		rc.Unshift = m.SigBits
	}
	if q := rc.Quantize; q != nil && d.cfg.UseHistogram && q.Histogram == nil && m.Histogram != nil {
		withHist := *q
		withHist.Histogram = m.Histogram
		rc.Quantize = &withHist
	}
	return rc
}

// handleChunk interprets one chunk outside the IDAT run.
func (d *Decoder) handleChunk(c *chunk.Chunk) error {
	after := d.stage == dsSeenIDAT
	switch c.Type {
	case chunk.ChunkIHDR:
		if d.stage != dsStart {
			return pngerr.Newf(pngerr.Format, "decoder", "%w: second IHDR", errChunkOrder)
		}
		h, err := chunk.ParseIHDR(c.Data)
		if err != nil {
			return err
		}
		if err := d.checkLimits(h); err != nil {
			return err
		}
		d.meta.Header = h
		d.stage = dsSeenIHDR
		return nil
	}
	if d.stage == dsStart {
		return pngerr.Newf(pngerr.Format, "decoder", "%w: %s before IHDR", errChunkOrder, c.Type)
	}

	ct := row.ColorType(d.meta.Header.ColorType)
	switch c.Type {
	case chunk.ChunkIDAT:
		return pngerr.Newf(pngerr.Format, "decoder", "%w: IDAT chunks are not contiguous", errChunkOrder)
	case chunk.ChunkIEND:
		if !after {
			return pngerr.Newf(pngerr.Format, "decoder", "%w: IEND before IDAT", errChunkOrder)
		}
		if c.Length != 0 {
			d.rep.Warn(pngerr.Newf(pngerr.Benign, "IEND", "%d bytes of data", c.Length))
		}
		d.stage = dsSeenIEND
		return nil
	case chunk.ChunkPLTE:
		switch {
		case after:
			return pngerr.Newf(pngerr.Format, "decoder", "%w: PLTE after IDAT", errChunkOrder)
		case d.meta.Palette != nil:
			return pngerr.Newf(pngerr.Format, "decoder", "duplicate PLTE")
		case !ct.HasColor():
			return pngerr.Newf(pngerr.Format, "decoder", "PLTE in %v image", ct)
		}
		pal, err := chunk.ParsePLTE(c.Data)
		if err != nil {
			return err
		}
		if ct.IsPalette() && len(pal) > 1<<d.meta.Header.BitDepth {
			return pngerr.Newf(pngerr.Format, "decoder", "PLTE of %d entries at depth %d", len(pal), d.meta.Header.BitDepth)
		}
		d.meta.Palette = pal
		return nil
	}

	if c.Type.Critical() {
		return pngerr.Newf(pngerr.Format, "decoder", "unknown critical chunk %s", c.Type)
	}
	if after && c.Type != chunk.ChunkzTXt && c.Type != chunk.ChunktEXt {
		// Only text may follow the image data.
		d.skip(c, "after IDAT")
		return nil
	}
	d.benign(c.Type, d.ancillary(c, ct))
	return nil
}

func (d *Decoder) checkLimits(h chunk.IHDR) error {
	mw, mh := d.cfg.MaxWidth, d.cfg.MaxHeight
	if mw == 0 {
		mw = chunk.MaxDimension
	}
	if mh == 0 {
		mh = chunk.MaxDimension
	}
	if h.Width > mw || h.Height > mh {
		return pngerr.Newf(pngerr.Format, "decoder", "%w: %dx%d above the %dx%d limit", pngerr.ErrTooLarge, h.Width, h.Height, mw, mh)
	}
	return nil
}

// ancillary decodes the chunks that configure the read session or carry
// text. Failures are benign: the chunk is ignored.
func (d *Decoder) ancillary(c *chunk.Chunk, ct row.ColorType) error {
	m := &d.meta
	switch c.Type {
	case chunk.ChunktRNS:
		if ct.IsPalette() && m.Palette == nil {
			return pngerr.Newf(pngerr.Benign, "tRNS", "%v before PLTE", errChunkOrder)
		}
		if m.Trans != nil {
			return pngerr.Newf(pngerr.Benign, "tRNS", "duplicate chunk")
		}
		t, err := chunk.ParseTRNS(c.Data, ct)
		if err != nil {
			return err
		}
		m.Trans = &t
	case chunk.ChunkgAMA:
		if m.Palette != nil {
			return pngerr.Newf(pngerr.Benign, "gAMA", "%v after PLTE", errChunkOrder)
		}
		g, err := chunk.ParseGAMA(c.Data)
		if err != nil {
			return err
		}
		if m.SRGB == nil {
			m.Gamma = g.Fixed()
		}
	case chunk.ChunksRGB:
		if m.Palette != nil {
			return pngerr.Newf(pngerr.Benign, "sRGB", "%v after PLTE", errChunkOrder)
		}
		s, err := chunk.ParseSRGB(c.Data)
		if err != nil {
			return err
		}
		m.SRGB = &s
		m.Gamma = gamma.SRGB
	case chunk.ChunksBIT:
		sb, err := chunk.ParseSBIT(c.Data, ct, m.Header.BitDepth)
		if err != nil {
			return err
		}
		m.SigBits = sb
	case chunk.ChunkbKGD:
		if ct.IsPalette() && m.Palette == nil {
			return pngerr.Newf(pngerr.Benign, "bKGD", "%v before PLTE", errChunkOrder)
		}
		bg, err := chunk.ParseBKGD(c.Data, ct)
		if err != nil {
			return err
		}
		if ct.IsPalette() && int(bg.Index) >= len(m.Palette) {
			return pngerr.Newf(pngerr.Benign, "bKGD", "%w: %d", pngerr.ErrPaletteIndex, bg.Index)
		}
		m.Background = &bg
	case chunk.ChunkhIST:
		if m.Palette == nil {
			return pngerr.Newf(pngerr.Benign, "hIST", "no palette")
		}
		h, err := chunk.ParseHIST(c.Data, len(m.Palette))
		if err != nil {
			return err
		}
		m.Histogram = h
	case chunk.ChunkzTXt:
		z, err := chunk.ParseZTXT(c.Data)
		if err != nil {
			return err
		}
		text, err := zstream.Inflate(z.Text, d.cfg.TextLimit)
		if err != nil {
			return err
		}
		m.Texts = append(m.Texts, Text{Keyword: z.Keyword, Value: string(text)})
	case chunk.ChunktEXt:
		k, v, ok := bytes.Cut(c.Data, []byte{0})
		if !ok || len(k) == 0 || len(k) > 79 {
			return pngerr.Newf(pngerr.Benign, "tEXt", "bad keyword")
		}
		m.Texts = append(m.Texts, Text{Keyword: string(k), Value: string(v)})
	default:
		d.skip(c, "not interpreted")
	}
	return nil
}

func (d *Decoder) skip(c *chunk.Chunk, why string) {
	d.meta.Skipped = append(d.meta.Skipped, c.Type)
	glog.V(2).Infof("codec: skipping %s: %s", c.Type, why)
}

// benign reports err, whatever its kind, as a benign error of chunk t.
func (d *Decoder) benign(t chunk.ChunkType, err error) {
	if err == nil {
		return
	}
	if pngerr.KindOf(err) != pngerr.Benign {
		err = pngerr.Newf(pngerr.Benign, t.String(), "ignored: %w", err)
	}
	d.rep.Warn(err)
}

// Metadata returns the chunk information read so far.
func (d *Decoder) Metadata() *Metadata { return &d.meta }

// Session returns the finalized read session.
func (d *Decoder) Session() *transform.Session { return d.sess }

// Output is the shape of decoded rows at the image width.
func (d *Decoder) Output() row.Info { return d.sess.Output() }

// Interlaced reports whether rows arrive in Adam7 pass order.
func (d *Decoder) Interlaced() bool { return d.meta.Header.Interlaced() }

func (d *Decoder) passes() int {
	if d.Interlaced() {
		return interlace.Passes
	}
	return 1
}

// passGeometry is the width and row count of pass p; both are zero for
// an empty pass.
func (d *Decoder) passGeometry(p int) (uint32, uint32) {
	h := d.meta.Header
	if !h.Interlaced() {
		return h.Width, h.Height
	}
	if interlace.Empty(h.Width, h.Height, p) {
		return 0, 0
	}
	return interlace.Cols(h.Width, p), interlace.Rows(h.Height, p)
}

func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

// next decodes the next stored row into d.buf and returns where it goes.
func (d *Decoder) next() (Row, error) {
	if d.err != nil {
		return Row{}, d.err
	}
	if d.pass == d.passes() {
		return Row{}, io.EOF
	}
	width, rows := d.passGeometry(d.pass)
	for d.passRow >= rows {
		d.pass++
		d.passRow = 0
		clear(d.prev)
		if d.pass == d.passes() {
			return Row{}, io.EOF
		}
		width, rows = d.passGeometry(d.pass)
	}

	info := d.file
	info.SetWidth(width)
	n := info.RowBytes
	framed := d.cur[:1+n]
	if _, err := io.ReadFull(d.zr, framed); err != nil {
		return Row{}, d.fail(d.streamError(err))
	}
	if err := filter.UnfilterRow(framed, d.prev[1:1+n], d.file.BytesPerPixel()); err != nil {
		return Row{}, d.fail(err)
	}
	d.cur, d.prev = d.prev, d.cur

	copy(d.buf, framed[1:])
	if err := d.sess.Apply(&info, d.buf); err != nil {
		return Row{}, d.fail(err)
	}
	if want := d.sess.OutputFor(width); info != want {
		return Row{}, d.fail(pngerr.Newf(pngerr.Format, "decoder", "%w: transformed row %v, expected %v", pngerr.ErrRowSize, info, want))
	}
	r := Row{Pass: d.pass, Y: d.passRow, Info: info}
	if d.Interlaced() {
		r.Y = interlace.ImageY(d.pass, d.passRow)
	}
	d.passRow++
	return r, nil
}

func (d *Decoder) streamError(err error) error {
	if pngerr.KindOf(err) != 0 {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return pngerr.Newf(pngerr.Format, "decoder", "not enough image data")
	}
	return pngerr.Newf(pngerr.Format, "decoder", "inflate: %w", err)
}

// ReadRow decodes the next stored row into dst, which must hold
// Output().RowBytes bytes. Interlaced images deliver pass rows, each
// Row.Info.Width pixels wide. It returns io.EOF after the last row.
func (d *Decoder) ReadRow(dst []byte) (Row, error) {
	r, err := d.next()
	if err != nil {
		return r, err
	}
	if len(dst) < r.Info.RowBytes {
		return r, d.fail(pngerr.Newf(pngerr.Internal, "decoder", "%w: destination %d bytes, need %d", pngerr.ErrRowSize, len(dst), r.Info.RowBytes))
	}
	copy(dst, d.buf[:r.Info.RowBytes])
	return r, nil
}

// Image is a fully decoded image in the session's output format.
type Image struct {
	// Info is the row geometry at the full width.
	Info   row.Info
	Height uint32
	Stride int
	Pix    []byte
	// Palette and Trans are set for palette output. Trans holds the
	// tRNS alpha of the leading entries.
	Palette []row.Entry
	Trans   []uint8
}

// Row returns image row y.
func (m *Image) Row(y uint32) []byte {
	off := int(y) * m.Stride
	return m.Pix[off : off+m.Info.RowBytes]
}

// ReadImage decodes every remaining row, combining interlace passes into
// full rows, then runs Finish.
func (d *Decoder) ReadImage() (*Image, error) {
	out := d.sess.Output()
	h := d.meta.Header
	img := &Image{
		Info:   out,
		Height: h.Height,
		Stride: out.RowBytes,
		Pix:    make([]byte, out.RowBytes*int(h.Height)),
	}
	if out.ColorType.IsPalette() {
		img.Palette = d.sess.Palette()
		if t := d.meta.Trans; t != nil && !d.sess.Flags().Has(transform.FlagQuantize) {
			img.Trans = t.Alpha
		}
	}
	mode := interlace.Sparkle
	if d.cfg.Progressive {
		mode = interlace.Rectangle
	}
	swapped := d.sess.Flags().Has(transform.FlagPackSwap)
	for {
		r, err := d.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !h.Interlaced() {
			copy(img.Row(r.Y), d.buf[:out.RowBytes])
			continue
		}
		interlace.ExpandRow(d.buf, r.Info.Width, out.PixelDepth, r.Pass, swapped)
		block := 1
		if mode == interlace.Rectangle {
			block = interlace.BlockRows(r.Pass)
		}
		for k := uint32(0); k < uint32(block) && r.Y+k < h.Height; k++ {
			interlace.Combine(img.Row(r.Y+k), d.buf, h.Width, out.PixelDepth, r.Pass, mode, swapped)
		}
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return img, nil
}

// Finish drains the image data and reads the chunks after it up to IEND.
func (d *Decoder) Finish() error {
	if d.finished {
		return d.err
	}
	d.finished = true
	if d.err != nil {
		return d.err
	}
	done := d.pass == d.passes()
	n, err := io.Copy(io.Discard, d.zr)
	if err != nil {
		return d.fail(d.streamError(err))
	}
	if done && n > 0 {
		d.rep.Warn(pngerr.Newf(pngerr.Benign, "IDAT", "%d bytes of extra image data", n))
	}
	d.zr.Close()

	extra, err := d.idat.drain()
	if err != nil {
		return d.fail(err)
	}
	if extra > 0 {
		d.rep.Warn(pngerr.Newf(pngerr.Benign, "IDAT", "%d bytes after the compressed stream", extra))
	}

	c := d.idat.next
	for {
		if err := d.handleChunk(c); err != nil {
			return d.fail(err)
		}
		if d.stage == dsSeenIEND {
			break
		}
		if c, err = d.cr.ReadChunk(); err != nil {
			return d.fail(err)
		}
	}
	glog.V(1).Infof("codec: decoded, %d texts, skipped %v", len(d.meta.Texts), d.meta.Skipped)
	return nil
}

// idatReader presents the data of consecutive IDAT chunks as one stream
// and stops at the first other chunk, which it keeps in next.
type idatReader struct {
	cr   *chunk.Reader
	data []byte
	next *chunk.Chunk
}

func (ir *idatReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(ir.data) == 0 {
		if ir.next != nil {
			return 0, io.EOF
		}
		c, err := ir.cr.ReadChunk()
		if err != nil {
			return 0, err
		}
		if c.Type != chunk.ChunkIDAT {
			ir.next = c
			return 0, io.EOF
		}
		ir.data = c.Data
	}
	n := copy(p, ir.data)
	ir.data = ir.data[n:]
	return n, nil
}

// drain discards what is left of the IDAT run and returns its size.
func (ir *idatReader) drain() (int64, error) {
	return io.Copy(io.Discard, ir)
}
