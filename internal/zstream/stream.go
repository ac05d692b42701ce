package zstream

import (
	"github.com/golang/glog"
	"github.com/klauspost/compress/zlib"

	"pngpipe.adpollak.net/internal/chunk"
	"pngpipe.adpollak.net/internal/pngerr"
)

const (
	// maxInput bounds a single feed to the deflater.
	maxInput = 65535
	// lookahead is the deflate minimum lookahead a window must cover on
	// top of the data.
	lookahead = 262
	// cmfLimit is the largest data size for which the header window is
	// rewritten; above it the full window may be in use.
	cmfLimit = 16384
)

// ChunkWriter receives every full output buffer of an image claim as one
// chunk.
type ChunkWriter interface {
	WriteChunk(t chunk.ChunkType, data []byte) error
}

// Stats counts what the stream did, for logging and tests.
type Stats struct {
	Claims, Resets, Reinits int
	// Chunks is the number of chunks emitted for image claims.
	Chunks int
}

// Stream is the shared compressor. It is not safe for concurrent use.
type Stream struct {
	cfg Config
	rep pngerr.Reporter

	zw     *zlib.Writer
	tuning Tuning // what zw was created with

	active *Claim
	// Output buffers; an image claim reuses list[0], an item claim
	// appends.
	list [][]byte
	fill int

	stats Stats
}

// New validates cfg and returns an idle stream. The compressor itself is
// created by the first claim.
func New(cfg Config) (*Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stream{cfg: cfg, rep: cfg.Reporter}
	if s.rep == nil {
		s.rep = &pngerr.LogReporter{}
	}
	return s, nil
}

// Stats returns the counters so far.
func (s *Stream) Stats() Stats { return s.stats }

// Owner returns the owner of the current claim, chunk.Unknown when idle.
func (s *Stream) Owner() chunk.ChunkType {
	if s.active == nil {
		return chunk.Unknown
	}
	return s.active.owner
}

// shrinkWindow halves the window while the data plus the lookahead still
// fits in half of it. size < 0 means unknown.
func shrinkWindow(bits int, size int64) int {
	if size >= 0 && size <= cmfLimit {
		half := int64(1) << (bits - 1)
		for size+lookahead <= half {
			half >>= 1
			bits--
		}
	}
	if bits == 8 {
		// An 8-bit window is not reliably supported by inflaters.
		bits = 9
	}
	return bits
}

// ClaimImage claims the stream for IDAT data of the given uncompressed
// size (filter bytes included, < 0 if unknown). Full buffers are written
// to out as IDAT chunks.
func (s *Stream) ClaimImage(out ChunkWriter, size int64) (*Claim, error) {
	if out == nil {
		return nil, pngerr.Newf(pngerr.Internal, "zstream claim", "image claim without a chunk writer")
	}
	return s.claim(chunk.ChunkIDAT, size, out)
}

// Claim claims the stream for an ancillary item such as zTXt or iCCP.
// The compressed bytes are kept until Bytes is called.
func (s *Stream) Claim(owner chunk.ChunkType, size int64) (*Claim, error) {
	if owner == chunk.ChunkIDAT {
		return nil, pngerr.Newf(pngerr.Internal, "zstream claim", "use ClaimImage for IDAT")
	}
	return s.claim(owner, size, nil)
}

func (s *Stream) claim(owner chunk.ChunkType, size int64, out ChunkWriter) (*Claim, error) {
	if held := s.active; held != nil {
		if held.owner == chunk.ChunkIDAT || owner == chunk.ChunkIDAT {
			return nil, pngerr.Newf(pngerr.Internal, "zstream claim", "%w: %s wanted, %s holds it", pngerr.ErrClaimConflict, owner, held.owner)
		}
		s.rep.Warn(pngerr.Newf(pngerr.Benign, "zstream claim", "%s still held by %s, resetting", owner, held.owner))
		held.released = true
		s.active = nil
	}

	t := s.cfg.Text
	if owner == chunk.ChunkIDAT {
		t = s.cfg.Image
	}
	t = t.withDefaults()
	t.WindowBits = shrinkWindow(t.WindowBits, size)

	s.trim()
	sink := &sink{s: s}
	if s.zw != nil && t == s.tuning {
		s.zw.Reset(sink)
		s.stats.Resets++
	} else {
		zw, err := zlib.NewWriterLevel(sink, t.level())
		if err != nil {
			return nil, pngerr.Newf(pngerr.Resource, "zstream claim", "deflate init: %w", err)
		}
		s.zw, s.tuning = zw, t
		s.stats.Reinits++
	}
	s.stats.Claims++

	c := &Claim{s: s, owner: owner, size: size, window: t.WindowBits, out: out, first: true}
	sink.c = c
	s.active = c
	glog.V(2).Infof("zstream: %s claimed size=%d tuning=%+v", owner, size, t)
	return c, nil
}

// trim drops every output buffer but the first and empties it.
func (s *Stream) trim() {
	if len(s.list) == 0 {
		s.list = append(s.list, make([]byte, s.cfg.BufferSize))
	}
	for i := 1; i < len(s.list); i++ {
		s.list[i] = nil
	}
	s.list = s.list[:1]
	s.fill = 0
}

// sink collects deflater output into the buffer list.
type sink struct {
	s *Stream
	c *Claim
}

func (k *sink) Write(p []byte) (int, error) {
	s, c := k.s, k.c
	if c.released {
		return 0, pngerr.New(pngerr.Internal, "zstream output", pngerr.ErrReleased)
	}
	if c.out == nil && c.compressed+int64(len(p)) > chunk.MaxLength {
		return 0, pngerr.Newf(pngerr.Resource, "zstream output", "%s item exceeds %d compressed bytes", c.owner, chunk.MaxLength)
	}
	n := 0
	for len(p) > 0 {
		last := s.list[len(s.list)-1]
		if s.fill == len(last) {
			if c.out != nil {
				if err := c.emit(last); err != nil {
					return n, err
				}
			} else {
				s.list = append(s.list, make([]byte, s.cfg.BufferSize))
				last = s.list[len(s.list)-1]
			}
			s.fill = 0
		}
		m := copy(last[s.fill:], p)
		s.fill += m
		c.compressed += int64(m)
		n += m
		p = p[m:]
	}
	return n, nil
}

// Claim is exclusive use of the stream by one item.
type Claim struct {
	s      *Stream
	owner  chunk.ChunkType
	size   int64
	window int
	out    ChunkWriter

	first      bool
	finished   bool
	released   bool
	compressed int64
}

// Owner returns the chunk type the claim compresses for.
func (c *Claim) Owner() chunk.ChunkType { return c.owner }

// WindowBits is the window chosen for the claim's size.
func (c *Claim) WindowBits() int { return c.window }

// Write compresses p, feeding the deflater in bounded pieces.
func (c *Claim) Write(p []byte) (int, error) {
	if c.released || c.finished {
		return 0, pngerr.New(pngerr.Internal, "zstream write", pngerr.ErrReleased)
	}
	n := 0
	for len(p) > 0 {
		k := min(len(p), maxInput)
		if _, err := c.s.zw.Write(p[:k]); err != nil {
			return n, c.wrap("zstream write", err)
		}
		n += k
		p = p[k:]
	}
	return n, nil
}

// Finish ends the deflate stream and, for image claims, flushes the last
// partial buffer as the final chunk. The claim stays held so that an item
// claim's Bytes can be read; Release must still be called.
func (c *Claim) Finish() error {
	if c.released || c.finished {
		return pngerr.New(pngerr.Internal, "zstream finish", pngerr.ErrReleased)
	}
	c.finished = true
	if err := c.s.zw.Close(); err != nil {
		return c.wrap("zstream finish", err)
	}
	if c.out == nil {
		return nil
	}
	s := c.s
	if err := c.emit(s.list[0][:s.fill]); err != nil {
		return err
	}
	s.fill = 0
	return nil
}

// Bytes returns the compressed output of a finished item claim. The slice
// is freshly allocated.
func (c *Claim) Bytes() []byte {
	if c.out != nil || !c.finished || c.released {
		return nil
	}
	s := c.s
	out := make([]byte, 0, c.compressed)
	for i, b := range s.list {
		if i == len(s.list)-1 {
			b = b[:s.fill]
		}
		out = append(out, b...)
	}
	return out
}

// Release gives the stream back. It is safe to call more than once, and
// on every exit path.
func (c *Claim) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.s.active == c {
		c.s.active = nil
	}
	glog.V(2).Infof("zstream: %s released after %d compressed bytes", c.owner, c.compressed)
}

func (c *Claim) emit(data []byte) error {
	if c.first {
		c.first = false
		optimizeCMF(data, c.size, c.window)
	}
	if err := c.out.WriteChunk(c.owner, data); err != nil {
		return err
	}
	c.s.stats.Chunks++
	return nil
}

func (c *Claim) wrap(op string, err error) error {
	if pngerr.KindOf(err) != 0 {
		return err
	}
	return pngerr.Newf(pngerr.Resource, op, "%s: %w", c.owner, err)
}

// optimizeCMF lowers the window size declared in a zlib header to the
// smallest one that still covers size bytes of input, capped by the
// claim's window, and recomputes the header check bits. It is a no-op
// for unknown or large sizes.
func optimizeCMF(data []byte, size int64, windowBits int) {
	if size < 0 || size > cmfLimit || len(data) < 2 {
		return
	}
	cmf := data[0]
	if cmf&0x0f != 8 || cmf&0xf0 > 0x70 {
		return
	}
	cinfo := min(cmf>>4, uint8(windowBits-8))
	half := int64(1) << (cinfo + 7)
	if size <= half {
		for {
			half >>= 1
			cinfo--
			if cinfo == 0 || size > half {
				break
			}
		}
	}
	cmf = cmf&0x0f | cinfo<<4
	flg := data[1] & 0xe0
	flg += 0x1f - uint8((uint16(cmf)<<8+uint16(flg))%0x1f)
	if cmf != data[0] {
		glog.V(2).Infof("zstream: window header %#02x -> %#02x for %d bytes", data[0], cmf, size)
	}
	data[0], data[1] = cmf, flg
}
