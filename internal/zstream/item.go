package zstream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"pngpipe.adpollak.net/internal/chunk"
	"pngpipe.adpollak.net/internal/pngerr"
)

// CompressItem compresses data under owner and returns the chunk data
// prefix followed by the compressed bytes. The claim is released on
// every path.
func (s *Stream) CompressItem(owner chunk.ChunkType, prefix, data []byte) ([]byte, error) {
	c, err := s.Claim(owner, int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer c.Release()
	if _, err := c.Write(data); err != nil {
		return nil, err
	}
	if err := c.Finish(); err != nil {
		return nil, err
	}
	if int64(len(prefix))+c.compressed > chunk.MaxLength {
		return nil, pngerr.Newf(pngerr.Resource, "compress item", "%s of %d bytes exceeds the chunk limit", owner, int64(len(prefix))+c.compressed)
	}
	return append(bytes.Clone(prefix), c.Bytes()...), nil
}

// NewReader returns an inflater over a zlib stream, such as the
// concatenated IDAT data.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, pngerr.Newf(pngerr.Format, "inflate", "zlib header: %w", err)
	}
	return zr, nil
}

// Inflate decompresses a whole item, refusing output above limit bytes
// (limit <= 0 means chunk.MaxLength).
func Inflate(data []byte, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = chunk.MaxLength
	}
	zr, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, pngerr.Newf(pngerr.Format, "inflate", "%w", err)
	}
	if n > limit {
		return nil, pngerr.Newf(pngerr.Resource, "inflate", "%w: output above %d bytes", pngerr.ErrTooLarge, limit)
	}
	return out.Bytes(), nil
}
