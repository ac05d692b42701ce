package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/snksoft/crc"

	"pngpipe.adpollak.net/internal/pngerr"
)

// Signature is the eight byte PNG file signature, 137 80 78 71 13 10 26 10.
const Signature = "\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"

// MaxLength is the largest chunk data length PNG allows, 2^31-1.
const MaxLength = 1<<31 - 1

var crcTable = crc.NewTable(crc.CRC32)

// Checksum computes the chunk CRC over the type tag and data.
func Checksum(t ChunkType, data []byte) uint32 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, []byte(t.slug))
	c = crcTable.UpdateCrc(c, data)
	return crcTable.CRC32(c)
}

// CheckSignature reads the first eight bytes of r and compares them with
// the PNG signature.
func CheckSignature(r io.Reader) error {
	var sig [len(Signature)]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return pngerr.Newf(pngerr.Format, "signature", "reading signature: %w", err)
	}
	if !bytes.Equal(sig[:], []byte(Signature)) {
		return pngerr.Newf(pngerr.Format, "signature", "signature mismatch: got %x, expected %x", sig, Signature)
	}
	glog.V(2).Info("chunk: validated PNG signature")
	return nil
}

// Reader reads chunks one at a time and verifies their CRCs.
type Reader struct {
	r io.Reader
	// Limit caps the data length of a single chunk; 0 means MaxLength.
	Limit uint32
	hdr   [8]byte
}

// NewReader returns a Reader positioned after the signature.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadChunk reads the next chunk. Unknown but well-formed chunk types are
// returned as is; deciding what to do with them is up to the caller.
func (cr *Reader) ReadChunk() (*Chunk, error) {
	//  +------------+ +------------+ +------------+ +-------+
	//  |   LENGTH   | | CHUNK TYPE | | CHUNK DATA | |  CRC  |
	//  +------------+ +------------+ +------------+ +-------+
	if _, err := io.ReadFull(cr.r, cr.hdr[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, pngerr.Newf(pngerr.Format, "read chunk", "reading chunk header: %w", err)
	}
	length := binary.BigEndian.Uint32(cr.hdr[:4])
	limit := cr.Limit
	if limit == 0 {
		limit = MaxLength
	}
	if length > limit {
		return nil, pngerr.Newf(pngerr.Format, "read chunk", "chunk length %d exceeds %d", length, limit)
	}
	chunkType, err := FromString(string(cr.hdr[4:8]))
	if err != nil && err != ErrUnknownChunk {
		return nil, pngerr.New(pngerr.Format, "read chunk", err)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(cr.r, data); err != nil {
		return nil, pngerr.Newf(pngerr.Format, "read chunk", "%s data: %w", chunkType, err)
	}
	var stored [4]byte
	if _, err := io.ReadFull(cr.r, stored[:]); err != nil {
		return nil, pngerr.Newf(pngerr.Format, "read chunk", "%s crc: %w", chunkType, err)
	}
	storedCRC := binary.BigEndian.Uint32(stored[:])
	computed := Checksum(chunkType, data)
	if computed != storedCRC {
		return nil, pngerr.Newf(pngerr.Format, "read chunk", "checksums failed for %s: stored %08x, calculated %08x", chunkType, storedCRC, computed)
	}
	glog.V(3).Infof("chunk: read %s length=%d", chunkType, length)
	return &Chunk{Length: length, Type: chunkType, Data: data, Crc: computed}, nil
}

// Writer frames chunks onto an io.Writer.
type Writer struct {
	w io.Writer
	// Written counts the chunks written so far.
	Written int
}

// NewWriter returns a Writer on w. The signature is not written.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteSignature writes the PNG signature.
func (cw *Writer) WriteSignature() error {
	if _, err := io.WriteString(cw.w, Signature); err != nil {
		return pngerr.Newf(pngerr.Resource, "write signature", "%w", err)
	}
	return nil
}

// WriteChunk writes one complete chunk: length, type, data and CRC.
func (cw *Writer) WriteChunk(t ChunkType, data []byte) error {
	if len(data) > MaxLength {
		return pngerr.Newf(pngerr.Resource, "write chunk", "%s data of %d bytes", t, len(data))
	}
	if len(t.slug) != 4 {
		return pngerr.Newf(pngerr.Internal, "write chunk", "bad chunk type %q", t.slug)
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], t.slug)
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], Checksum(t, data))
	for _, b := range [][]byte{hdr[:], data, tail[:]} {
		if _, err := cw.w.Write(b); err != nil {
			return pngerr.Newf(pngerr.Resource, "write chunk", "%s: %w", t, err)
		}
	}
	cw.Written++
	glog.V(3).Infof("chunk: wrote %s length=%d", t, len(data))
	return nil
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s(%d)", c.Type, c.Length)
}
