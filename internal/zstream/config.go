// Package zstream owns the single deflate compressor shared by every
// compressed item of an encode, and the inflate side used on decode.
//
// Items take turns through a claim: Claim hands out exclusive use of the
// compressor until the claim is released. Image data is emitted as IDAT
// chunks as the output buffers fill; other items are collected whole.
package zstream

import (
	"fmt"

	"github.com/klauspost/compress/zlib"

	"pngpipe.adpollak.net/internal/pngerr"
)

// Strategy is the deflate strategy of a tuning profile.
type Strategy uint8

const (
	// StrategyAuto lets the encoder choose: filtered when any filter other
	// than None is enabled, default otherwise.
	StrategyAuto Strategy = iota
	StrategyDefault
	StrategyFiltered
	StrategyHuffmanOnly
	StrategyRLE
	StrategyFixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyDefault:
		return "default"
	case StrategyFiltered:
		return "filtered"
	case StrategyHuffmanOnly:
		return "huffman"
	case StrategyRLE:
		return "rle"
	case StrategyFixed:
		return "fixed"
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// Tuning is one compression profile. Two claims with equal tunings reuse
// the compressor with a reset; any difference reinitializes it.
//
// The deflater only takes a level. WindowBits reaches the stream through
// the CMF header byte, and StrategyHuffmanOnly selects the Huffman-only
// level. MemLevel and the Filtered, RLE and Fixed strategies are
// validated and take part in the reset comparison but do not change the
// compressed output.
type Tuning struct {
	// Level is the zlib level, -1 for the default.
	Level int
	// WindowBits is the maximum window, 8 to 15; 0 means 15.
	WindowBits int
	// MemLevel is 1 to 9; 0 means 8. It has no effect on the output.
	MemLevel int
	Strategy Strategy
}

// Default limits.
const (
	DefaultBufferSize = 8192
	MaxBufferSize     = 1<<31 - 1
	maxWindowBits     = 15
	defaultMemLevel   = 8
)

func (t Tuning) withDefaults() Tuning {
	if t.WindowBits == 0 {
		t.WindowBits = maxWindowBits
	}
	if t.MemLevel == 0 {
		t.MemLevel = defaultMemLevel
	}
	if t.Strategy == StrategyAuto {
		t.Strategy = StrategyDefault
	}
	return t
}

func (t Tuning) validate(name string) error {
	if t.Level < zlib.HuffmanOnly || t.Level > zlib.BestCompression {
		return pngerr.Newf(pngerr.Internal, "zstream config", "%s level %d", name, t.Level)
	}
	if t.WindowBits != 0 && (t.WindowBits < 8 || t.WindowBits > maxWindowBits) {
		return pngerr.Newf(pngerr.Internal, "zstream config", "%s window bits %d", name, t.WindowBits)
	}
	if t.MemLevel < 0 || t.MemLevel > 9 {
		return pngerr.Newf(pngerr.Internal, "zstream config", "%s mem level %d", name, t.MemLevel)
	}
	if t.Strategy > StrategyFixed {
		return pngerr.Newf(pngerr.Internal, "zstream config", "%s strategy %d", name, t.Strategy)
	}
	return nil
}

// level is the compressor level the tuning maps to. The deflater only
// distinguishes Huffman-only among the strategies.
func (t Tuning) level() int {
	if t.Strategy == StrategyHuffmanOnly {
		return zlib.HuffmanOnly
	}
	return t.Level
}

// Config holds the image and text profiles and the output buffer size.
type Config struct {
	Image Tuning
	Text  Tuning
	// BufferSize is the size of each output buffer and so the data size
	// of every IDAT chunk but the last.
	BufferSize int

	// Reporter receives benign errors; nil logs them.
	Reporter pngerr.Reporter
}

// DefaultConfig returns default-level profiles and 8 KiB buffers.
func DefaultConfig() Config {
	return Config{
		Image:      Tuning{Level: zlib.DefaultCompression},
		Text:       Tuning{Level: zlib.DefaultCompression},
		BufferSize: DefaultBufferSize,
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if err := c.Image.validate("image"); err != nil {
		return err
	}
	if err := c.Text.validate("text"); err != nil {
		return err
	}
	switch {
	case c.BufferSize == 0:
		c.BufferSize = DefaultBufferSize
	case c.BufferSize < 0:
		return pngerr.Newf(pngerr.Internal, "zstream config", "buffer size %d", c.BufferSize)
	case c.BufferSize > MaxBufferSize:
		c.BufferSize = MaxBufferSize
	}
	return nil
}
