package transform

import (
	"fmt"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// WriteSession converts caller rows to the file format before filtering.
type WriteSession struct {
	cfg    WriteConfig
	file   row.Info
	in     row.Info
	stages []stage
}

// NewWriteSession prepares the write stages for an image whose file
// format is given by file.
func NewWriteSession(file row.Info, cfg WriteConfig) (*WriteSession, error) {
	if !file.ColorType.Valid() || !row.ValidDepth(file.ColorType, file.BitDepth) {
		return nil, pngerr.Newf(pngerr.Format, "write session", "invalid format %v/%d", file.ColorType, file.BitDepth)
	}
	w := &WriteSession{cfg: cfg, file: file, in: file}
	if cfg.Pack && file.BitDepth < 8 {
		w.in.BitDepth = 8
	}
	if cfg.Filler != nil {
		if (file.ColorType != row.Gray && file.ColorType != row.RGB) || file.BitDepth < 8 {
			return nil, pngerr.Newf(pngerr.Internal, "write session", "filler needs 8 or 16-bit gray or RGB, have %v/%d", file.ColorType, file.BitDepth)
		}
		w.in.Channels++
	}
	if sig := cfg.Shift; sig != nil {
		for _, b := range channelBits(&file, *sig) {
			if b == 0 || b > file.BitDepth {
				return nil, pngerr.Newf(pngerr.Internal, "write session", "%d significant bits at depth %d", b, file.BitDepth)
			}
		}
	}
	w.in.Recompute()

	add := func(on bool, name string, run func(*row.Info, []byte) error) {
		if on {
			w.stages = append(w.stages, stage{name, run})
		}
	}
	noErr := func(fn func(*row.Info, []byte)) func(*row.Info, []byte) error {
		return func(i *row.Info, b []byte) error { fn(i, b); return nil }
	}
	add(cfg.Hook != nil, "hook", cfg.Hook)
	add(cfg.Filler != nil, "strip-filler", noErr(w.stripFiller))
	add(cfg.PackSwap, "packswap", noErr(packSwap))
	add(cfg.Pack && file.BitDepth < 8, "pack", noErr(func(i *row.Info, b []byte) { pack(i, b, file.BitDepth) }))
	add(cfg.SwapBytes, "swap-bytes", noErr(swapBytes))
	add(cfg.Shift != nil, "shift", noErr(func(i *row.Info, b []byte) { writeShift(i, b, *cfg.Shift) }))
	add(cfg.SwapAlpha, "swap-alpha", noErr(writeSwapAlpha))
	add(cfg.InvertAlpha, "invert-alpha", noErr(invertAlpha))
	add(cfg.BGR, "bgr", noErr(bgr))
	add(cfg.InvertMono, "invert-mono", noErr(invertMono))

	glog.V(1).Infof("transform: write session in=%v file=%v stages=%d", w.in, file, len(w.stages))
	return w, nil
}

// Input returns the shape of the rows the caller supplies at the given
// width.
func (w *WriteSession) Input(width uint32) row.Info {
	i := w.in
	i.SetWidth(width)
	return i
}

// BufferSize is the row buffer size needed at the given width.
func (w *WriteSession) BufferSize(width uint32) int {
	return max(row.Bytes(width, w.in.PixelDepth), row.Bytes(width, w.file.PixelDepth))
}

// Stages names the write stages in the order they run.
func (w *WriteSession) Stages() []string {
	names := make([]string, len(w.stages))
	for i, st := range w.stages {
		names[i] = st.name
	}
	return names
}

// Apply converts one caller row in place. On return info describes the
// file format and the row occupies buf[:info.RowBytes].
func (w *WriteSession) Apply(info *row.Info, buf []byte) error {
	if need := w.BufferSize(info.Width); len(buf) < need {
		return pngerr.Newf(pngerr.Internal, "write transform", "row buffer %d bytes, need %d", len(buf), need)
	}
	for _, st := range w.stages {
		if err := st.run(info, buf); err != nil {
			return fmt.Errorf("write transform %s: %w", st.name, err)
		}
	}
	if info.PixelDepth != w.file.PixelDepth {
		return pngerr.Newf(pngerr.Format, "write transform", "%w: pixel depth %d, file needs %d", pngerr.ErrRowSize, info.PixelDepth, w.file.PixelDepth)
	}
	return nil
}

// stripFiller removes the filler channel from gray and RGB rows.
func (w *WriteSession) stripFiller(info *row.Info, buf []byte) {
	if info.Channels != info.ColorType.Channels()+1 || info.BitDepth < 8 {
		return
	}
	ch := int(info.Channels) - 1
	if w.cfg.Filler.Before {
		ch = 0
	}
	dropChannel(info, buf, ch)
}
