package transform

import "pngpipe.adpollak.net/internal/row"

// Scale16 reduces one big-endian 16-bit sample to 8 bits, exactly
// round(v*255/65535).
func Scale16(hi, lo uint8) uint8 {
	t := int(hi)
	t += ((int(lo) - t + 128) * 65535) >> 24
	return uint8(t)
}

func scale16(info *row.Info, buf []byte) {
	if info.BitDepth != 16 {
		return
	}
	n := int(info.Width) * int(info.Channels)
	for i := 0; i < n; i++ {
		buf[i] = Scale16(buf[2*i], buf[2*i+1])
	}
	info.BitDepth = 8
	info.Recompute()
}

// chop16 reduces 16-bit samples to 8 bits by keeping the high byte.
func chop16(info *row.Info, buf []byte) {
	if info.BitDepth != 16 {
		return
	}
	n := int(info.Width) * int(info.Channels)
	for i := 0; i < n; i++ {
		buf[i] = buf[2*i]
	}
	info.BitDepth = 8
	info.Recompute()
}

// channelBits lists the significant bits of each row channel in order.
func channelBits(info *row.Info, sig row.SigBits) []uint8 {
	var bits []uint8
	if info.ColorType.HasColor() {
		bits = append(bits, sig.R, sig.G, sig.B)
	} else {
		bits = append(bits, sig.Gray)
	}
	if info.ColorType.HasAlpha() {
		bits = append(bits, sig.Alpha)
	}
	return bits
}

// unshiftRow shifts samples down so that only their significant bits
// remain. Shifts outside (0, depth) are ignored.
func (s *Session) unshiftRow(info *row.Info, buf []byte) {
	if info.ColorType.IsPalette() {
		return
	}
	d := int(info.BitDepth)
	bits := channelBits(info, s.unshift)
	shift := make([]uint, len(bits))
	have := false
	for c, b := range bits {
		if n := d - int(b); n > 0 && n < d {
			shift[c] = uint(n)
			have = true
		}
	}
	if !have {
		return
	}
	switch d {
	case 1, 2, 4:
		for x := 0; x < int(info.Width); x++ {
			setSample(buf, x, info.BitDepth, sampleAt(buf, x, info.BitDepth)>>shift[0])
		}
	case 8:
		n := int(info.Width) * len(bits)
		for i := 0; i < n; i++ {
			buf[i] >>= shift[i%len(bits)]
		}
	case 16:
		n := int(info.Width) * len(bits)
		for i := 0; i < n; i++ {
			put16(buf, 2*i, get16(buf, 2*i)>>shift[i%len(bits)])
		}
	}
}

// replicate scales a value holding sig significant bits up to depth bits
// by repeating its bit pattern.
func replicate(v uint16, sig, depth int) uint16 {
	var out uint16
	for j := depth - sig; j > -sig; j -= sig {
		if j > 0 {
			out |= v << uint(j)
		} else {
			out |= v >> uint(-j)
		}
	}
	return out & (1<<uint(depth) - 1)
}

// writeShift is the inverse of unshift: samples holding their
// significant bits are scaled up to the full depth.
func writeShift(info *row.Info, buf []byte, sig row.SigBits) {
	if info.ColorType.IsPalette() {
		return
	}
	d := int(info.BitDepth)
	bits := channelBits(info, sig)
	use := make([]int, len(bits))
	have := false
	for c, b := range bits {
		if b > 0 && int(b) < d {
			use[c] = int(b)
			have = true
		}
	}
	if !have {
		return
	}
	shiftOne := func(c int, v uint16) uint16 {
		if use[c] == 0 {
			return v
		}
		return replicate(v, use[c], d)
	}
	switch d {
	case 1, 2, 4:
		for x := 0; x < int(info.Width); x++ {
			v := shiftOne(0, uint16(sampleAt(buf, x, info.BitDepth)))
			setSample(buf, x, info.BitDepth, uint8(v))
		}
	case 8:
		n := int(info.Width) * len(bits)
		for i := 0; i < n; i++ {
			buf[i] = uint8(shiftOne(i%len(bits), uint16(buf[i])))
		}
	case 16:
		n := int(info.Width) * len(bits)
		for i := 0; i < n; i++ {
			put16(buf, 2*i, shiftOne(i%len(bits), get16(buf, 2*i)))
		}
	}
}

// pack stores one-sample-per-byte rows at the file depth, keeping the low
// bits of each byte. The final byte is zero padded.
func pack(info *row.Info, buf []byte, depth uint8) {
	if info.BitDepth != 8 || info.Channels != 1 || depth >= 8 {
		return
	}
	w := int(info.Width)
	m := uint8(1<<depth - 1)
	for x := 0; x < w; x++ {
		v := buf[x]
		if depth == 1 && v != 0 {
			v = 1
		}
		setSample(buf, x, depth, v&m)
	}
	n := row.Bytes(info.Width, depth)
	if used := (w * int(depth)) % 8; used != 0 {
		buf[n-1] &= 0xff << uint(8-used)
	}
	info.BitDepth = depth
	info.Recompute()
}
