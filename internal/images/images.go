// Package images converts between decoded rows and image.Image values.
package images

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/chunk"
	"pngpipe.adpollak.net/internal/codec"
	"pngpipe.adpollak.net/internal/row"
	"pngpipe.adpollak.net/internal/transform"
)

// CreateImage builds an image.Image from decoded rows. The output
// format of the read session decides the image type: Gray, Gray16,
// RGBA, RGBA64, NRGBA, NRGBA64 or Paletted. Gray and palette samples
// below 8 bits are widened as they are copied.
func CreateImage(img *codec.Image) (image.Image, error) {
	// Switch on the 5 color types as specified in the PNG specification.
	info := img.Info
	w, h := int(info.Width), int(img.Height)
	if info.Channels != info.ColorType.Channels() {
		return nil, fmt.Errorf("rows of %d channels for %v", info.Channels, info.ColorType)
	}
	var m image.Image
	switch info.ColorType {
	case row.Gray:
		m = handleGreyscale(img, w, h)
		glog.V(2).Info("images: ColorType Greyscale")
	case row.RGB:
		m = handleTruecolor(img, w, h)
		glog.V(2).Info("images: ColorType Truecolor")
	case row.Palette:
		m = handleIndexed(img, w, h)
		glog.V(2).Info("images: ColorType Indexed-color")
	case row.GrayAlpha:
		m = handleGreyscaleAlpha(img, w, h)
		glog.V(2).Info("images: ColorType Greyscale with alpha")
	case row.RGBA:
		m = handleTruecolorAlpha(img, w, h)
		glog.V(2).Info("images: ColorType Truecolor with alpha")
	default:
		return nil, fmt.Errorf("invalid ColorType: %v", info.ColorType)
	}
	return m, nil
}

// sample reads sample x of a row of depth-bit samples.
func sample(r []byte, x int, depth uint8) uint8 {
	if depth == 8 {
		return r[x]
	}
	per := 8 / int(depth)
	shift := uint(8 - int(depth)*(x%per+1))
	return r[x/per] >> shift & (1<<depth - 1)
}

func handleGreyscale(img *codec.Image, width, height int) image.Image {
	d := img.Info.BitDepth
	if d == 16 {
		m := image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			copy(m.Pix[y*m.Stride:], img.Row(uint32(y)))
		}
		return m
	}
	m := image.NewGray(image.Rect(0, 0, width, height))
	var scale uint8 = 1
	if d < 8 {
		scale = 255 / (1<<d - 1)
	}
	for y := 0; y < height; y++ {
		r := img.Row(uint32(y))
		for x := 0; x < width; x++ {
			m.Pix[y*m.Stride+x] = sample(r, x, d) * scale
		}
	}
	return m
}

func handleTruecolor(img *codec.Image, width, height int) image.Image {
	if img.Info.BitDepth == 16 {
		m := image.NewRGBA64(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			r := img.Row(uint32(y))
			p := m.Pix[y*m.Stride:]
			for x := 0; x < width; x++ {
				copy(p[8*x:8*x+6], r[6*x:6*x+6])
				p[8*x+6], p[8*x+7] = 0xff, 0xff
			}
		}
		return m
	}
	m := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		r := img.Row(uint32(y))
		p := m.Pix[y*m.Stride:]
		for x := 0; x < width; x++ {
			copy(p[4*x:4*x+3], r[3*x:3*x+3])
			p[4*x+3] = 0xff
		}
	}
	return m
}

func handleIndexed(img *codec.Image, width, height int) image.Image {
	pal := make(color.Palette, len(img.Palette))
	for i, c := range img.Palette {
		a := uint8(0xff)
		if i < len(img.Trans) {
			a = img.Trans[i]
		}
		pal[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
	}
	m := image.NewPaletted(image.Rect(0, 0, width, height), pal)
	for y := 0; y < height; y++ {
		r := img.Row(uint32(y))
		for x := 0; x < width; x++ {
			m.Pix[y*m.Stride+x] = sample(r, x, img.Info.BitDepth)
		}
	}
	return m
}

func handleGreyscaleAlpha(img *codec.Image, width, height int) image.Image {
	if img.Info.BitDepth == 16 {
		m := image.NewNRGBA64(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			r := img.Row(uint32(y))
			p := m.Pix[y*m.Stride:]
			for x := 0; x < width; x++ {
				g0, g1 := r[4*x], r[4*x+1]
				copy(p[8*x:8*x+8], []byte{g0, g1, g0, g1, g0, g1, r[4*x+2], r[4*x+3]})
			}
		}
		return m
	}
	m := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		r := img.Row(uint32(y))
		p := m.Pix[y*m.Stride:]
		for x := 0; x < width; x++ {
			g := r[2*x]
			p[4*x], p[4*x+1], p[4*x+2], p[4*x+3] = g, g, g, r[2*x+1]
		}
	}
	return m
}

func handleTruecolorAlpha(img *codec.Image, width, height int) image.Image {
	if img.Info.BitDepth == 16 {
		m := image.NewNRGBA64(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			copy(m.Pix[y*m.Stride:], img.Row(uint32(y)))
		}
		return m
	}
	m := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		copy(m.Pix[y*m.Stride:], img.Row(uint32(y)))
	}
	return m
}

// FromImage converts m into an encoder configuration, header and palette
// filled in, and the rows to write. The format follows the image type;
// anything without a direct PNG equivalent is written as 8-bit RGBA.
func FromImage(m image.Image) (codec.EncoderConfig, [][]byte) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	hdr := chunk.IHDR{Width: uint32(w), Height: uint32(h), BitDepth: 8}
	cfg := codec.EncoderConfig{}
	rows := make([][]byte, h)

	switch src := m.(type) {
	case *image.Gray:
		hdr.ColorType = uint8(row.Gray)
		for y := range rows {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			rows[y] = src.Pix[off : off+w]
		}
	case *image.Gray16:
		hdr.ColorType, hdr.BitDepth = uint8(row.Gray), 16
		for y := range rows {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			rows[y] = src.Pix[off : off+2*w]
		}
	case *image.Paletted:
		hdr.ColorType = uint8(row.Palette)
		cfg.Palette, cfg.Trans = palette(src.Palette)
		for y := range rows {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			rows[y] = src.Pix[off : off+w]
		}
	case *image.NRGBA:
		hdr.ColorType = uint8(row.RGBA)
		for y := range rows {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			rows[y] = src.Pix[off : off+4*w]
		}
	case *image.NRGBA64:
		hdr.ColorType, hdr.BitDepth = uint8(row.RGBA), 16
		for y := range rows {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			rows[y] = src.Pix[off : off+8*w]
		}
	case *image.RGBA64:
		hdr.ColorType, hdr.BitDepth = uint8(row.RGBA), 16
		for y := range rows {
			r := make([]byte, 0, 8*w)
			for x := 0; x < w; x++ {
				c := color.NRGBA64Model.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				r = append(r, byte(c.R>>8), byte(c.R), byte(c.G>>8), byte(c.G), byte(c.B>>8), byte(c.B), byte(c.A>>8), byte(c.A))
			}
			rows[y] = r
		}
	default:
		hdr.ColorType = uint8(row.RGBA)
		for y := range rows {
			r := make([]byte, 0, 4*w)
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				r = append(r, c.R, c.G, c.B, c.A)
			}
			rows[y] = r
		}
	}
	if row.ColorType(hdr.ColorType) == row.RGBA && opaque(rows, int(hdr.BitDepth)/8) {
		// The write pipeline strips the alpha channel as a filler.
		hdr.ColorType = uint8(row.RGB)
		cfg.Transform.Filler = &transform.Filler{}
	}
	cfg.Header = hdr
	glog.V(1).Infof("images: %T as %v/%d", m, row.ColorType(hdr.ColorType), hdr.BitDepth)
	return cfg, rows
}

func palette(p color.Palette) ([]row.Entry, *chunk.TRNS) {
	pal := make([]row.Entry, len(p))
	alpha := make([]uint8, len(p))
	last := -1
	for i, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		pal[i] = row.Entry{R: n.R, G: n.G, B: n.B}
		alpha[i] = n.A
		if n.A != 0xff {
			last = i
		}
	}
	if last < 0 {
		return pal, nil
	}
	return pal, &chunk.TRNS{Alpha: alpha[:last+1]}
}

// opaque reports whether every alpha sample of RGBA rows with n bytes
// per sample is at its maximum.
func opaque(rows [][]byte, n int) bool {
	for _, r := range rows {
		for i := 3 * n; i < len(r); i += 4 * n {
			for k := 0; k < n; k++ {
				if r[i+k] != 0xff {
					return false
				}
			}
		}
	}
	return true
}
