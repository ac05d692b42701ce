package images

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pngpipe.adpollak.net/internal/codec"
	"pngpipe.adpollak.net/internal/row"
)

func roundTrip(t *testing.T, m image.Image) image.Image {
	t.Helper()
	cfg, rows := FromImage(m)
	var buf bytes.Buffer
	e, err := codec.NewEncoder(&buf, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.WriteImage(rows); err != nil {
		t.Fatal(err)
	}
	d, err := codec.NewDecoder(&buf, codec.DecoderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	img, err := d.ReadImage()
	if err != nil {
		t.Fatal(err)
	}
	out, err := CreateImage(img)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func sameImage(t *testing.T, want, got image.Image, model color.Model) {
	t.Helper()
	if want.Bounds().Size() != got.Bounds().Size() {
		t.Fatalf("size %v, want %v", got.Bounds(), want.Bounds())
	}
	wb, gb := want.Bounds(), got.Bounds()
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			w := model.Convert(want.At(wb.Min.X+x, wb.Min.Y+y))
			g := model.Convert(got.At(gb.Min.X+x, gb.Min.Y+y))
			if w != g {
				t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, g, w)
			}
		}
	}
}

func TestRoundTripImages(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	rect := image.Rect(0, 0, 7, 5)

	gray := image.NewGray(rect)
	r.Read(gray.Pix)
	gray16 := image.NewGray16(rect)
	r.Read(gray16.Pix)
	nrgba := image.NewNRGBA(rect)
	r.Read(nrgba.Pix)
	nrgba64 := image.NewNRGBA64(rect)
	r.Read(nrgba64.Pix)
	opaque := image.NewNRGBA(rect)
	r.Read(opaque.Pix)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	rgba64 := image.NewRGBA64(rect)
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			rgba64.SetRGBA64(x, y, color.RGBA64{R: uint16(r.Intn(1 << 16)), G: 1000, B: uint16(x * y), A: 0xffff})
		}
	}
	pal := image.NewPaletted(rect, color.Palette{
		color.NRGBA{255, 0, 0, 255}, color.NRGBA{0, 255, 0, 128}, color.NRGBA{0, 0, 255, 255},
	})
	for i := range pal.Pix {
		pal.Pix[i] = uint8(r.Intn(3))
	}
	ycc := image.NewYCbCr(rect, image.YCbCrSubsampleRatio444)
	r.Read(ycc.Y)
	r.Read(ycc.Cb)
	r.Read(ycc.Cr)

	tests := []struct {
		name  string
		img   image.Image
		model color.Model
		want  any
	}{
		{"gray", gray, color.GrayModel, &image.Gray{}},
		{"gray16", gray16, color.Gray16Model, &image.Gray16{}},
		{"nrgba", nrgba, color.NRGBAModel, &image.NRGBA{}},
		{"nrgba64", nrgba64, color.NRGBA64Model, &image.NRGBA64{}},
		{"opaque", opaque, color.NRGBAModel, &image.RGBA{}},
		{"rgba64", rgba64, color.NRGBA64Model, &image.RGBA64{}},
		{"paletted", pal, color.NRGBAModel, &image.Paletted{}},
		{"ycbcr", ycc, color.NRGBAModel, &image.RGBA{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.img)
			if gt, wt := typeName(got), typeName(tt.want); gt != wt {
				t.Errorf("decoded as %s, want %s", gt, wt)
			}
			sameImage(t, tt.img, got, tt.model)
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *image.Gray:
		return "Gray"
	case *image.Gray16:
		return "Gray16"
	case *image.NRGBA:
		return "NRGBA"
	case *image.NRGBA64:
		return "NRGBA64"
	case *image.RGBA:
		return "RGBA"
	case *image.RGBA64:
		return "RGBA64"
	case *image.Paletted:
		return "Paletted"
	}
	return "other"
}

func TestCreateImageSubByte(t *testing.T) {
	img := &codec.Image{Info: row.New(4, row.Gray, 2), Height: 1, Stride: 1, Pix: []byte{0x1b}}
	m, err := CreateImage(img)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 85, 170, 255}, m.(*image.Gray).Pix); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	img = &codec.Image{
		Info:    row.New(3, row.Palette, 4),
		Height:  1,
		Stride:  2,
		Pix:     []byte{0x10, 0x20},
		Palette: []row.Entry{{R: 1, G: 1, B: 1}, {R: 2, G: 2, B: 2}, {R: 3, G: 3, B: 3}},
		Trans:   []uint8{0},
	}
	m, err = CreateImage(img)
	if err != nil {
		t.Fatal(err)
	}
	p := m.(*image.Paletted)
	if diff := cmp.Diff([]uint8{1, 0, 2}, p.Pix); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if c := p.Palette[0].(color.NRGBA); c.A != 0 {
		t.Errorf("entry 0 alpha %d", c.A)
	}
}

func TestCreateImageChannels(t *testing.T) {
	info := row.New(1, row.RGB, 8)
	info.Channels = 4
	info.Recompute()
	if _, err := CreateImage(&codec.Image{Info: info, Height: 1, Stride: 4, Pix: make([]byte, 4)}); err == nil {
		t.Error("filler rows accepted")
	}
}
