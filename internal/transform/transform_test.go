package transform

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/row"
)

// run finalizes a session and pushes a single row through it.
func run(t *testing.T, src Source, cfg ReadConfig, in []byte) ([]byte, row.Info, *Session) {
	t.Helper()
	s, err := NewSession(src, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	info := src.Info()
	buf := make([]byte, s.BufferSize(info.Width))
	copy(buf, in)
	if err := s.Apply(&info, buf); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return buf[:info.RowBytes], info, s
}

func quiet() pngerr.Reporter { return pngerr.ReporterFunc(func(error) {}) }

func TestScale16Exhaustive(t *testing.T) {
	for v := 0; v < 65536; v++ {
		want := uint8(math.Floor(float64(v)*255/65535 + .5))
		if got := Scale16(uint8(v>>8), uint8(v)); got != want {
			t.Fatalf("Scale16(%#04x) = %d, want %d", v, got, want)
		}
	}
}

func TestExpandGray1Bit(t *testing.T) {
	src := Source{Width: 5, ColorType: row.Gray, BitDepth: 1}
	got, info, _ := run(t, src, ReadConfig{Expand: true}, []byte{0xb0})
	if diff := cmp.Diff([]byte{255, 0, 255, 255, 0}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.BitDepth != 8 || info.RowBytes != 5 {
		t.Errorf("info %v", info)
	}
}

func TestExpandGrayKeyToAlpha(t *testing.T) {
	src := Source{Width: 4, ColorType: row.Gray, BitDepth: 2, TransColor: &row.Color16{Gray: 2}}
	// 00 01 10 11
	got, info, _ := run(t, src, ReadConfig{ExpandTRNS: true}, []byte{0x1b})
	want := []byte{0, 0xff, 0x55, 0xff, 0xaa, 0, 0xff, 0xff}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.GrayAlpha {
		t.Errorf("color type %v", info.ColorType)
	}
}

func TestExpandPalette(t *testing.T) {
	var warns int
	src := Source{
		Width: 4, ColorType: row.Palette, BitDepth: 2,
		Palette: []row.Entry{{R: 1, G: 2, B: 3}, {R: 4, G: 5, B: 6}, {R: 7, G: 8, B: 9}},
		Trans:   []uint8{0, 128},
	}
	cfg := ReadConfig{Expand: true, Reporter: pngerr.ReporterFunc(func(err error) {
		if !errors.Is(err, pngerr.ErrPaletteIndex) {
			t.Errorf("unexpected warning %v", err)
		}
		warns++
	})}
	// Indices 0, 1, 2 and the out-of-range 3.
	got, info, _ := run(t, src, cfg, []byte{0x1b})
	want := []byte{
		1, 2, 3, 0,
		4, 5, 6, 128,
		7, 8, 9, 255,
		1, 2, 3, 0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.RGBA || warns != 1 {
		t.Errorf("color type %v, %d warnings", info.ColorType, warns)
	}
}

func TestRGBToGrayPolicy(t *testing.T) {
	src := Source{Width: 2, ColorType: row.RGB, BitDepth: 8}
	in := []byte{10, 10, 10, 255, 0, 0}

	got, info, s := run(t, src, ReadConfig{RGBToGray: &RGBToGray{Action: pngerr.ActionNone}}, in)
	if diff := cmp.Diff([]byte{10, 54}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.Gray || !s.HadColor() {
		t.Errorf("info %v had color %v", info, s.HadColor())
	}

	var warned []error
	cfg := ReadConfig{RGBToGray: &RGBToGray{Action: pngerr.ActionWarn}, Reporter: pngerr.ReporterFunc(func(err error) { warned = append(warned, err) })}
	run(t, src, cfg, in)
	if len(warned) != 1 || !errors.Is(warned[0], pngerr.ErrNonGray) {
		t.Errorf("warnings %v", warned)
	}

	s, err := NewSession(src, ReadConfig{RGBToGray: &RGBToGray{Action: pngerr.ActionError}})
	if err != nil {
		t.Fatal(err)
	}
	ri := src.Info()
	buf := make([]byte, s.BufferSize(2))
	copy(buf, in)
	err = s.Apply(&ri, buf)
	if !errors.Is(err, pngerr.ErrPolicy) || !errors.Is(err, pngerr.ErrNonGray) {
		t.Errorf("Apply error %v", err)
	}

	// An all-gray row leaves the status clear.
	_, _, s = run(t, src, ReadConfig{RGBToGray: &RGBToGray{Action: pngerr.ActionError}}, []byte{1, 1, 1, 2, 2, 2})
	if s.HadColor() {
		t.Error("gray row reported color")
	}
}

func TestRGBToGrayCoefficients(t *testing.T) {
	src := Source{Width: 1, ColorType: row.RGB, BitDepth: 8}
	// Pure red with a red weight of one half.
	got, _, _ := run(t, src, ReadConfig{RGBToGray: &RGBToGray{Red: 50000, Green: 25000}}, []byte{200, 0, 0})
	if got[0] != 100 {
		t.Errorf("gray = %d, want 100", got[0])
	}
	var warned bool
	cfg := ReadConfig{RGBToGray: &RGBToGray{Red: 80000, Green: 80000}, Reporter: pngerr.ReporterFunc(func(error) { warned = true })}
	got, _, _ = run(t, src, cfg, []byte{255, 0, 0})
	if !warned || got[0] != 54 {
		t.Errorf("oversized coefficients: warned %v gray %d", warned, got[0])
	}
}

func TestComposeGrayAlpha(t *testing.T) {
	src := Source{Width: 3, ColorType: row.GrayAlpha, BitDepth: 8}
	cfg := ReadConfig{Background: &Background{Color: row.Color16{Gray: 100}, GammaType: BackgroundScreen}}
	got, info, _ := run(t, src, cfg, []byte{200, 0, 200, 255, 200, 128})
	if diff := cmp.Diff([]byte{100, 200, 150}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.Gray {
		t.Errorf("alpha not stripped: %v", info)
	}
}

func TestComposeKey16(t *testing.T) {
	src := Source{Width: 2, ColorType: row.RGB, BitDepth: 16, TransColor: &row.Color16{R: 1, G: 2, B: 3}}
	cfg := ReadConfig{Background: &Background{Color: row.Color16{R: 0xaa, G: 0xbb, B: 0xcc}, GammaType: BackgroundScreen}, Scale16: true}
	in := []byte{0, 1, 0, 2, 0, 3, 0xff, 0xff, 0, 0, 0x80, 0x80}
	got, _, _ := run(t, src, cfg, in)
	// The 8-bit background is widened for compositing, then scaled back.
	want := []byte{0xaa, 0xbb, 0xcc, 0xff, 0, 0x80}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestAlphaModeAssociated(t *testing.T) {
	src := Source{Width: 2, ColorType: row.RGBA, BitDepth: 8}
	got, _, s := run(t, src, ReadConfig{AlphaMode: AlphaAssociated}, []byte{200, 200, 200, 128, 9, 9, 9, 0})
	if diff := cmp.Diff([]byte{100, 100, 100, 128, 0, 0, 0, 0}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if s.Tables() != nil {
		t.Error("linear data should not need tables")
	}
}

func TestPaletteComposedUpFront(t *testing.T) {
	src := Source{
		Width: 2, ColorType: row.Palette, BitDepth: 8,
		Palette: []row.Entry{{R: 200, G: 200, B: 200}, {R: 100, G: 0, B: 0}, {R: 0, G: 0, B: 50}},
		Trans:   []uint8{128, 0},
	}
	cfg := ReadConfig{
		Expand:     true,
		Background: &Background{Color: row.Color16{Index: 2}, GammaType: BackgroundFile, NeedExpand: true},
	}
	got, info, s := run(t, src, cfg, []byte{0, 1})
	if s.Flags().Has(FlagCompose) {
		t.Error("compose left for rows")
	}
	want := []byte{composite8(200, 128, 0), composite8(200, 128, 0), composite8(200, 128, 50), 0, 0, 50}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.RGB {
		t.Errorf("info %v", info)
	}
}

func TestGammaStage(t *testing.T) {
	src := Source{Width: 2, ColorType: row.GrayAlpha, BitDepth: 8, Gamma: gamma.SRGB}
	got, _, s := run(t, src, ReadConfig{ScreenGamma: gamma.Unity}, []byte{128, 77, 255, 0})
	g := gamma.Reciprocal2(gamma.SRGB, gamma.Unity)
	want := []byte{gamma.Correct8(128, g), 77, 255, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"gamma"}, s.Stages()); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}

	// Reciprocal file and screen gamma need no correction.
	_, _, s = run(t, src, ReadConfig{ScreenGamma: gamma.Display}, []byte{128, 77, 255, 0})
	if s.Flags().Has(FlagGamma) || len(s.Stages()) != 0 {
		t.Errorf("flags %v stages %v", s.Flags(), s.Stages())
	}
}

func TestGrayComposeSingleCorrection(t *testing.T) {
	src := Source{Width: 1, ColorType: row.RGBA, BitDepth: 8, Gamma: gamma.SRGB}
	bg := &Background{Color: row.Color16{Gray: 0}, GammaType: BackgroundScreen}
	in := []byte{100, 100, 100, 255}

	got, _, s := run(t, src, ReadConfig{RGBToGray: &RGBToGray{}, Background: bg, ScreenGamma: gamma.Unity, Reporter: quiet()}, in)
	tb := s.Tables()
	if got[0] != tb.Table[100] {
		t.Errorf("linear path gray = %d, want %d", got[0], tb.Table[100])
	}

	var warned int
	legacy := ReadConfig{
		RGBToGray: &RGBToGray{}, Background: bg, ScreenGamma: gamma.Unity,
		LegacyGrayCompose: true,
		Reporter:          pngerr.ReporterFunc(func(error) { warned++ }),
	}
	got, _, s = run(t, src, legacy, in)
	tb = s.Tables()
	if got[0] != tb.Table[tb.Table[100]] || warned != 1 {
		t.Errorf("legacy path gray = %d, want %d (warnings %d)", got[0], tb.Table[tb.Table[100]], warned)
	}
	if tb.Table[100] == tb.Table[tb.Table[100]] {
		t.Fatal("test gamma does not distinguish the paths")
	}
}

func TestGrayComposeKeyAndPalette(t *testing.T) {
	bg := &Background{Color: row.Color16{R: 50, G: 50, B: 50}, GammaType: BackgroundScreen}
	cfg := ReadConfig{RGBToGray: &RGBToGray{}, Background: bg, ScreenGamma: 180000, Reporter: quiet()}
	want := []string{"expand", "rgb-to-gray", "compose", "strip-alpha"}

	tests := []struct {
		name string
		src  Source
		in   []byte
	}{
		{
			name: "key",
			src:  Source{Width: 2, ColorType: row.RGB, BitDepth: 8, Gamma: gamma.SRGB, TransColor: &row.Color16{R: 1, G: 2, B: 3}},
			in:   []byte{100, 100, 100, 1, 2, 3},
		},
		{
			name: "palette",
			src: Source{
				Width: 2, ColorType: row.Palette, BitDepth: 8, Gamma: gamma.SRGB,
				Palette: []row.Entry{{R: 100, G: 100, B: 100}, {R: 9, G: 9, B: 9}},
				Trans:   []uint8{0xff, 0},
			},
			in: []byte{0, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, info, s := run(t, tt.src, cfg, tt.in)
			if diff := cmp.Diff(want, s.Stages()); diff != "" {
				t.Errorf("stages (-want +got):\n%s", diff)
			}
			tb := s.Tables()
			if diff := cmp.Diff([]byte{tb.Table[100], 50}, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if tb.Table[100] == tb.Table[tb.Table[100]] {
				t.Fatal("test gamma does not distinguish single and double correction")
			}
			if info.ColorType != row.Gray {
				t.Errorf("color type %v", info.ColorType)
			}
		})
	}
}

func TestGrayComposeKey16(t *testing.T) {
	src := Source{Width: 2, ColorType: row.RGB, BitDepth: 16, Gamma: gamma.SRGB, TransColor: &row.Color16{R: 1, G: 2, B: 3}}
	bg := &Background{Color: row.Color16{R: 5000, G: 5000, B: 5000}, GammaType: BackgroundScreen}
	cfg := ReadConfig{RGBToGray: &RGBToGray{}, Background: bg, ScreenGamma: 180000, Reporter: quiet()}
	in := []byte{0x64, 0, 0x64, 0, 0x64, 0, 0, 1, 0, 2, 0, 3}

	got, _, s := run(t, src, cfg, in)
	tb := s.Tables()
	v := tb.Lookup16(tb.Table16, 0x6400)
	want := []byte{byte(v >> 8), byte(v), 5000 >> 8, 5000 & 0xff}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if v == tb.Lookup16(tb.Table16, v) {
		t.Fatal("test gamma does not distinguish single and double correction")
	}
}

func TestStageOrder(t *testing.T) {
	src := Source{Width: 1, ColorType: row.RGBA, BitDepth: 16}
	cfg := ReadConfig{
		// Flags given in an order unrelated to the stage order.
		Filler:     &Filler{Value: 0xff},
		BGR:        true,
		GrayToRGB:  true,
		Scale16:    true,
		Background: &Background{Color: row.Color16{R: 9, G: 9, B: 9}, GammaType: BackgroundScreen},
		Expand:     true,
	}
	s, err := NewSession(src, cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"expand", "compose", "strip-alpha", "scale-16", "gray-to-rgb", "bgr", "filler"}
	if diff := cmp.Diff(want, s.Stages()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestQuantizeMerging(t *testing.T) {
	pal := []row.Entry{{R: 0, G: 0, B: 0}, {R: 1, G: 1, B: 1}, {R: 200, G: 200, B: 200}, {R: 255, G: 255, B: 255}}
	src := Source{Width: 4, ColorType: row.Palette, BitDepth: 8, Palette: pal}
	got, _, s := run(t, src, ReadConfig{Quantize: &Quantize{MaxColors: 2}}, []byte{0, 1, 2, 3})
	if diff := cmp.Diff([]byte{0, 0, 1, 1}, got); diff != "" {
		t.Errorf("indices (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]row.Entry{{R: 0, G: 0, B: 0}, {R: 200, G: 200, B: 200}}, s.Palette()); diff != "" {
		t.Errorf("palette (-want +got):\n%s", diff)
	}
}

func TestQuantizeHistogram(t *testing.T) {
	pal := []row.Entry{{R: 0, G: 0, B: 0}, {R: 1, G: 1, B: 1}, {R: 200, G: 200, B: 200}, {R: 255, G: 255, B: 255}}
	src := Source{Width: 4, ColorType: row.Palette, BitDepth: 8, Palette: pal}
	q := &Quantize{MaxColors: 2, Histogram: []uint16{1, 50, 2, 40}}
	got, _, s := run(t, src, ReadConfig{Quantize: q}, []byte{0, 1, 2, 3})
	if diff := cmp.Diff([]byte{0, 0, 1, 1}, got); diff != "" {
		t.Errorf("indices (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]row.Entry{{R: 1, G: 1, B: 1}, {R: 255, G: 255, B: 255}}, s.Palette()); diff != "" {
		t.Errorf("palette (-want +got):\n%s", diff)
	}
}

func TestQuantizeFull(t *testing.T) {
	pal := []row.Entry{{R: 0, G: 0, B: 0}, {R: 255, G: 0, B: 0}, {R: 255, G: 255, B: 255}}
	src := Source{Width: 3, ColorType: row.RGB, BitDepth: 8}
	in := []byte{250, 250, 250, 10, 5, 0, 200, 30, 20}
	got, info, _ := run(t, src, ReadConfig{Quantize: &Quantize{Palette: pal, Full: true}}, in)
	if diff := cmp.Diff([]byte{2, 0, 1}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.ColorType != row.Palette || info.PixelDepth != 8 {
		t.Errorf("info %v", info)
	}
}

func TestChannelStages(t *testing.T) {
	src := Source{Width: 1, ColorType: row.RGBA, BitDepth: 8}
	got, _, _ := run(t, src, ReadConfig{BGR: true, SwapAlpha: true, InvertAlpha: true}, []byte{1, 2, 3, 200})
	if diff := cmp.Diff([]byte{55, 3, 2, 1}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	src = Source{Width: 2, ColorType: row.Gray, BitDepth: 16}
	got, _, _ = run(t, src, ReadConfig{SwapBytes: true, Filler: &Filler{Value: 0xabcd, Before: true}}, []byte{1, 2, 3, 4})
	if diff := cmp.Diff([]byte{0xcd, 0xab, 2, 1, 0xcd, 0xab, 4, 3}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	src = Source{Width: 8, ColorType: row.Gray, BitDepth: 1}
	got, _, _ = run(t, src, ReadConfig{PackSwap: true, InvertMono: true}, []byte{0x01})
	if diff := cmp.Diff([]byte{0x7f}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestUnshiftAndUnpack(t *testing.T) {
	src := Source{Width: 2, ColorType: row.Gray, BitDepth: 8}
	got, _, _ := run(t, src, ReadConfig{Unshift: &row.SigBits{Gray: 5}}, []byte{255, 8})
	if diff := cmp.Diff([]byte{31, 1}, got); diff != "" {
		t.Errorf("unshift (-want +got):\n%s", diff)
	}

	src = Source{Width: 3, ColorType: row.Gray, BitDepth: 4}
	got, _, _ = run(t, src, ReadConfig{Unpack: true}, []byte{0x5a, 0xf0})
	if diff := cmp.Diff([]byte{5, 10, 15}, got); diff != "" {
		t.Errorf("unpack (-want +got):\n%s", diff)
	}
}

func TestExpand16(t *testing.T) {
	src := Source{Width: 1, ColorType: row.RGB, BitDepth: 8}
	got, info, _ := run(t, src, ReadConfig{Expand16: true}, []byte{1, 2, 3})
	if diff := cmp.Diff([]byte{1, 1, 2, 2, 3, 3}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if info.BitDepth != 16 {
		t.Errorf("info %v", info)
	}
}

func TestHook(t *testing.T) {
	src := Source{Width: 2, ColorType: row.Gray, BitDepth: 8}
	cfg := ReadConfig{
		Hook: func(info *row.Info, data []byte) error {
			data[0], data[1] = data[1], data[0]
			return nil
		},
	}
	got, _, _ := run(t, src, cfg, []byte{1, 2})
	if diff := cmp.Diff([]byte{2, 1}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	boom := errors.New("boom")
	s, _ := NewSession(src, ReadConfig{Hook: func(*row.Info, []byte) error { return boom }})
	info := src.Info()
	if err := s.Apply(&info, make([]byte, 2)); !errors.Is(err, boom) {
		t.Errorf("Apply = %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	bad := []ReadConfig{
		{AlphaMode: AlphaOptimized, Background: &Background{GammaType: BackgroundScreen}},
		{Background: &Background{GammaType: 9}},
		{Background: &Background{GammaType: BackgroundUnique}},
		{Quantize: &Quantize{}},
		{HookDepth: 3},
	}
	src := Source{Width: 1, ColorType: row.Gray, BitDepth: 8}
	for i, cfg := range bad {
		if _, err := NewSession(src, cfg); err == nil {
			t.Errorf("config %d accepted", i)
		}
	}
	if _, err := NewSession(Source{Width: 1, ColorType: row.Palette, BitDepth: 8}, ReadConfig{}); !errors.Is(err, pngerr.ErrFormat) {
		t.Errorf("palette without PLTE: %v", err)
	}
}

// TestShapePrediction checks that the predicted output shape matches what
// the stages produce for a spread of formats and configurations.
func TestShapePrediction(t *testing.T) {
	pal := []row.Entry{{R: 0, G: 0, B: 0}, {R: 10, G: 20, B: 30}, {R: 200, G: 100, B: 50}, {R: 255, G: 255, B: 255}}
	sources := []Source{
		{ColorType: row.Gray, BitDepth: 1},
		{ColorType: row.Gray, BitDepth: 4, TransColor: &row.Color16{Gray: 3}},
		{ColorType: row.Gray, BitDepth: 8, Gamma: gamma.SRGB},
		{ColorType: row.Gray, BitDepth: 16, TransColor: &row.Color16{Gray: 300}},
		{ColorType: row.GrayAlpha, BitDepth: 8, Gamma: gamma.SRGB},
		{ColorType: row.GrayAlpha, BitDepth: 16},
		{ColorType: row.RGB, BitDepth: 8, TransColor: &row.Color16{R: 1, G: 2, B: 3}},
		{ColorType: row.RGB, BitDepth: 16, Gamma: gamma.SRGB},
		{ColorType: row.RGBA, BitDepth: 8, Gamma: gamma.SRGB},
		{ColorType: row.RGBA, BitDepth: 16, Gamma: gamma.SRGB},
		{ColorType: row.Palette, BitDepth: 2, Palette: pal, Trans: []uint8{0, 128}},
		{ColorType: row.Palette, BitDepth: 8, Palette: pal, Gamma: gamma.SRGB},
	}
	configs := []ReadConfig{
		{},
		{Expand: true, ExpandTRNS: true},
		{Expand16: true},
		{Scale16: true, StripAlpha: true},
		{GrayToRGB: true, Filler: &Filler{Value: 0xff, AddAlpha: true}},
		{RGBToGray: &RGBToGray{}, Background: &Background{Color: row.Color16{Gray: 7, R: 7, G: 7, B: 7}, GammaType: BackgroundScreen}, ScreenGamma: gamma.Display},
		{AlphaMode: AlphaOptimized},
		{AlphaMode: AlphaBroken, ScreenGamma: gamma.Unity},
		{Strip16: true, Expand: true, Quantize: &Quantize{Palette: pal, Full: true}},
		{Unpack: true, PackSwap: true, InvertMono: true},
		{BGR: true, SwapAlpha: true, SwapBytes: true, InvertAlpha: true},
		{Background: &Background{Color: row.Color16{Index: 1, Gray: 1, R: 1, G: 1, B: 1}, GammaType: BackgroundFile, NeedExpand: true}, Expand: true, ScreenGamma: gamma.Display},
		{Background: &Background{Color: row.Color16{R: 90, G: 20, B: 5}, GammaType: BackgroundUnique, Gamma: 50000}, GrayToRGB: true, ScreenGamma: gamma.Display},
		{Unshift: &row.SigBits{R: 5, G: 5, B: 5, Gray: 3, Alpha: 5}},
	}
	rng := rand.New(rand.NewSource(1))
	for si, src := range sources {
		for ci, cfg := range configs {
			for _, width := range []uint32{1, 7, 13} {
				src.Width = width
				cfg.Reporter = quiet()
				s, err := NewSession(src, cfg)
				if err != nil {
					t.Fatalf("source %d config %d: %v", si, ci, err)
				}
				info := src.Info()
				buf := make([]byte, s.BufferSize(width))
				rng.Read(buf[:info.RowBytes])
				if err := s.Apply(&info, buf); err != nil {
					t.Fatalf("source %d config %d: Apply: %v", si, ci, err)
				}
				if want := s.OutputFor(width); info != want {
					t.Errorf("source %d config %d width %d: got %v, predicted %v (stages %v)", si, ci, width, info, want, s.Stages())
				}
			}
		}
	}
}

func TestWritePackAndShift(t *testing.T) {
	file := row.New(4, row.Gray, 2)
	w, err := NewWriteSession(file, WriteConfig{Pack: true})
	if err != nil {
		t.Fatal(err)
	}
	info := w.Input(4)
	if info.BitDepth != 8 || info.RowBytes != 4 {
		t.Fatalf("input %v", info)
	}
	buf := []byte{3, 0, 1, 2}
	if err := w.Apply(&info, buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0xc6}, buf[:info.RowBytes]); diff != "" {
		t.Errorf("pack (-want +got):\n%s", diff)
	}

	file = row.New(2, row.Gray, 8)
	w, err = NewWriteSession(file, WriteConfig{Shift: &row.SigBits{Gray: 5}})
	if err != nil {
		t.Fatal(err)
	}
	info = w.Input(2)
	buf = []byte{31, 16}
	if err := w.Apply(&info, buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{255, 132}, buf); diff != "" {
		t.Errorf("shift (-want +got):\n%s", diff)
	}
}

func TestWriteFillerAndOrder(t *testing.T) {
	file := row.New(1, row.RGBA, 8)
	if _, err := NewWriteSession(file, WriteConfig{Filler: &Filler{}}); err == nil {
		t.Error("filler accepted for RGBA")
	}

	file = row.New(2, row.RGB, 8)
	w, err := NewWriteSession(file, WriteConfig{Filler: &Filler{Before: true}, BGR: true})
	if err != nil {
		t.Fatal(err)
	}
	info := w.Input(2)
	buf := []byte{0, 3, 2, 1, 0, 6, 5, 4}
	if err := w.Apply(&info, buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5, 6}, buf[:info.RowBytes]); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"strip-filler", "bgr"}, w.Stages()); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}
}

func TestWriteSwapAlphaInverse(t *testing.T) {
	file := row.New(1, row.RGBA, 16)
	w, err := NewWriteSession(file, WriteConfig{SwapAlpha: true, InvertAlpha: true, SwapBytes: true})
	if err != nil {
		t.Fatal(err)
	}
	info := w.Input(1)
	// Little-endian ARGB with alpha 0 meaning opaque.
	buf := []byte{0, 0, 1, 0, 2, 0, 3, 0}
	if err := w.Apply(&info, buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0, 1, 0, 2, 0, 3, 0xff, 0xff}, buf); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReplicate(t *testing.T) {
	tests := []struct {
		v          uint16
		sig, depth int
		want       uint16
	}{
		{1, 1, 2, 3},
		{5, 3, 8, 0xb6},
		{31, 5, 8, 255},
		{0x7ff, 11, 16, 0xffff},
	}
	for _, tt := range tests {
		if got := replicate(tt.v, tt.sig, tt.depth); got != tt.want {
			t.Errorf("replicate(%d, %d, %d) = %#x, want %#x", tt.v, tt.sig, tt.depth, got, tt.want)
		}
	}
}
