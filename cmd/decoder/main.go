package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/codec"
	"pngpipe.adpollak.net/internal/gamma"
	"pngpipe.adpollak.net/internal/images"
	"pngpipe.adpollak.net/internal/pngerr"
	"pngpipe.adpollak.net/internal/transform"
)

func main() {
	// Used for default file in cmd line args.
	home, err := os.UserHomeDir()
	if err != nil {
		glog.Fatal(err)
	}
	defaultFilePath := filepath.Join(home, "Pictures", "smiley.png")

	var (
		pngCLI      = flag.String("png", defaultFilePath, "png file to supply")
		outCLI      = flag.String("out", "", "write the transformed image to this png file")
		expand      = flag.Bool("expand", false, "expand palette and low bit depth images to 8 bits")
		expandTRNS  = flag.Bool("expand_trns", false, "turn a tRNS color key into an alpha channel")
		scale16     = flag.Bool("scale16", false, "scale 16-bit samples to 8 bits")
		strip16     = flag.Bool("strip16", false, "drop the low byte of 16-bit samples")
		stripAlpha  = flag.Bool("strip_alpha", false, "remove the alpha channel")
		grayToRGB   = flag.Bool("gray_to_rgb", false, "convert gray images to RGB")
		rgbToGray   = flag.Bool("rgb_to_gray", false, "convert RGB images to gray")
		background  = flag.Bool("background", false, "compose against the file's bKGD color")
		screen      = flag.Float64("gamma", 0, "screen gamma exponent, 0 for none")
		progressive = flag.Bool("progressive", false, "replicate interlaced pass pixels over their block")
		maxDim      = flag.Uint("max_dim", 0, "reject images wider or taller than this, 0 for no limit")
	)
	flag.Parse()
	defer glog.Flush()

	// Open the png
	file, err := os.Open(*pngCLI)
	if err != nil {
		glog.Fatal(err)
	}
	defer file.Close()
	glog.Infof("Successfully opened %s", *pngCLI)

	cfg := codec.DecoderConfig{
		Transform: transform.ReadConfig{
			Expand:     *expand,
			ExpandTRNS: *expandTRNS,
			Scale16:    *scale16,
			Strip16:    *strip16,
			StripAlpha: *stripAlpha,
			GrayToRGB:  *grayToRGB,
		},
		FileBackground: *background,
		Progressive:    *progressive,
		MaxWidth:       uint32(*maxDim),
		MaxHeight:      uint32(*maxDim),
	}
	if *rgbToGray {
		cfg.Transform.RGBToGray = &transform.RGBToGray{Action: pngerr.ActionWarn}
	}
	if *screen > 0 {
		cfg.Transform.ScreenGamma = gamma.FromFloat(*screen)
	}

	decoder, err := codec.NewDecoder(file, cfg)
	if err != nil {
		glog.Fatal(err)
	}
	meta := decoder.Metadata()
	glog.Infof("IHDR data: %+v", meta.Header)
	glog.Infof("output rows: %v", decoder.Output())

	img, err := decoder.ReadImage()
	if err != nil {
		glog.Fatal(err)
	}
	for _, t := range meta.Texts {
		glog.Infof("text %q: %q", t.Keyword, t.Value)
	}
	for _, t := range meta.Skipped {
		glog.V(1).Infof("Skipping chunk type: %v", t)
	}
	glog.Info("PNG file parsed successfully!")

	if *outCLI == "" {
		return
	}
	m, err := images.CreateImage(img)
	if err != nil {
		glog.Fatal(err)
	}
	out, err := os.Create(*outCLI)
	if err != nil {
		glog.Fatal(err)
	}
	defer out.Close()

	ecfg, rows := images.FromImage(m)
	ecfg.Texts = meta.Texts
	encoder, err := codec.NewEncoder(out, ecfg)
	if err != nil {
		glog.Fatal(err)
	}
	if err := encoder.WriteImage(rows); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("wrote %s", *outCLI)
}
