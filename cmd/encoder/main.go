package main

import (
	"flag"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/golang/glog"

	"pngpipe.adpollak.net/internal/codec"
	"pngpipe.adpollak.net/internal/filter"
	"pngpipe.adpollak.net/internal/images"
	"pngpipe.adpollak.net/internal/zstream"
)

var filterNames = map[string]filter.Set{
	"none":    filter.SetNone,
	"sub":     filter.SetSub,
	"up":      filter.SetUp,
	"average": filter.SetAverage,
	"paeth":   filter.SetPaeth,
	"all":     filter.SetAll,
}

func parseFilters(s string) filter.Set {
	var set filter.Set
	if s == "" {
		return set
	}
	for _, name := range strings.Split(s, ",") {
		f, ok := filterNames[strings.TrimSpace(name)]
		if !ok {
			glog.Fatalf("unknown filter %q", name)
		}
		set |= f
	}
	return set
}

func main() {
	var (
		inCLI     = flag.String("in", "", "image to convert: png, jpeg or gif")
		outCLI    = flag.String("out", "out.png", "png file to write")
		filters   = flag.String("filters", "", "comma separated filters to try, empty for the default")
		interlace = flag.Bool("interlace", false, "write an Adam7 interlaced image")
		level     = flag.Int("level", -1, "zlib compression level")
		bufSize   = flag.Int("buffer", zstream.DefaultBufferSize, "IDAT chunk size")
		texts     = flag.String("text", "", "keyword=value pairs separated by ';'")
	)
	flag.Parse()
	defer glog.Flush()

	in, err := os.Open(*inCLI)
	if err != nil {
		glog.Fatal(err)
	}
	defer in.Close()
	m, format, err := image.Decode(in)
	if err != nil {
		glog.Fatal(err)
	}
	glog.Infof("decoded %s image %v", format, m.Bounds())

	cfg, rows := images.FromImage(m)
	cfg.Filters = parseFilters(*filters)
	if *interlace {
		cfg.Header.InterlaceMethod = 1
	}
	zc := zstream.DefaultConfig()
	zc.Image.Level = *level
	zc.BufferSize = *bufSize
	cfg.Compression = &zc
	if *texts != "" {
		for _, kv := range strings.Split(*texts, ";") {
			k, v, _ := strings.Cut(kv, "=")
			cfg.Texts = append(cfg.Texts, codec.Text{Keyword: k, Value: v})
		}
	}

	out, err := os.Create(*outCLI)
	if err != nil {
		glog.Fatal(err)
	}
	defer out.Close()
	e, err := codec.NewEncoder(out, cfg)
	if err != nil {
		glog.Fatal(err)
	}
	if err := e.WriteImage(rows); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("wrote %s, filters chosen %v", *outCLI, e.Chosen())
}
