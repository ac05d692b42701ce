package filter

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pngpipe.adpollak.net/internal/pngerr"
)

func TestRoundTripAllFilters(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bpp := range []int{1, 2, 3, 4, 6, 8} {
		for _, n := range []int{0, 1, bpp, 3*bpp + 1, 64} {
			cur := make([]byte, n)
			prev := make([]byte, n)
			rng.Read(cur)
			rng.Read(prev)
			for ft := None; ft < NumTypes; ft++ {
				filtered := make([]byte, n)
				Apply(ft, filtered, cur, prev, bpp)
				if err := Unfilter(ft, filtered, prev, bpp); err != nil {
					t.Fatalf("Unfilter(%v): %v", ft, err)
				}
				if diff := cmp.Diff(cur, filtered); diff != "" {
					t.Errorf("%v bpp=%d n=%d round trip (-want +got):\n%s", ft, bpp, n, diff)
				}
			}
		}
	}
}

func TestUnfilterKnownRows(t *testing.T) {
	tests := []struct {
		name string
		ft   Type
		bpp  int
		in   []byte
		prev []byte
		want []byte
	}{
		{"sub", Sub, 3, []byte{100, 150, 200, 10, 10, 10}, make([]byte, 6), []byte{100, 150, 200, 110, 160, 210}},
		{"up", Up, 1, []byte{1, 2, 3}, []byte{10, 20, 250}, []byte{11, 22, 253}},
		{"average", Average, 1, []byte{5, 5}, []byte{10, 20}, []byte{10, 20}},
		{"paeth first row", Paeth, 1, []byte{7, 1, 1}, make([]byte, 3), []byte{7, 8, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := append([]byte(nil), tt.in...)
			if err := Unfilter(tt.ft, got, tt.prev, tt.bpp); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnfilterBadType(t *testing.T) {
	err := UnfilterRow([]byte{5, 1, 2}, []byte{0, 0}, 1)
	if !errors.Is(err, pngerr.ErrFormat) || !errors.Is(err, pngerr.ErrBadFilter) {
		t.Fatalf("got %v, want format error for bad filter", err)
	}
}

func TestPaethTieBreak(t *testing.T) {
	// c halfway between a and b is an exact prediction.
	if got := paeth(10, 30, 20); got != 20 {
		t.Errorf("paeth(10,30,20) = %d, want 20", got)
	}
	// a=10 b=20 c=0: p=30, |p-a|=20 |p-b|=10 -> b.
	if got := paeth(10, 20, 0); got != 20 {
		t.Errorf("paeth(10,20,0) = %d, want 20", got)
	}
	// |p-a| == |p-b| < |p-c| only when a == b; a must be returned for
	// every c, including c far away from both.
	for c := 0; c < 256; c += 17 {
		if got := paeth(40, 40, uint8(c)); got != 40 {
			t.Errorf("paeth(40,40,%d) = %d, want a", c, got)
		}
	}

	// Through the decode path: a=100 (left) b=100 (up) c=7 (up-left).
	cur := []byte{93, 0}
	prev := []byte{7, 100}
	if err := Unfilter(Paeth, cur, prev, 1); err != nil {
		t.Fatal(err)
	}
	if cur[1] != 100 {
		t.Errorf("reconstructed %d, want 100", cur[1])
	}
}

func TestSelectorTiesKeepEarlier(t *testing.T) {
	// Every filter scores 0 on an all-zero row; None must win.
	s := NewSelector(SetAll, 6)
	row, ft := s.Select(make([]byte, 6), nil, 3)
	if ft != None {
		t.Errorf("zero row chose %v, want None", ft)
	}
	if row[0] != byte(None) {
		t.Errorf("type byte %d", row[0])
	}

	s = NewSelector(SetSub|SetUp, 4)
	cur := []byte{1, 1, 1, 1}
	prev := []byte{0, 0, 0, 0}
	// Sub: 1,0,0,0 -> cost 1. Up: 1,1,1,1 -> cost 4.
	if _, ft := s.Select(cur, prev, 1); ft != Sub {
		t.Errorf("chose %v, want Sub", ft)
	}
	prev = []byte{0, 1, 1, 1}
	// Sub: cost 1. Up: 1,0,0,0 -> cost 1. Tie keeps Sub.
	if _, ft := s.Select(cur, prev, 1); ft != Sub {
		t.Errorf("tie chose %v, want Sub", ft)
	}
}

func TestSelectorDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cur := make([]byte, 300)
	prev := make([]byte, 300)
	rng.Read(cur)
	// A smooth previous row makes Up/Paeth attractive.
	for i := range prev {
		prev[i] = cur[i] - uint8(i%3)
	}
	a := NewSelector(SetAll, len(cur))
	b := NewSelector(SetAll, len(cur))
	ra, fa := a.Select(cur, prev, 3)
	ra = append([]byte(nil), ra...)
	rb, fb := b.Select(cur, prev, 3)
	if fa != fb || !bytes.Equal(ra, rb) {
		t.Fatalf("selection differs: %v vs %v", fa, fb)
	}

	// The winner must have the minimum cost, earliest on ties.
	bestCost, bestType := -1, None
	for ft := None; ft < NumTypes; ft++ {
		out := make([]byte, len(cur))
		Apply(ft, out, cur, prev, 3)
		if c := Cost(out); bestCost < 0 || c < bestCost {
			bestCost, bestType = c, ft
		}
	}
	if fa != bestType {
		t.Errorf("selector chose %v, exhaustive search chose %v", fa, bestType)
	}
	if got := Cost(ra[1:]); got != bestCost {
		t.Errorf("winning row cost %d, want %d", got, bestCost)
	}
}

func TestSelectorSingleFilter(t *testing.T) {
	s := NewSelector(SetPaeth, 3)
	out, ft := s.Select([]byte{1, 2, 3}, []byte{3, 2, 1}, 1)
	if ft != Paeth || out[0] != byte(Paeth) {
		t.Fatalf("got %v", ft)
	}
	rec := append([]byte(nil), out[1:]...)
	if err := Unfilter(Paeth, rec, []byte{3, 2, 1}, 1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, rec); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCost(t *testing.T) {
	if got := Cost([]byte{0, 1, 255, 128, 127}); got != 0+1+1+128+127 {
		t.Errorf("Cost = %d", got)
	}
}
