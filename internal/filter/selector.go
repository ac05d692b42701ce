package filter

import "github.com/golang/glog"

// The absolute value of a byte interpreted as a signed int8.
func abs8(d uint8) int {
	if d < 128 {
		return int(d)
	}
	return 256 - int(d)
}

// Cost is the selection heuristic: the sum of |int8(b)| over row.
func Cost(row []byte) int {
	sum := 0
	for _, b := range row {
		sum += abs8(b)
	}
	return sum
}

// Selector chooses and applies a filter for each row on encode. It owns
// one framed scratch row per filter type; the row returned by Select is
// valid until the next call.
type Selector struct {
	set  Set
	rows [NumTypes][]byte
	zero []byte

	// Counts the winning filter per type, for tracing.
	Chosen [NumTypes]int
}

// NewSelector returns a selector for rows of rowBytes bytes restricted to
// the candidates in set. An empty set means None only.
func NewSelector(set Set, rowBytes int) *Selector {
	if set&SetAll == 0 {
		set = SetNone
	}
	s := &Selector{set: set & SetAll}
	for i := range s.rows {
		if s.set.Has(Type(i)) {
			s.rows[i] = make([]byte, 1+rowBytes)
			s.rows[i][0] = byte(i)
		}
	}
	return s
}

// Set returns the candidate filters.
func (s *Selector) Set() Set { return s.set }

// Select filters cur against prev with every candidate and returns the
// winning framed row (type byte followed by the filtered bytes) and its
// type. prev may be nil for the first row of a pass. Candidates are tried
// in type order and a later filter wins only with a strictly smaller cost.
func (s *Selector) Select(cur, prev []byte, bpp int) ([]byte, Type) {
	n := len(cur)
	if prev == nil {
		if len(s.zero) < n {
			s.zero = make([]byte, n)
		}
		prev = s.zero[:n]
	}

	if only, ok := s.set.Only(); ok {
		out := s.rows[only][:1+n]
		Apply(only, out[1:], cur, prev, bpp)
		s.Chosen[only]++
		return out, only
	}

	best := -1
	bestType := None
	for t := None; t < NumTypes; t++ {
		if !s.set.Has(t) {
			continue
		}
		out := s.rows[t][1 : 1+n]
		sum, done := s.filterCost(t, out, cur, prev, bpp, best)
		if done && (best < 0 || sum < best) {
			best = sum
			bestType = t
		}
	}
	glog.V(3).Infof("filter: chose %v cost %d", bestType, best)
	s.Chosen[bestType]++
	return s.rows[bestType][:1+n], bestType
}

// filterCost filters into dst while summing the heuristic. It stops early
// once the running sum reaches limit (limit < 0 means no limit) and then
// reports done=false, since the candidate can no longer win.
func (s *Selector) filterCost(t Type, dst, cur, prev []byte, bpp, limit int) (int, bool) {
	n := len(cur)
	sum := 0
	lead := min(bpp, n)
	over := func() bool { return limit >= 0 && sum >= limit }

	switch t {
	case None:
		for i := 0; i < n; i++ {
			dst[i] = cur[i]
			sum += abs8(cur[i])
			if over() {
				return sum, false
			}
		}
	case Sub:
		for i := 0; i < lead; i++ {
			dst[i] = cur[i]
			sum += abs8(dst[i])
		}
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - cur[i-bpp]
			sum += abs8(dst[i])
			if over() {
				return sum, false
			}
		}
	case Up:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - prev[i]
			sum += abs8(dst[i])
			if over() {
				return sum, false
			}
		}
	case Average:
		for i := 0; i < lead; i++ {
			dst[i] = cur[i] - prev[i]/2
			sum += abs8(dst[i])
		}
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - uint8((int(cur[i-bpp])+int(prev[i]))/2)
			sum += abs8(dst[i])
			if over() {
				return sum, false
			}
		}
	case Paeth:
		for i := 0; i < lead; i++ {
			dst[i] = cur[i] - prev[i]
			sum += abs8(dst[i])
		}
		for i := bpp; i < n; i++ {
			dst[i] = cur[i] - paeth(cur[i-bpp], prev[i], prev[i-bpp])
			sum += abs8(dst[i])
			if over() {
				return sum, false
			}
		}
	}
	return sum, !over()
}
