package indicators

// Series is an indicator output aligned index-for-index with the candles it
// was computed from. Positions before the warm-up period are undefined; they
// are reported as such by At rather than as zero.
type Series struct {
	values []float64
	start  int
}

// newSeries allocates a series of length n whose first defined index is start.
// start >= n means no position is defined.
func newSeries(n, start int) Series {
	if start > n {
		start = n
	}
	if start < 0 {
		start = 0
	}
	return Series{values: make([]float64, n), start: start}
}

// Undefined returns a series of length n with no defined positions.
func Undefined(n int) Series {
	return newSeries(n, n)
}

// Len returns the number of positions, defined or not.
func (s Series) Len() int {
	return len(s.values)
}

// Start returns the first defined index, or Len() if none is defined.
func (s Series) Start() int {
	return s.start
}

// Defined reports whether position i holds a computed value.
func (s Series) Defined(i int) bool {
	return i >= s.start && i < len(s.values)
}

// At returns the value at i and whether it is defined.
func (s Series) At(i int) (float64, bool) {
	if !s.Defined(i) {
		return 0, false
	}
	return s.values[i], true
}

// Window returns a copy of the values in [from, to] inclusive. ok is false if
// any position in the range is undefined.
func (s Series) Window(from, to int) ([]float64, bool) {
	if from > to || !s.Defined(from) || !s.Defined(to) {
		return nil, false
	}
	out := make([]float64, to-from+1)
	copy(out, s.values[from:to+1])
	return out, true
}

// Mean returns the mean of the defined values in [from, to] inclusive.
func (s Series) Mean(from, to int) (float64, bool) {
	w, ok := s.Window(from, to)
	if !ok {
		return 0, false
	}
	return mean(w), true
}
