package domain

// SeriesCapacity is the number of samples a PriceSeries retains.
const SeriesCapacity = 180

// PriceSeries is a bounded FIFO sequence of price samples. One instance is
// owned per tracked book plus one for the cross-book aggregate. It is not
// safe for concurrent use; the owner guards access.
type PriceSeries struct {
	data []float64
	cap  int
}

// NewPriceSeries creates a series with the default capacity.
func NewPriceSeries() *PriceSeries {
	return NewPriceSeriesWithCap(SeriesCapacity)
}

// NewPriceSeriesWithCap creates a series that retains at most n samples.
func NewPriceSeriesWithCap(n int) *PriceSeries {
	if n < 1 {
		n = 1
	}
	return &PriceSeries{data: make([]float64, 0, n), cap: n}
}

// Push appends a sample, evicting the oldest when at capacity.
func (s *PriceSeries) Push(v float64) {
	if len(s.data) == s.cap {
		copy(s.data, s.data[1:])
		s.data = s.data[:len(s.data)-1]
	}
	s.data = append(s.data, v)
}

// Len returns the number of retained samples.
func (s *PriceSeries) Len() int { return len(s.data) }

// Last returns the most recent sample, or false when the series is empty.
func (s *PriceSeries) Last() (float64, bool) {
	if len(s.data) == 0 {
		return 0, false
	}
	return s.data[len(s.data)-1], true
}

// At returns the sample n positions back from the most recent one (At(0) is
// the latest), or false when fewer samples exist.
func (s *PriceSeries) At(n int) (float64, bool) {
	i := len(s.data) - 1 - n
	if n < 0 || i < 0 {
		return 0, false
	}
	return s.data[i], true
}

// Values returns a copy of the retained samples, oldest first.
func (s *PriceSeries) Values() []float64 {
	out := make([]float64, len(s.data))
	copy(out, s.data)
	return out
}
