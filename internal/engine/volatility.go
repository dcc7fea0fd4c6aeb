// Package engine derives metrics from book state: rolling volatility bands,
// the cross-book aggregation tick, and the traffic-light signal.
package engine

import "math"

// Bands holds three equal-length sequences bracketing a price series: the
// trailing-window mean and the mean shifted by a multiple of the window's
// population standard deviation.
type Bands struct {
	Mid   []float64 `json:"mid"`
	Upper []float64 `json:"upper"`
	Lower []float64 `json:"lower"`
}

// ComputeBands computes Bollinger-style bands over series. For each index the
// trailing window holds up to period samples ending there; series shorter
// than the period use all available samples, so the output never contains
// NaN. Deterministic and recomputed in full on every call.
func ComputeBands(series []float64, period int, mult float64) Bands {
	if period < 1 {
		period = 1
	}
	n := len(series)
	b := Bands{
		Mid:   make([]float64, n),
		Upper: make([]float64, n),
		Lower: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := series[start : i+1]

		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(len(window))

		var variance float64
		for _, v := range window {
			d := v - mean
			variance += d * d
		}
		variance /= float64(len(window))
		sd := math.Sqrt(variance)

		b.Mid[i] = mean
		b.Upper[i] = mean + mult*sd
		b.Lower[i] = mean - mult*sd
	}
	return b
}

// SeriesVolatility returns the population standard deviation of the whole
// series, 0 when fewer than two samples exist.
func SeriesVolatility(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))
	var variance float64
	for _, v := range series {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(series))
	return math.Sqrt(variance)
}
