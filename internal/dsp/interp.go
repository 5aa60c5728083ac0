package dsp

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Interp evaluates the piecewise-linear interpolant through (xp, fp) at x.
// xp must be increasing; points outside clamp to the end values.
func Interp(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	if len(xp) == 0 {
		return out
	}
	last := len(xp) - 1
	for i, v := range x {
		switch {
		case v <= xp[0]:
			out[i] = fp[0]
		case v >= xp[last]:
			out[i] = fp[last]
		default:
			j := sort.SearchFloat64s(xp, v)
			if xp[j] == v {
				out[i] = fp[j]
				continue
			}
			t := (v - xp[j-1]) / (xp[j] - xp[j-1])
			out[i] = fp[j-1] + t*(fp[j]-fp[j-1])
		}
	}
	return out
}

// RemoveMean returns x minus its mean.
func RemoveMean(x []float64) []float64 {
	out := append([]float64(nil), x...)
	if len(x) == 0 {
		return out
	}
	floats.AddConst(-stat.Mean(x, nil), out)
	return out
}
