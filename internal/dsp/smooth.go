package dsp

// Smooth is a centred moving average of odd span whose window shrinks
// symmetrically near the edges (1, 3, 5, ... samples), so the output keeps
// the input length.
func Smooth(x []float64, span int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if span > n {
		span = n
	}
	if span%2 == 0 {
		span--
	}
	if span <= 1 {
		copy(out, x)
		return out
	}
	half := span / 2
	for i := range n {
		w := half
		if i < w {
			w = i
		}
		if n-1-i < w {
			w = n - 1 - i
		}
		var acc float64
		for j := i - w; j <= i+w; j++ {
			acc += x[j]
		}
		out[i] = acc / float64(2*w+1)
	}
	return out
}
