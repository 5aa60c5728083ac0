package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LFilter filters x with the rational transfer function b/a in transposed
// direct form II. zi may be nil; otherwise it holds max(len(a), len(b))-1
// state values.
func LFilter(b, a, x, zi []float64) ([]float64, error) {
	b, a, err := normalizeBA(b, a)
	if err != nil {
		return nil, err
	}
	n := len(b) - 1
	z := make([]float64, n+1)
	if zi != nil {
		if len(zi) != n {
			return nil, fmt.Errorf("lfilter: expected %d initial conditions, got %d", n, len(zi))
		}
		copy(z, zi)
	}
	y := make([]float64, len(x))
	for i, in := range x {
		out := b[0]*in + z[0]
		for k := 0; k < n; k++ {
			z[k] = b[k+1]*in + z[k+1] - a[k+1]*out
		}
		y[i] = out
	}
	return y, nil
}

// FIRFilter is the causal convolution y[n] = sum_k b[k] x[n-k] with zero
// history, truncated to len(x).
func FIRFilter(b, x []float64) []float64 {
	y := make([]float64, len(x))
	for n := range x {
		var acc float64
		for k := 0; k < len(b) && k <= n; k++ {
			acc += b[k] * x[n-k]
		}
		y[n] = acc
	}
	return y
}

// LFilterZi returns the initial conditions that make LFilter start in the
// steady state of a unit step input.
func LFilterZi(b, a []float64) ([]float64, error) {
	b, a, err := normalizeBA(b, a)
	if err != nil {
		return nil, err
	}
	n := len(b) - 1
	if n == 0 {
		return nil, nil
	}
	m := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := range n {
		m.Set(i, 0, a[i+1])
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}
	m.Set(0, 0, m.At(0, 0)+1)
	for i := 1; i < n; i++ {
		m.Set(i, i, m.At(i, i)+1)
	}
	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("lfilter_zi: %w", err)
	}
	out := make([]float64, n)
	for i := range n {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// FiltFilt applies b/a forward and backward for zero phase with odd padding
// of padlen samples. A negative padlen selects 3*max(len(a), len(b)).
func FiltFilt(b, a, x []float64, padlen int) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	if padlen < 0 {
		padlen = 3 * max(len(a), len(b))
	}
	if padlen >= len(x) {
		padlen = len(x) - 1
	}
	zi, err := LFilterZi(b, a)
	if err != nil {
		return nil, err
	}
	ext := OddExtend(x, padlen)

	y, err := LFilter(b, a, ext, scaleVec(zi, ext[0]))
	if err != nil {
		return nil, err
	}
	reverse(y)
	y, err = LFilter(b, a, y, scaleVec(zi, y[0]))
	if err != nil {
		return nil, err
	}
	reverse(y)
	return append([]float64(nil), y[padlen:len(y)-padlen]...), nil
}

func scaleVec(v []float64, s float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}

func normalizeBA(b, a []float64) ([]float64, []float64, error) {
	if len(b) == 0 || len(a) == 0 {
		return nil, nil, fmt.Errorf("lfilter: empty coefficients")
	}
	if a[0] == 0 {
		return nil, nil, fmt.Errorf("lfilter: a[0] must be nonzero")
	}
	n := max(len(a), len(b))
	nb := make([]float64, n)
	na := make([]float64, n)
	for i, v := range b {
		nb[i] = v / a[0]
	}
	for i, v := range a {
		na[i] = v / a[0]
	}
	return nb, na, nil
}
