package dsp

import "fmt"

const resampleKaiserBeta = 5.0

// ResamplePoly changes the rate of x by up/down using a zero-phase
// Kaiser-windowed (beta 5) anti-aliasing lowpass. The output has
// ceil(len(x)*up/down) samples; the input is treated as zero outside its
// support.
func ResamplePoly(x []float64, up, down int) ([]float64, error) {
	if up < 1 || down < 1 {
		return nil, fmt.Errorf("resample: up and down must be positive, got %d/%d", up, down)
	}
	g := gcd(up, down)
	up, down = up/g, down/g
	if up == 1 && down == 1 {
		return append([]float64(nil), x...), nil
	}

	maxRate := max(up, down)
	halfLen := 10 * maxRate
	h, err := FirwinLowpass(2*halfLen+1, 1/float64(maxRate), Kaiser(2*halfLen+1, resampleKaiserBeta))
	if err != nil {
		return nil, err
	}
	for i := range h {
		h[i] *= float64(up)
	}

	nOut := (len(x)*up + down - 1) / down
	y := make([]float64, nOut)
	for m := range nOut {
		n := m*down + halfLen
		// x[j] lands on the upsampled grid at j*up; tap index is n - j*up.
		jLo := ceilDiv(n-2*halfLen, up)
		jHi := n / up
		jLo = max(jLo, 0)
		jHi = min(jHi, len(x)-1)
		var acc float64
		for j := jLo; j <= jHi; j++ {
			acc += h[n-j*up] * x[j]
		}
		y[m] = acc
	}
	return y, nil
}

// RationalRatio approximates to/from as a reduced integer ratio with a
// precision of 1e-4, which covers fractional optical rates such as 7.8125 Hz.
func RationalRatio(to, from float64) (int, int, error) {
	if to <= 0 || from <= 0 {
		return 0, 0, fmt.Errorf("resample: rates must be positive, got %g and %g", to, from)
	}
	up := int(to*10000 + 0.5)
	down := int(from*10000 + 0.5)
	g := gcd(up, down)
	return up / g, down / g, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func ceilDiv(a, b int) int {
	if a >= 0 {
		return (a + b - 1) / b
	}
	return -((-a) / b)
}
