package dsp

import "fmt"

// SosFilt filters x through the cascade. zi holds two state values per
// section and may be nil for zero initial conditions.
func SosFilt(sos SOS, x []float64, zi [][2]float64) []float64 {
	y := append([]float64(nil), x...)
	for s, sec := range sos.Sections {
		var z0, z1 float64
		if zi != nil {
			z0, z1 = zi[s][0], zi[s][1]
		}
		b0, b1, b2, a1, a2 := sec[0], sec[1], sec[2], sec[4], sec[5]
		for i, in := range y {
			out := b0*in + z0
			z0 = b1*in - a1*out + z1
			z1 = b2*in - a2*out
			y[i] = out
		}
	}
	return y
}

// SosFiltZi returns the steady-state initial conditions of a unit step for
// every section, scaled by the DC gain of the sections before it.
func SosFiltZi(sos SOS) [][2]float64 {
	zi := make([][2]float64, len(sos.Sections))
	scale := 1.0
	for s, sec := range sos.Sections {
		b0, b1, b2, a1, a2 := sec[0], sec[1], sec[2], sec[4], sec[5]
		c0 := b1 - a1*b0
		c1 := b2 - a2*b0
		z0 := (c0 + c1) / (1 + a1 + a2)
		zi[s] = [2]float64{scale * z0, scale * (c1 - a2*z0)}
		scale *= (b0 + b1 + b2) / (1 + a1 + a2)
	}
	return zi
}

// SosFiltFilt applies the cascade forward and backward for zero phase. The
// input is extended by an odd reflection of padlen samples at both ends.
func SosFiltFilt(sos SOS, x []float64, padlen int) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	if padlen < 0 {
		padlen = sos.PadLen()
	}
	if padlen >= len(x) {
		return nil, fmt.Errorf("sosfiltfilt: input of %d samples is too short for padding %d", len(x), padlen)
	}
	ext := OddExtend(x, padlen)
	zi := SosFiltZi(sos)

	y := SosFilt(sos, ext, scaleZi(zi, ext[0]))
	reverse(y)
	y = SosFilt(sos, y, scaleZi(zi, y[0]))
	reverse(y)
	return append([]float64(nil), y[padlen:len(y)-padlen]...), nil
}

func scaleZi(zi [][2]float64, v float64) [][2]float64 {
	out := make([][2]float64, len(zi))
	for i, z := range zi {
		out[i] = [2]float64{z[0] * v, z[1] * v}
	}
	return out
}

// OddExtend reflects n samples around both end points:
// 2*x[0] - x[n..1] before and 2*x[last] - x[last-1..last-n] after.
func OddExtend(x []float64, n int) []float64 {
	if n == 0 {
		return append([]float64(nil), x...)
	}
	last := len(x) - 1
	out := make([]float64, 0, len(x)+2*n)
	for i := n; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}
	out = append(out, x...)
	for i := 1; i <= n; i++ {
		out = append(out, 2*x[last]-x[last-i])
	}
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
