package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// BandType selects the response of a Butterworth design.
type BandType int

const (
	Lowpass BandType = iota
	Highpass
	Bandstop
)

func (b BandType) String() string {
	switch b {
	case Lowpass:
		return "lowpass"
	case Highpass:
		return "highpass"
	case Bandstop:
		return "bandstop"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// Section is one biquad [b0 b1 b2 a0 a1 a2] with a0 == 1.
type Section [6]float64

// SOS is a cascade of second-order sections.
type SOS struct {
	Sections []Section
	// Order is the number of digital poles, i.e. the order of the equivalent
	// transfer function.
	Order int
}

// PadLen is the odd-extension length used by zero-phase filtering:
// three times the transfer-function order.
func (s SOS) PadLen() int {
	return 3 * s.Order
}

// Butter designs a digital Butterworth filter of the given order. Critical
// frequencies are normalized to the Nyquist rate; Bandstop takes two.
func Butter(order int, band BandType, wn ...float64) (SOS, error) {
	if order < 1 {
		return SOS{}, fmt.Errorf("butter: order must be positive, got %d", order)
	}
	for _, w := range wn {
		if w <= 0 || w >= 1 {
			return SOS{}, fmt.Errorf("butter: critical frequency %g outside (0, 1)", w)
		}
	}

	const fs2 = 4.0 // bilinear transform with fs = 2
	warp := func(w float64) float64 { return fs2 * math.Tan(math.Pi*w/2) }

	proto := make([]complex128, order)
	for k := range order {
		m := float64(-order + 1 + 2*k)
		proto[k] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	var poles, zeros []complex128
	var ref complex128
	switch band {
	case Lowpass:
		if len(wn) != 1 {
			return SOS{}, fmt.Errorf("butter: lowpass needs one critical frequency")
		}
		wo := complex(warp(wn[0]), 0)
		for _, p := range proto {
			poles = append(poles, p*wo)
			zeros = append(zeros, complex(-1, 0))
		}
		ref = 1
	case Highpass:
		if len(wn) != 1 {
			return SOS{}, fmt.Errorf("butter: highpass needs one critical frequency")
		}
		wo := complex(warp(wn[0]), 0)
		for _, p := range proto {
			poles = append(poles, wo/p)
			zeros = append(zeros, complex(1, 0))
		}
		ref = -1
	case Bandstop:
		if len(wn) != 2 || wn[0] >= wn[1] {
			return SOS{}, fmt.Errorf("butter: bandstop needs two increasing critical frequencies")
		}
		wl, wh := warp(wn[0]), warp(wn[1])
		bw := complex(wh-wl, 0)
		wo := complex(math.Sqrt(wl*wh), 0)
		for _, p := range proto {
			hp := bw / 2 / p
			root := cmplx.Sqrt(hp*hp - wo*wo)
			poles = append(poles, hp+root, hp-root)
			zeros = append(zeros, complex(0, 1)*wo, complex(0, -1)*wo)
		}
		ref = 1
	default:
		return SOS{}, fmt.Errorf("butter: unsupported band %v", band)
	}

	bilinear := func(s complex128) complex128 { return (fs2 + s) / (fs2 - s) }
	for i := range poles {
		poles[i] = bilinear(poles[i])
	}
	if band == Bandstop {
		// Lowpass and highpass zeros were placed directly at z = -1 and z = 1.
		for i := range zeros {
			zeros[i] = bilinear(zeros[i])
		}
	}

	return assembleSections(poles, zeros, ref), nil
}

// assembleSections pairs conjugate poles and zeros into biquads, each
// normalized to unit gain at ref.
func assembleSections(poles, zeros []complex128, ref complex128) SOS {
	pPairs, pReal := splitConjugates(poles)
	zPairs, zReal := splitConjugates(zeros)

	takeZeros := func(n int) []complex128 {
		if n == 2 && len(zPairs) > 0 {
			pair := zPairs[0]
			zPairs = zPairs[1:]
			return []complex128{pair, cmplx.Conj(pair)}
		}
		if len(zReal) >= n {
			out := append([]complex128(nil), zReal[:n]...)
			zReal = zReal[n:]
			return out
		}
		out := append([]complex128(nil), zReal...)
		zReal = nil
		return out
	}

	var sections []Section
	for _, p := range pPairs {
		sections = append(sections, biquad([]complex128{p, cmplx.Conj(p)}, takeZeros(2), ref))
	}
	for len(pReal) >= 2 {
		sections = append(sections, biquad(pReal[:2], takeZeros(2), ref))
		pReal = pReal[2:]
	}
	if len(pReal) == 1 {
		sections = append(sections, biquad(pReal, takeZeros(1), ref))
	}
	return SOS{Sections: sections, Order: len(poles)}
}

func splitConjugates(values []complex128) (pairs []complex128, reals []complex128) {
	const tol = 1e-10
	for _, v := range values {
		switch {
		case math.Abs(imag(v)) <= tol:
			reals = append(reals, complex(real(v), 0))
		case imag(v) > 0:
			pairs = append(pairs, v)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return cmplx.Abs(pairs[i]) < cmplx.Abs(pairs[j]) })
	sort.Slice(reals, func(i, j int) bool { return real(reals[i]) < real(reals[j]) })
	return pairs, reals
}

func biquad(poles, zeros []complex128, ref complex128) Section {
	a := polyFromRoots(poles)
	b := polyFromRoots(zeros)
	for len(b) < 3 {
		b = append(b, 0)
	}
	for len(a) < 3 {
		a = append(a, 0)
	}
	zInv := 1 / ref
	eval := func(c []float64) complex128 {
		return complex(c[0], 0) + complex(c[1], 0)*zInv + complex(c[2], 0)*zInv*zInv
	}
	gain := cmplx.Abs(eval(a)) / cmplx.Abs(eval(b))
	return Section{b[0] * gain, b[1] * gain, b[2] * gain, a[0], a[1], a[2]}
}

// polyFromRoots expands prod(1 - r z^-1) and returns real coefficients.
func polyFromRoots(roots []complex128) []float64 {
	coeffs := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = real(c)
	}
	return out
}

// Buttord returns the lowest Butterworth order (and its natural frequency)
// that loses no more than gpass dB in the passband edge wp and attenuates at
// least gstop dB at the stopband edge ws. wp < ws designs a lowpass, wp > ws
// a highpass. Frequencies are normalized to the Nyquist rate.
func Buttord(wp, ws, gpass, gstop float64) (int, float64, BandType, error) {
	if wp <= 0 || wp >= 1 || ws <= 0 || ws >= 1 || wp == ws {
		return 0, 0, Lowpass, fmt.Errorf("buttord: invalid edges wp=%g ws=%g", wp, ws)
	}
	if gpass <= 0 || gstop <= gpass {
		return 0, 0, Lowpass, fmt.Errorf("buttord: invalid attenuation gpass=%g gstop=%g", gpass, gstop)
	}
	band := Lowpass
	if wp > ws {
		band = Highpass
	}
	passb := math.Tan(math.Pi * wp / 2)
	stopb := math.Tan(math.Pi * ws / 2)
	nat := stopb / passb
	if band == Highpass {
		nat = passb / stopb
	}
	gStop := math.Pow(10, 0.1*gstop)
	gPass := math.Pow(10, 0.1*gpass)
	order := int(math.Ceil(math.Log10((gStop-1)/(gPass-1)) / (2 * math.Log10(nat))))
	if order < 1 {
		order = 1
	}
	w0 := math.Pow(gPass-1, -1/(2*float64(order)))
	wn := w0 * passb
	if band == Highpass {
		wn = passb / w0
	}
	return order, 2 / math.Pi * math.Atan(wn), band, nil
}
