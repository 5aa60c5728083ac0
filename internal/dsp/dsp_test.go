package dsp_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/dsp"
)

func sine(n int, fs, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func rms(x []float64) float64 {
	var acc float64
	for _, v := range x {
		acc += v * v
	}
	return math.Sqrt(acc / float64(len(x)))
}

func TestButtordLowpass(t *testing.T) {
	// 0.5 Hz passband, 0.7 Hz stopband at 4 Hz sampling.
	order, wn, band, err := dsp.Buttord(0.25, 0.35, 3, 30)
	require.NoError(t, err)
	assert.Equal(t, dsp.Lowpass, band)
	assert.GreaterOrEqual(t, order, 5)
	assert.LessOrEqual(t, order, 12)
	assert.Greater(t, wn, 0.25)
	assert.Less(t, wn, 0.35)
}

func TestButtordHighpass(t *testing.T) {
	order, wn, band, err := dsp.Buttord(0.01, 0.005, 3, 30)
	require.NoError(t, err)
	assert.Equal(t, dsp.Highpass, band)
	assert.GreaterOrEqual(t, order, 4)
	assert.Less(t, wn, 0.01)
	assert.Greater(t, wn, 0.005)
}

func TestButterSectionsHaveUnitReferenceGain(t *testing.T) {
	lp, err := dsp.Butter(5, dsp.Lowpass, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 5, lp.Order)
	assert.Len(t, lp.Sections, 3)

	constant := make([]float64, 400)
	for i := range constant {
		constant[i] = 2.5
	}
	out, err := dsp.SosFiltFilt(lp, constant, -1)
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, 2.5, v, 1e-9)
	}
}

func TestLowpassZeroPhaseSeparatesTones(t *testing.T) {
	const fs = 4.0
	order, wn, _, err := dsp.Buttord(0.5/(fs/2), 0.7/(fs/2), 3, 30)
	require.NoError(t, err)
	lp, err := dsp.Butter(order, dsp.Lowpass, wn)
	require.NoError(t, err)

	n := 2000
	low := sine(n, fs, 0.1, 1)
	high := sine(n, fs, 1.5, 1)
	mixed := make([]float64, n)
	for i := range mixed {
		mixed[i] = low[i] + high[i]
	}
	out, err := dsp.SosFiltFilt(lp, mixed, lp.PadLen())
	require.NoError(t, err)
	require.Len(t, out, n)

	residual := make([]float64, n-400)
	for i := range residual {
		residual[i] = out[i+200] - low[i+200]
	}
	assert.Less(t, rms(residual), 0.02)
}

func TestHighpassRemovesDrift(t *testing.T) {
	order, wn, band, err := dsp.Buttord(0.01, 0.005, 3, 30)
	require.NoError(t, err)
	hp, err := dsp.Butter(order, band, wn)
	require.NoError(t, err)

	n := 4000
	x := make([]float64, n)
	for i := range x {
		x[i] = 5 + 0.001*float64(i)
	}
	out, err := dsp.SosFiltFilt(hp, x, hp.PadLen())
	require.NoError(t, err)
	assert.Less(t, rms(out[500:n-500]), 0.05)
}

func TestBandstopNotchesMains(t *testing.T) {
	const fs = 256.0
	bs, err := dsp.Butter(1, dsp.Bandstop, 48/(fs/2), 52/(fs/2))
	require.NoError(t, err)
	assert.Equal(t, 2, bs.Order)
	assert.Equal(t, 6, bs.PadLen())

	n := 2560
	mains := sine(n, fs, 50, 1)
	slow := sine(n, fs, 1, 1)
	x := make([]float64, n)
	for i := range x {
		x[i] = mains[i] + slow[i]
	}
	out, err := dsp.SosFiltFilt(bs, x, bs.PadLen())
	require.NoError(t, err)

	residual := make([]float64, n-512)
	for i := range residual {
		residual[i] = out[i+256] - slow[i+256]
	}
	assert.Less(t, rms(residual), 0.1)
}

func TestSosFiltFiltRejectsShortInput(t *testing.T) {
	lp, err := dsp.Butter(4, dsp.Lowpass, 0.2)
	require.NoError(t, err)
	_, err = dsp.SosFiltFilt(lp, make([]float64, 10), lp.PadLen())
	require.Error(t, err)
}

func TestFiltFiltFIRPreservesConstant(t *testing.T) {
	b, err := dsp.FirwinLowpass(21, 0.3, dsp.Hamming(21))
	require.NoError(t, err)
	x := make([]float64, 200)
	for i := range x {
		x[i] = -1.5
	}
	out, err := dsp.FiltFilt(b, []float64{1}, x, -1)
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, -1.5, v, 1e-9)
	}
}

func TestLFilterMatchesFIRFilter(t *testing.T) {
	b := []float64{0.5, 0.25, 0.25}
	x := []float64{1, 2, 3, 4, 5}
	got, err := dsp.LFilter(b, []float64{1}, x, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, dsp.FIRFilter(b, x), got, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 1.25, 2.25, 3.25, 4.25}, got, 1e-12)
}

func TestFirwinBandpassUnitGainAtCentre(t *testing.T) {
	h, err := dsp.FirwinBandpass(201, 0.2/2, 0.3/2)
	require.NoError(t, err)
	require.Len(t, h, 201)
	assert.InDelta(t, h[0], h[200], 1e-15)

	const fs = 4.0
	n := 4000
	inBand := sine(n, fs, 0.25, 1)
	outBand := sine(n, fs, 1.2, 1)
	gotIn, err := dsp.FiltFilt(h, []float64{1}, inBand, -1)
	require.NoError(t, err)
	gotOut, err := dsp.FiltFilt(h, []float64{1}, outBand, -1)
	require.NoError(t, err)
	assert.InDelta(t, rms(inBand[1000:3000]), rms(gotIn[1000:3000]), 0.02)
	assert.Less(t, rms(gotOut[1000:3000]), 0.01)
}

func TestResamplePolyKeepsSlowSignal(t *testing.T) {
	const fsIn, fsOut = 10.0, 4.0
	up, down, err := dsp.RationalRatio(fsOut, fsIn)
	require.NoError(t, err)
	assert.Equal(t, 2, up)
	assert.Equal(t, 5, down)

	x := sine(1000, fsIn, 0.1, 1)
	y, err := dsp.ResamplePoly(x, up, down)
	require.NoError(t, err)
	require.Len(t, y, 400)
	want := sine(400, fsOut, 0.1, 1)
	for i := 50; i < 350; i++ {
		assert.InDelta(t, want[i], y[i], 5e-3)
	}
}

func TestResamplePolyFractionalRate(t *testing.T) {
	up, down, err := dsp.RationalRatio(4, 7.8125)
	require.NoError(t, err)
	assert.Equal(t, 64, up)
	assert.Equal(t, 125, down)

	x := make([]float64, 1250)
	for i := range x {
		x[i] = 3
	}
	y, err := dsp.ResamplePoly(x, up, down)
	require.NoError(t, err)
	require.Len(t, y, 640)
	for i := 100; i < 540; i++ {
		assert.InDelta(t, 3, y[i], 1e-2)
	}
}

func TestWelchFindsTonePeak(t *testing.T) {
	const fs = 4.0
	x := sine(4800, fs, 0.25, 1)
	freqs, psd, err := dsp.Welch(x, fs, dsp.WelchSeconds(fs, 100, 50, 200))
	require.NoError(t, err)
	require.Len(t, freqs, 401)
	assert.InDelta(t, 0.005, freqs[1], 1e-12)

	peak := 0
	for k := range psd {
		if psd[k] > psd[peak] {
			peak = k
		}
	}
	assert.InDelta(t, 0.25, freqs[peak], 1e-9)

	// Density scaling integrates to the signal variance.
	var power float64
	for _, p := range psd {
		power += p * (freqs[1] - freqs[0])
	}
	assert.InDelta(t, 0.5, power, 0.05)
}

func TestWelchKeepsSegmentOffsets(t *testing.T) {
	const fs = 4.0
	ramp := make([]float64, 2400)
	for i := range ramp {
		ramp[i] = float64(i) / fs
	}
	x := dsp.RemoveMean(ramp)
	cfg := dsp.WelchSeconds(fs, 100, 50, 200)

	_, psd, err := dsp.Welch(x, fs, cfg)
	require.NoError(t, err)

	// Bin 0 of an undetrended segment is the squared windowed sum.
	step := len(cfg.Window) - cfg.Overlap
	segments := (len(x) - cfg.Overlap) / step
	var norm, want float64
	for _, w := range cfg.Window {
		norm += w * w
	}
	for s := range segments {
		var sum float64
		for i, w := range cfg.Window {
			sum += x[s*step+i] * w
		}
		want += sum * sum / (fs * norm)
	}
	want /= float64(segments)

	require.Greater(t, want, 1.0)
	assert.InEpsilon(t, want, psd[0], 1e-9)
}

func TestWelchShortSignalUsesSingleSegment(t *testing.T) {
	x := sine(100, 4, 0.5, 1)
	freqs, psd, err := dsp.Welch(x, 4, dsp.WelchSeconds(4, 100, 50, 200))
	require.NoError(t, err)
	assert.Len(t, freqs, len(psd))
	assert.Len(t, psd, 401)
}

func TestSmoothShrinksWindowAtEdges(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 10}
	got := dsp.Smooth(x, 5)
	want := []float64{1, 2, 3, 4, 5.6, 7, 10}
	assert.InDeltaSlice(t, want, got, 1e-12)
	assert.Equal(t, []float64{4}, dsp.Smooth([]float64{4}, 5))
}

func TestInterpClampsAndInterpolates(t *testing.T) {
	got := dsp.Interp([]float64{-1, 0, 0.5, 2, 3}, []float64{0, 1, 2}, []float64{10, 20, 40})
	assert.InDeltaSlice(t, []float64{10, 10, 15, 40, 40}, got, 1e-12)
}
