package denoise

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/config"
	"nica/internal/services"
)

func rms(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestXcovLags(t *testing.T) {
	a := []float64{1, -1, 1, -1}
	got := xcov(a, a, 2)
	require.Len(t, got, 5)
	assert.InDelta(t, 1, got[2], 1e-12)
	assert.InDelta(t, -0.75, got[1], 1e-12)
	assert.InDelta(t, -0.75, got[3], 1e-12)
	assert.InDelta(t, 0.5, got[0], 1e-12)
}

func TestXcovCrossDirection(t *testing.T) {
	// b leads a by one sample, so the covariance peaks at lag +1.
	b := []float64{0, 1, 0, 0, 0, 0}
	a := []float64{0, 0, 1, 0, 0, 0}
	got := xcov(a, b, 2)
	assert.Greater(t, got[3], got[1])
	assert.Greater(t, got[3], got[2])
}

func TestTFRemovesLinearlyPredictableNoise(t *testing.T) {
	const fs = 4.0
	n := 2400
	rng := rand.New(rand.NewPCG(1, 2))
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	h := []float64{0.5, 0.3, -0.2}
	clean := make([]float64, n)
	mixed := make([]float64, n)
	leak := make([]float64, n)
	for i := range mixed {
		clean[i] = 0.2 * math.Sin(2*math.Pi*0.01*float64(i)/fs)
		for k, c := range h {
			if i-k >= 0 {
				leak[i] += c * noise[i-k]
			}
		}
		mixed[i] = clean[i] + leak[i]
	}

	out, models, err := NewTF().Fit(mixed, noise, fs)
	require.NoError(t, err)
	require.Len(t, out, n)
	require.Len(t, models, 3)
	assert.Equal(t, 1920, models[2].Onset)
	assert.Equal(t, 480, models[2].Length)
	for _, m := range models {
		assert.GreaterOrEqual(t, m.Order, 5)
		assert.LessOrEqual(t, m.Order, 15)
		assert.Len(t, m.AIC, 11)
		assert.InDelta(t, 0.5, m.Coeffs[0], 0.1)
	}

	residual := make([]float64, n)
	for i := range residual {
		residual[i] = out[i] - clean[i]
	}
	assert.Less(t, rms(residual[20:]), 0.15*rms(leak))
}

// lfsr returns a maximal-length ±1 sequence from a Galois shift register.
func lfsr(state, poly uint16, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		lsb := state & 1
		state >>= 1
		if lsb == 1 {
			state ^= poly
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func TestTFSelectsGeneratingOrder(t *testing.T) {
	const fs = 4.0
	const n = 960 // one 240 s block
	noise := lfsr(0xACE1, 0xB400, n)
	disturbance := lfsr(0x0001, 0x6000, n)

	for _, order := range []int{5, 8, 11} {
		t.Run(fmt.Sprintf("order_%d", order), func(t *testing.T) {
			h := make([]float64, order+1)
			for k := range h {
				h[k] = 0.3
				if k%2 == 1 {
					h[k] = -0.3
				}
			}
			leak := make([]float64, n)
			for i := range leak {
				for k, c := range h {
					if i-k >= 0 {
						leak[i] += c * noise[i-k]
					} else {
						leak[i] += c * noise[0]
					}
				}
			}
			scale := 0.01 * rms(leak)
			signal := make([]float64, n)
			for i := range signal {
				signal[i] = leak[i] + scale*disturbance[i]
			}

			_, models, err := NewTF().Fit(signal, noise, fs)
			require.NoError(t, err)
			require.Len(t, models, 1)
			assert.Equal(t, order, models[0].Order)
			require.Len(t, models[0].Coeffs, order+1)
			assert.InDeltaSlice(t, h, models[0].Coeffs, 0.02)
		})
	}
}

func TestTFMergesShortTrailingBlock(t *testing.T) {
	tf := NewTF()
	got := tf.blocks(960*2+10, 4)
	require.Len(t, got, 2)
	assert.Equal(t, block{onset: 960, end: 1930}, got[1])
}

func TestTFRejectsShortInputs(t *testing.T) {
	_, _, err := NewTF().Fit(make([]float64, 100), make([]float64, 50), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))

	_, _, err = NewTF().Fit(make([]float64, 20), make([]float64, 20), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNumerical))
}

func TestFindPeak(t *testing.T) {
	assert.Equal(t, 2, FindPeak([]float64{1, 2, 5, 3, 1, 4, 6, 2}))
	assert.Equal(t, 1, FindPeak([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 0, FindPeak([]float64{7}))
}

func TestPrepareReferenceLocksOnRespiration(t *testing.T) {
	const bioFs, fs = 100.0, 4.0
	m := int(600 * bioFs)
	resp := make([]float64, m)
	for i := range resp {
		tt := float64(i) / bioFs
		resp[i] = math.Sin(2*math.Pi*0.3*tt) + 0.5*math.Sin(2*math.Pi*0.05*tt) + 2
	}
	a := config.DefaultAnalysis()
	ref, err := PrepareReference(resp, bioFs, fs, 2500, a.RespirationBand(), config.DefaultTuning())
	require.NoError(t, err)

	assert.InDelta(t, 0.3, ref.Peak, 0.006)
	assert.InDelta(t, 0.25, ref.Window[0], 1e-9)
	assert.InDelta(t, 0.35, ref.Window[1], 1e-9)
	require.Len(t, ref.Signal, 2500)
	assert.InDelta(t, 0, meanOf(ref.Signal), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, rms(ref.Signal[400:2000]), 0.1)
}

func TestPrepareReferenceClampsWindowToBand(t *testing.T) {
	const fs = 4.0
	n := 2400
	hr := make([]float64, n)
	for i := range hr {
		hr[i] = 70 + 3*math.Sin(2*math.Pi*0.08*float64(i)/fs)
	}
	a := config.DefaultAnalysis()
	ref, err := PrepareReference(hr, fs, fs, n, a.MayerBand(), config.DefaultTuning())
	require.NoError(t, err)
	assert.InDelta(t, 0.08, ref.Peak, 0.006)
	assert.InDelta(t, 0.07, ref.Window[0], 1e-9)
	assert.InDelta(t, 0.10, ref.Window[1], 1e-9)
}

func TestCommonAverage(t *testing.T) {
	got, err := CommonAverage([][]float64{{1, 2}, {3, 4}, {100, 100}}, []int{3})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, -1}, {1, 1}, {98, 97}}, got)

	_, err = CommonAverage([][]float64{{1}, {2}}, []int{1, 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConfiguration))
}

type subtractRemover struct{ calls int }

func (s *subtractRemover) Remove(signal, noise []float64, _ float64) ([]float64, error) {
	s.calls++
	out := make([]float64, len(signal))
	for i := range out {
		out[i] = signal[i] - noise[i]
	}
	return out, nil
}

func TestChainAppliesReferencesInOrder(t *testing.T) {
	r := &subtractRemover{}
	got, err := Chain(r, [][]float64{{5, 5}, {1, 0}}, 4, []float64{1, 1}, []float64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 2}, {-2, -3}}, got)
	assert.Equal(t, 4, r.calls)
}
