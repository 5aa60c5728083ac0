package spectra_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/dsp"
	"nica/internal/services"
	"nica/internal/spectra"
)

func tone(n int, fs, hz, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*hz*float64(i)/fs)
	}
	return out
}

func TestSummarizeSkipsRefusedAndNonFinite(t *testing.T) {
	const fs = 4.0
	n := 2400
	broken := tone(n, fs, 0.1, 1)
	broken[7] = math.NaN()
	oxy := [][]float64{tone(n, fs, 0.1, 1), tone(n, fs, 0.1, 3), broken, tone(n, fs, 0.1, 1)}
	deoxy := [][]float64{tone(n, fs, 0.2, 1), tone(n, fs, 0.2, 1), tone(n, fs, 0.2, 1), tone(n, fs, 0.2, 1)}

	s, err := spectra.Summarize(oxy, deoxy, fs, []int{4}, dsp.WelchSeconds(fs, 100, 50, 200))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, s.Included)
	require.Len(t, s.Oxy, 2)
	assert.Len(t, s.MeanOxy, len(s.Freqs))

	peak := s.Band(0.1, 0.1)
	require.Len(t, peak, 1)
	assert.InDelta(t, (s.Oxy[0][peak[0]]+s.Oxy[1][peak[0]])/2, s.MeanOxy[peak[0]], 1e-12)
	assert.InDelta(t, 9, s.Oxy[1][peak[0]]/s.Oxy[0][peak[0]], 1e-6)

	oxyPower, deoxyPower := s.BandPower(0.15, 0.25)
	assert.InDelta(t, 0.5, deoxyPower, 0.05)
	assert.Less(t, oxyPower, 0.01)
}

func TestSummarizeNeedsOneChannel(t *testing.T) {
	_, err := spectra.Summarize([][]float64{tone(100, 4, 0.1, 1)}, [][]float64{tone(100, 4, 0.1, 1)}, 4, []int{1}, dsp.WelchSeconds(4, 100, 50, 200))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNumerical))
}
