package heartrate_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/heartrate"
	"nica/internal/services"
)

func syntheticECG(seconds, fs, hz, sign float64) []float64 {
	n := int(seconds * fs)
	out := make([]float64, n)
	period := fs / hz
	for i := range out {
		tt := float64(i) / fs
		out[i] = 0.05 * math.Sin(2*math.Pi*0.3*tt)
	}
	for c := period / 2; c < float64(n); c += period {
		for i := int(c) - 10; i <= int(c)+10; i++ {
			if i >= 0 && i < n {
				d := float64(i) - c
				out[i] += sign * math.Exp(-d*d/4)
			}
		}
	}
	return out
}

func TestExtractRecoversSteadyRate(t *testing.T) {
	const fs = 256.0
	for _, sign := range []float64{1, -1} {
		ecg := syntheticECG(30, fs, 1.2, sign)
		hr, err := heartrate.New().Extract(ecg, fs)
		require.NoError(t, err)
		require.Len(t, hr, len(ecg))
		for i := 0; i < len(hr); i += 97 {
			assert.InDelta(t, 72, hr[i], 1, "sample %d polarity %v", i, sign)
		}
	}
}

func TestBeatsFindsEveryPeak(t *testing.T) {
	const fs = 256.0
	beats, err := heartrate.New().Beats(syntheticECG(10, fs, 1, 1), fs)
	require.NoError(t, err)
	assert.Len(t, beats, 10)
	assert.InDelta(t, 128, beats[0], 1)
}

func TestExtractFailsWithoutBeats(t *testing.T) {
	_, err := heartrate.New().Extract(make([]float64, 1000), 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNumerical))
}

func TestDeleteFalseBeats(t *testing.T) {
	assert.Equal(t, []int{0, 100, 200, 300}, heartrate.DeleteFalseBeats([]int{0, 100, 110, 200, 300}))
	assert.Equal(t, []int{10, 100, 200}, heartrate.DeleteFalseBeats([]int{0, 10, 100, 200}))
}

func TestInterpolateClampsAndHoldsEdges(t *testing.T) {
	hr := heartrate.Interpolate([]int{10, 20, 30}, 40, 10)
	require.Len(t, hr, 40)
	for _, v := range hr {
		assert.InDelta(t, 60, v, 1e-12)
	}

	hr = heartrate.Interpolate([]int{0, 10, 12, 22}, 30, 10)
	for _, v := range hr {
		assert.InDelta(t, 60, v, 1e-12)
	}

	hr = heartrate.Interpolate([]int{0, 10, 15}, 20, 10)
	assert.InDelta(t, 60, hr[0], 1e-12)
	assert.InDelta(t, 90, hr[5], 1e-12)
	assert.InDelta(t, 120, hr[12], 1e-12)
	assert.InDelta(t, 120, hr[19], 1e-12)
}
