package epoch_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/epoch"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestWindowForRoundsToSamples(t *testing.T) {
	w := epoch.WindowFor(10, 5, 8, 2)
	assert.Equal(t, epoch.Window{Pre: -50, Post: 100}, w)
	assert.Equal(t, 151, w.Len())
	assert.Equal(t, 51, w.BaselineLen())
}

func TestBuildPlacesTriggerAtPreOffset(t *testing.T) {
	data := [][]float64{ramp(400)}
	w := epoch.Window{Pre: -50, Post: 100}
	eps := epoch.Build(data, []int{120}, w)
	require.Len(t, eps, 1)
	ep := eps[0]
	assert.True(t, ep.Complete)
	require.Len(t, ep.Samples[0], 151)
	assert.Equal(t, 120.0, ep.Samples[0][50])
	assert.Equal(t, 70.0, ep.Samples[0][0])
	assert.InDelta(t, 95.0, ep.Baseline[0], 1e-12)
}

func TestBuildFlagsWindowsOutsideRecording(t *testing.T) {
	data := [][]float64{ramp(100)}
	w := epoch.Window{Pre: -10, Post: 20}
	eps := epoch.Build(data, []int{5, 50, 90, epoch.Unlocated}, w)
	assert.False(t, eps[0].Complete)
	assert.True(t, math.IsNaN(eps[0].Samples[0][0]))
	assert.True(t, eps[1].Complete)
	assert.False(t, eps[2].Complete)
	assert.True(t, math.IsNaN(eps[2].Samples[0][30]))
	assert.False(t, eps[3].Complete)
}

func TestExtractShape(t *testing.T) {
	data := [][]float64{ramp(50), ramp(50)}
	got := epoch.Extract(data, []int{10, 48}, -2, 2)
	require.Len(t, got, 2)
	require.Len(t, got[0], 5)
	require.Len(t, got[0][0], 2)
	assert.Equal(t, 8.0, got[1][0][0])
	assert.Equal(t, 12.0, got[0][4][0])
	assert.Equal(t, 48.0, got[0][2][1])
	assert.True(t, math.IsNaN(got[0][4][1]))
}

func TestLocateNearestSample(t *testing.T) {
	axis := []float64{0, 0.1, 0.2, 0.3}
	idx, err := epoch.Locate(axis, 0.14, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	idx, err = epoch.Locate(axis, 0.16, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	idx, err = epoch.Locate(axis, 0.35, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	_, err = epoch.Locate(axis, 0.45, 10)
	require.Error(t, err)
}

func TestLocateAllAppliesOffsetAndReportsFailures(t *testing.T) {
	axis := []float64{0, 1, 2, 3, 4}
	got, warnings := epoch.LocateAll(axis, []float64{1, 9, 3}, 1, -1)
	if diff := cmp.Diff([]int{0, epoch.Unlocated, 2}, got); diff != "" {
		t.Fatalf("indices mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Could not process Trigger Nr. 1")
	assert.Equal(t, -20, epoch.MarkerOffset(3, 5, 10))
}
