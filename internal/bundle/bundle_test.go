package bundle_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nica/internal/average"
	"nica/internal/bundle"
	"nica/internal/config"
	"nica/internal/services"
)

func sampleBundle() *bundle.Bundle {
	res := average.Result{
		Oxy:             [][]float64{{1, 2}, {3, math.NaN()}},
		Deoxy:           [][]float64{{-1, -2}, {-3, math.NaN()}},
		OxyStd:          [][]float64{{0.1, 0.2}, {0.3, math.NaN()}},
		DeoxyStd:        [][]float64{{0.1, 0.2}, {0.3, math.NaN()}},
		ContinuousOxy:   [][]float64{{2, 2}},
		ContinuousDeoxy: [][]float64{{-2, -2}},
	}
	oxy := [][]float64{{1, 2, 3}, {4, 5, 6}}
	deoxy := [][]float64{{-1, -2, -3}, {-4, -5, -6}}
	return bundle.FromAverage(res, oxy, deoxy, 4)
}

func TestBundleRoundTripKeepsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec_task_Default_for_GA.json")
	require.NoError(t, bundle.Write(path, sampleBundle()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"head_oxy"`)
	assert.Contains(t, string(raw), "null")

	got, err := bundle.Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.SamplingRate)
	assert.Equal(t, 3.0, got.HeadOxy[1][0])
	assert.True(t, math.IsNaN(got.HeadOxy[1][1]))
	// cleaned signals are stored [sample][channel]
	assert.Equal(t, bundle.Matrix{{1, 4}, {2, 5}, {3, 6}}, got.OxyHb)
	assert.Equal(t, []float64{2, 5}, got.OxyHb[1])
	assert.Equal(t, []float64{-1, -2, -3}, got.DeoxyHb.Column(0))
}

func TestReadRejectsInconsistentBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken_for_GA.json")
	b := sampleBundle()
	b.HeadDeoxy = b.HeadDeoxy[:1]
	require.NoError(t, bundle.Write(path, b))

	_, err := bundle.Read(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrValidation))

	_, err = bundle.Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := bundle.Files{Dir: dir, Stem: "subject01_Tapping_Left"}
	assert.Equal(t, filepath.Join(dir, "subject01_Tapping_Left_Settings.json"), files.Settings())
	assert.Equal(t, files.Settings(), bundle.SettingsFor(files.Bundle()))

	a := config.DefaultAnalysis()
	a.TaskName = "Tapping"
	a.ChosenCondition = "Left"
	a.Conditions = []config.Condition{{Name: "Left", Marker: 2}}
	a.ExcludedChannels = []int{3}
	require.NoError(t, bundle.WriteSettings(files.Settings(), a))

	got, err := bundle.ReadSettings(files.Settings())
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestWriteSignalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.csv")
	require.NoError(t, bundle.WriteSignalCSV(path, [][]float64{{0.5, 1, -2}, {3, 4.25, 5}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time (s),1,2,3", lines[0])
	assert.Equal(t, "Ch1,0.5,1,-2", lines[1])
	assert.Equal(t, "Ch2,3,4.25,5", lines[2])
}
