// Package hemo converts two-wavelength light intensities into relative
// haemoglobin concentration changes with the modified Beer-Lambert law.
package hemo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"nica/internal/services"
)

// Extinction coefficients, rows 760 nm and 850 nm.
var extinction = mat.NewDense(2, 2, []float64{
	0.1675, 0.06096,
	0.07861, 0.11596,
})

const (
	pathFactor = 1.0 // differential path length factor, both wavelengths
	distance   = 1.0
)

// Concentration holds [channel][sample] concentration changes.
type Concentration struct {
	Deoxy [][]float64
	Oxy   [][]float64
}

// NonFiniteMessage is the status text reported when a channel produces NaN or Inf.
const NonFiniteMessage = "Error with Concentration Calculation!"

// Convert computes concentration changes for every channel. The first sample
// duplicates the second so both outputs keep the input length.
func Convert(wl760, wl850 [][]float64) (Concentration, error) {
	if len(wl760) != len(wl850) {
		return Concentration{}, services.Wrap(services.ErrValidation, "concentration", "convert",
			fmt.Sprintf("wavelength channel counts differ: %d vs %d", len(wl760), len(wl850)), nil)
	}
	var inv mat.Dense
	if err := inv.Inverse(extinction); err != nil {
		return Concentration{}, services.Wrap(services.ErrNumerical, "concentration", "invert extinction", NonFiniteMessage, err)
	}

	out := Concentration{
		Deoxy: make([][]float64, len(wl760)),
		Oxy:   make([][]float64, len(wl760)),
	}
	for ch := range wl760 {
		deoxy, oxy, err := channel(&inv, wl760[ch], wl850[ch])
		if err != nil {
			return Concentration{}, services.Wrap(services.ErrNumerical, "concentration", fmt.Sprintf("channel %d", ch+1), NonFiniteMessage, err)
		}
		out.Deoxy[ch] = deoxy
		out.Oxy[ch] = oxy
	}
	return out, nil
}

func channel(inv *mat.Dense, a, b []float64) ([]float64, []float64, error) {
	n := len(a)
	if n != len(b) {
		return nil, nil, fmt.Errorf("wavelength lengths differ: %d vs %d", n, len(b))
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least two samples, got %d", n)
	}
	deoxy := make([]float64, n)
	oxy := make([]float64, n)
	absorbance := mat.NewVecDense(2, nil)
	var conc mat.VecDense
	var sumDeoxy, sumOxy float64
	for i := 0; i < n-1; i++ {
		absorbance.SetVec(0, math.Log10(a[i]/a[i+1])/(pathFactor*distance))
		absorbance.SetVec(1, math.Log10(b[i]/b[i+1])/(pathFactor*distance))
		conc.MulVec(inv, absorbance)
		sumDeoxy += conc.AtVec(0)
		sumOxy += conc.AtVec(1)
		if !finite(sumDeoxy) || !finite(sumOxy) {
			return nil, nil, fmt.Errorf("non-finite value at sample %d", i+1)
		}
		deoxy[i+1] = sumDeoxy
		oxy[i+1] = sumOxy
	}
	deoxy[0] = deoxy[1]
	oxy[0] = oxy[1]
	return deoxy, oxy, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
