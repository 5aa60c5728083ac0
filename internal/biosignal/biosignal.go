// Package biosignal selects the trials of the chosen condition and conditions
// the peripheral ECG and respiration channels.
package biosignal

import (
	"fmt"
	"slices"

	"nica/internal/config"
	"nica/internal/dsp"
	"nica/internal/recording"
	"nica/internal/services"
)

// SelectTriggers returns the marker times that open a trial of the chosen
// condition. The Default condition keeps every marker. The number of selected
// triggers must equal the configured trial count.
func SelectTriggers(markers []recording.Marker, a config.Analysis) ([]float64, error) {
	marker, filtered := a.ConditionMarker()
	var out []float64
	for _, m := range markers {
		if !filtered || m.Class == marker {
			out = append(out, m.Time)
		}
	}
	available := PossibleMarkers(markers)
	if len(out) == 0 {
		msg := fmt.Sprintf("No marker for condition %s found. Execution stopped!\n Possible marker: %v", a.ChosenCondition, available)
		return nil, services.Wrap(services.ErrConfiguration, "biosignals", "select triggers", msg, nil)
	}
	if len(out) != a.Trials {
		msg := fmt.Sprintf("Number of Trials does not match number of condition marker. Execution stopped! \n Possible marker: %v", available)
		return nil, services.Wrap(services.ErrConfiguration, "biosignals", "select triggers", msg, nil)
	}
	return out, nil
}

// PossibleMarkers lists the distinct marker classes in ascending order.
func PossibleMarkers(markers []recording.Marker) []int {
	out := make([]int, 0, len(markers))
	for _, m := range markers {
		out = append(out, m.Class)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Prepared is the conditioned copy of the peripheral channels.
type Prepared struct {
	SamplingRate float64
	Time         []float64
	ECG          []float64
	Respiration  []float64
	// Warnings collects non-fatal conditions, such as a skipped notch.
	Warnings []string
}

// Prepare applies the optional mains notch, removes the ECG mean and inverts
// the respiration signal. The source is not modified. A nil source yields nil.
func Prepare(bio *recording.Biosignals, notch bool, t config.Tuning) (*Prepared, error) {
	if bio == nil {
		return nil, nil
	}
	out := &Prepared{
		SamplingRate: bio.SamplingRate,
		Time:         append([]float64(nil), bio.Time...),
		ECG:          append([]float64(nil), bio.ECG...),
		Respiration:  append([]float64(nil), bio.Respiration...),
	}
	if notch {
		if err := out.applyNotch(t.NotchLow, t.NotchHigh); err != nil {
			return nil, err
		}
	}
	out.ECG = dsp.RemoveMean(out.ECG)
	for i, v := range out.Respiration {
		out.Respiration[i] = -v
	}
	return out, nil
}

func (p *Prepared) applyNotch(low, high float64) error {
	nyq := p.SamplingRate / 2
	if high >= nyq {
		p.Warnings = append(p.Warnings, fmt.Sprintf("notch band %g-%g Hz is above the Nyquist frequency %g Hz, notch skipped", low, high, nyq))
		return nil
	}
	sos, err := dsp.Butter(1, dsp.Bandstop, low/nyq, high/nyq)
	if err != nil {
		return services.Wrap(services.ErrNumerical, "biosignals", "design notch", "mains notch design failed", err)
	}
	padlen := sos.PadLen()
	if p.ECG, err = filterOrKeep(sos, p.ECG, padlen); err != nil {
		return services.Wrap(services.ErrNumerical, "biosignals", "notch ecg", "mains notch failed", err)
	}
	if p.Respiration, err = filterOrKeep(sos, p.Respiration, padlen); err != nil {
		return services.Wrap(services.ErrNumerical, "biosignals", "notch respiration", "mains notch failed", err)
	}
	return nil
}

func filterOrKeep(sos dsp.SOS, x []float64, padlen int) ([]float64, error) {
	if len(x) == 0 {
		return x, nil
	}
	return dsp.SosFiltFilt(sos, x, padlen)
}
