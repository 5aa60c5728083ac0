package config

import (
	"errors"
	"fmt"
	"slices"

	"nica/internal/probeset"
)

// Validate ensures the configuration is usable. Run-specific requirements
// (trial count, task length) are checked by Analysis.ValidateForRun.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(c.Tuning); err != nil {
		return err
	}
	if err := c.validateGrandAverage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use auto, console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateGrandAverage() error {
	for i, roi := range c.GrandAverage.ROIs {
		for _, ch := range roi {
			if ch < 1 {
				return fmt.Errorf("grand_average.rois[%d]: channel numbers are 1-based, got %d", i, ch)
			}
		}
	}
	return nil
}

// Validate checks the numerical constants.
func (t Tuning) Validate() error {
	if t.AnalysisRate <= 0 {
		return errors.New("tuning.analysis_rate must be positive")
	}
	if t.TFWindowSeconds <= 0 {
		return errors.New("tuning.tf_window_seconds must be positive")
	}
	if t.MinOrder < 1 || t.MaxOrder < t.MinOrder {
		return fmt.Errorf("tuning: order range %d..%d is invalid", t.MinOrder, t.MaxOrder)
	}
	if t.ReferenceTaps < 3 || t.ReferenceTaps%2 == 0 {
		return errors.New("tuning.reference_taps must be an odd number of at least 3")
	}
	if t.WelchWindowSeconds <= 0 || t.WelchOverlapSeconds < 0 || t.WelchOverlapSeconds >= t.WelchWindowSeconds {
		return errors.New("tuning: welch overlap must be shorter than the welch window")
	}
	if t.WelchFFTSeconds < t.WelchWindowSeconds {
		return errors.New("tuning.welch_fft_seconds must not be shorter than the welch window")
	}
	if t.NotchLow <= 0 || t.NotchHigh <= t.NotchLow {
		return errors.New("tuning: notch band is inverted")
	}
	if t.ContinuousSteps < 1 {
		return errors.New("tuning.continuous_steps must be positive")
	}
	if t.SmoothSpan < 1 || t.SmoothSpan%2 == 0 {
		return errors.New("tuning.smooth_span must be odd and positive")
	}
	return nil
}

// Validate checks enum values, bands and channel lists.
func (a Analysis) Validate(t Tuning) error {
	if _, ok := probeset.Lookup(a.ProbeSet); !ok {
		return fmt.Errorf("analysis.probe_set: unknown probe set %q (known: %v)", a.ProbeSet, probeset.Names())
	}
	switch a.Method {
	case MethodTransferFunction, MethodCommonAverage:
	default:
		return fmt.Errorf("analysis.signal_analysis_method: unsupported value %q", a.Method)
	}
	switch a.CorrectionMode {
	case ModeUncorrected, ModeRespiration, ModeMayer, ModeMayerAndRespiration:
	default:
		return fmt.Errorf("analysis.correction_mode: unsupported value %q", a.CorrectionMode)
	}
	if a.Trials < 0 {
		return errors.New("analysis.nr_trials must not be negative")
	}
	if a.ChosenCondition != DefaultCondition {
		if _, ok := a.ConditionMarker(); !ok {
			return fmt.Errorf("analysis.chosen_condition: %q is not listed in analysis.conditions", a.ChosenCondition)
		}
	}
	names := make([]string, 0, len(a.Conditions))
	for _, cond := range a.Conditions {
		if cond.Name == "" {
			return errors.New("analysis.conditions: every condition needs a name")
		}
		if cond.Marker == 0 {
			return fmt.Errorf("analysis.conditions: condition %q needs a nonzero marker", cond.Name)
		}
		if slices.Contains(names, cond.Name) {
			return fmt.Errorf("analysis.conditions: duplicate condition %q", cond.Name)
		}
		names = append(names, cond.Name)
	}

	nyquist := t.AnalysisRate / 2
	if err := validateBand("mayer", a.MayerBand(), nyquist); err != nil {
		return err
	}
	if err := validateBand("resp", a.RespirationBand(), nyquist); err != nil {
		return err
	}
	if a.LowPass {
		if a.CutOffFrequency <= 0 {
			return errors.New("analysis.cut_off_frequency must be positive when low_pass is enabled")
		}
		if a.CutOffFrequency+0.2 >= nyquist {
			return fmt.Errorf("analysis.cut_off_frequency %.3g Hz leaves no stop band below the %.3g Hz Nyquist limit", a.CutOffFrequency, nyquist)
		}
	}
	for _, ch := range append(append([]int(nil), a.ExcludedChannels...), a.DisplayedChannels...) {
		if ch < 1 {
			return fmt.Errorf("analysis: channel numbers are 1-based, got %d", ch)
		}
	}
	for _, failure := range a.OptodeFailures {
		if failure.Channel < 1 {
			return fmt.Errorf("analysis.optode_failures: channel numbers are 1-based, got %d", failure.Channel)
		}
		if len(failure.Replacements) == 0 {
			return fmt.Errorf("analysis.optode_failures: channel %d has no replacement channels", failure.Channel)
		}
		if slices.Contains(failure.Replacements, failure.Channel) {
			return fmt.Errorf("analysis.optode_failures: channel %d cannot replace itself", failure.Channel)
		}
	}
	if a.TaskLength < 0 || a.PreTaskLength < 0 || a.PostTaskLength < 0 {
		return errors.New("analysis: task, pre-task and post-task lengths must not be negative")
	}
	return nil
}

// ValidateForRun adds the requirements of an actual analysis run.
func (a Analysis) ValidateForRun(t Tuning) error {
	if err := a.Validate(t); err != nil {
		return err
	}
	if a.Trials == 0 {
		return errors.New("analysis.nr_trials must be set")
	}
	if a.TaskLength <= 0 {
		return errors.New("analysis.task_length must be set")
	}
	return nil
}

func validateBand(name string, band Band, nyquist float64) error {
	if band.Lower <= 0 || band.Upper <= band.Lower {
		return fmt.Errorf("analysis.%s band [%g, %g] is inverted or empty", name, band.Lower, band.Upper)
	}
	if band.Upper >= nyquist {
		return fmt.Errorf("analysis.%s_upper %g Hz must stay below the %g Hz Nyquist limit", name, band.Upper, nyquist)
	}
	if band.HalfWide <= 0 {
		return fmt.Errorf("analysis.%s_corr_band must be positive", name)
	}
	return nil
}
