package config

import (
	"slices"
	"strings"
)

// Signal analysis methods.
const (
	MethodTransferFunction = "TF (Transfer Function Models)"
	MethodCommonAverage    = "CAR (Common Average Reference)"
)

// Correction modes of the transfer-function method.
const (
	ModeUncorrected         = "Uncorrected"
	ModeRespiration         = "Respiration"
	ModeMayer               = "Mayer Waves"
	ModeMayerAndRespiration = "Mayer and Respiration"
)

// DefaultCondition selects every trigger regardless of its class.
const DefaultCondition = "Default"

// Condition maps a condition name to the marker class that opens its trials.
type Condition struct {
	Name   string `toml:"name" json:"name"`
	Marker int    `toml:"marker" json:"marker"`
}

// OptodeFailure replaces the averages of a failed channel with the mean of
// its replacement channels. Channels are 1-based.
type OptodeFailure struct {
	Channel      int   `toml:"channel" json:"channel"`
	Replacements []int `toml:"replacements" json:"replacements"`
}

// Band is a frequency band with the half-width of the correction window
// placed around the detected peak.
type Band struct {
	Lower    float64
	Upper    float64
	HalfWide float64
}

// Analysis is the settings record of one analysis run. It is written next to
// every result bundle as <stem>_Settings.json.
type Analysis struct {
	TaskName          string          `toml:"task_name" json:"task_name"`
	ChosenCondition   string          `toml:"chosen_condition" json:"chosen_condition"`
	Conditions        []Condition     `toml:"conditions" json:"conditions"`
	Trials            int             `toml:"nr_trials" json:"nr_trials"`
	ProbeSet          string          `toml:"probe_set" json:"probe_set"`
	Method            string          `toml:"signal_analysis_method" json:"signal_analysis_method"`
	CorrectionMode    string          `toml:"correction_mode" json:"correction_mode"`
	Baseline          bool            `toml:"baseline" json:"baseline"`
	Notch             bool            `toml:"notch" json:"notch"`
	LowPass           bool            `toml:"low_pass" json:"low_pass"`
	MarkerOffset      bool            `toml:"marker_offset" json:"marker_offset"`
	CutOffFrequency   float64         `toml:"cut_off_frequency" json:"cut_off_frequency"`
	MayerLower        float64         `toml:"mayer_lower" json:"mayer_lower"`
	MayerUpper        float64         `toml:"mayer_upper" json:"mayer_upper"`
	MayerCorrBand     float64         `toml:"mayer_corr_band" json:"mayer_corr_band"`
	RespLower         float64         `toml:"resp_lower" json:"resp_lower"`
	RespUpper         float64         `toml:"resp_upper" json:"resp_upper"`
	RespCorrBand      float64         `toml:"resp_corr_band" json:"resp_corr_band"`
	ExcludedChannels  []int           `toml:"excluded_channels" json:"excluded_channels"`
	DisplayedChannels []int           `toml:"displayed_channels" json:"displayed_channels"`
	OptodeFailures    []OptodeFailure `toml:"optode_failures" json:"optode_failures"`
	TaskLength        float64         `toml:"task_length" json:"task_length"`
	PreTaskLength     float64         `toml:"pre_task_length" json:"pre_task_length"`
	PostTaskLength    float64         `toml:"post_task_length" json:"post_task_length"`
}

// GrandAverage overrides analysis settings for grand-average batches.
type GrandAverage struct {
	ROIs             [][]int `toml:"rois"`
	Condition        string  `toml:"condition"`
	ExcludedChannels []int   `toml:"excluded_channels"`
}

// Tuning holds the numerical constants of the filters and estimators.
type Tuning struct {
	AnalysisRate        float64 `toml:"analysis_rate"`
	TFWindowSeconds     float64 `toml:"tf_window_seconds"`
	MinOrder            int     `toml:"min_order"`
	MaxOrder            int     `toml:"max_order"`
	ReferenceTaps       int     `toml:"reference_taps"`
	WelchWindowSeconds  float64 `toml:"welch_window_seconds"`
	WelchOverlapSeconds float64 `toml:"welch_overlap_seconds"`
	WelchFFTSeconds     float64 `toml:"welch_fft_seconds"`
	NotchLow            float64 `toml:"notch_low"`
	NotchHigh           float64 `toml:"notch_high"`
	ContinuousSteps     int     `toml:"continuous_steps"`
	SmoothSpan          int     `toml:"smooth_span"`
}

// MayerBand returns the heart-rate (Mayer wave) search band.
func (a Analysis) MayerBand() Band {
	return Band{Lower: a.MayerLower, Upper: a.MayerUpper, HalfWide: a.MayerCorrBand}
}

// RespirationBand returns the respiration search band.
func (a Analysis) RespirationBand() Band {
	return Band{Lower: a.RespLower, Upper: a.RespUpper, HalfWide: a.RespCorrBand}
}

// UsesCommonAverage reports whether physiological removal is the common average reference.
func (a Analysis) UsesCommonAverage() bool {
	return a.Method == MethodCommonAverage
}

// NeedsRespiration reports whether the configured correction consumes respiration.
func (a Analysis) NeedsRespiration() bool {
	return !a.UsesCommonAverage() && (a.CorrectionMode == ModeRespiration || a.CorrectionMode == ModeMayerAndRespiration)
}

// NeedsHeartRate reports whether the configured correction consumes heart rate.
func (a Analysis) NeedsHeartRate() bool {
	return !a.UsesCommonAverage() && (a.CorrectionMode == ModeMayer || a.CorrectionMode == ModeMayerAndRespiration)
}

// ConditionMarker returns the marker class of the chosen condition. The
// second result is false for the Default condition.
func (a Analysis) ConditionMarker() (int, bool) {
	if a.ChosenCondition == DefaultCondition {
		return 0, false
	}
	for _, cond := range a.Conditions {
		if cond.Name == a.ChosenCondition {
			return cond.Marker, true
		}
	}
	return 0, false
}

// ConditionLabel is the chosen condition as used in file and directory names.
func (a Analysis) ConditionLabel() string {
	return strings.ReplaceAll(strings.TrimSpace(a.ChosenCondition), "/", "_")
}

// Refused returns the union of excluded and failed channels, sorted.
func (a Analysis) Refused() []int {
	out := append([]int(nil), a.ExcludedChannels...)
	for _, failure := range a.OptodeFailures {
		out = append(out, failure.Channel)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ForGrandAverage applies the grand-average overrides to a copy of the
// analysis settings.
func (c *Config) ForGrandAverage() Analysis {
	out := c.Analysis
	if cond := strings.TrimSpace(c.GrandAverage.Condition); cond != "" {
		out.ChosenCondition = cond
	}
	if c.GrandAverage.ExcludedChannels != nil {
		out.ExcludedChannels = append([]int(nil), c.GrandAverage.ExcludedChannels...)
	}
	return out
}
