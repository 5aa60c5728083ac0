package config

import (
	"fmt"
	"slices"
	"strings"
)

// Normalize expands paths, folds enum aliases and cleans channel lists. Load
// calls it once; callers that mutate a loaded config (CLI overrides) call it
// again before Validate.
func (c *Config) Normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Analysis.normalize()
	c.GrandAverage.ROIs = normalizeROIs(c.GrandAverage.ROIs)
	if c.GrandAverage.ExcludedChannels != nil {
		c.GrandAverage.ExcludedChannels = normalizeChannels(c.GrandAverage.ExcludedChannels)
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.AnalysisRoot, err = expandPath(c.Paths.AnalysisRoot); err != nil {
		return fmt.Errorf("paths.analysis_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (a *Analysis) normalize() {
	a.TaskName = strings.TrimSpace(a.TaskName)
	a.ChosenCondition = strings.TrimSpace(a.ChosenCondition)
	if a.ChosenCondition == "" || strings.EqualFold(a.ChosenCondition, DefaultCondition) {
		a.ChosenCondition = DefaultCondition
	}
	a.ProbeSet = strings.TrimSpace(a.ProbeSet)
	if a.ProbeSet == "" {
		a.ProbeSet = defaultProbeSet
	}
	a.Method = canonicalMethod(a.Method)
	a.CorrectionMode = canonicalMode(a.CorrectionMode)
	for i := range a.Conditions {
		a.Conditions[i].Name = strings.TrimSpace(a.Conditions[i].Name)
	}
	a.ExcludedChannels = normalizeChannels(a.ExcludedChannels)
	a.DisplayedChannels = normalizeChannels(a.DisplayedChannels)
	for i := range a.OptodeFailures {
		a.OptodeFailures[i].Replacements = normalizeChannels(a.OptodeFailures[i].Replacements)
	}
}

// canonicalMethod folds short aliases onto the canonical method names.
func canonicalMethod(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "tf", "transfer function", strings.ToLower(MethodTransferFunction):
		return MethodTransferFunction
	case "car", "common average reference", strings.ToLower(MethodCommonAverage):
		return MethodCommonAverage
	default:
		return trimmed
	}
}

// canonicalMode folds "Default" and case variants onto the canonical modes.
func canonicalMode(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "", "default", "uncorrected", "none":
		return ModeUncorrected
	case "respiration", "resp":
		return ModeRespiration
	case "mayer waves", "mayer":
		return ModeMayer
	case "mayer and respiration", "both":
		return ModeMayerAndRespiration
	default:
		return trimmed
	}
}

func normalizeChannels(channels []int) []int {
	if len(channels) == 0 {
		return nil
	}
	out := append([]int(nil), channels...)
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeROIs(rois [][]int) [][]int {
	out := make([][]int, 0, len(rois))
	for _, roi := range rois {
		if cleaned := normalizeChannels(roi); len(cleaned) > 0 {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
