package config

const (
	defaultAnalysisRoot         = "~/nica"
	defaultStateDir             = "~/.local/share/nica"
	defaultLogDir               = "~/.local/share/nica/logs"
	defaultLogFormat            = "auto"
	defaultLogLevel             = "info"
	defaultNotifyRequestTimeout = 10
	defaultProbeSet             = "12"
	defaultCutOffFrequency      = 0.5
	defaultMayerLower           = 0.07
	defaultMayerUpper           = 0.13
	defaultMayerCorrBand        = 0.02
	defaultRespLower            = 0.2
	defaultRespUpper            = 0.4
	defaultRespCorrBand         = 0.05
	defaultAnalysisRate         = 4
	defaultTFWindowSeconds      = 240
	defaultMinOrder             = 5
	defaultMaxOrder             = 15
	defaultReferenceTaps        = 201
	defaultWelchWindowSeconds   = 100
	defaultWelchOverlapSeconds  = 50
	defaultWelchFFTSeconds      = 200
	defaultNotchLow             = 48
	defaultNotchHigh            = 52
	defaultContinuousSteps      = 10
	defaultSmoothSpan           = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AnalysisRoot: defaultAnalysisRoot,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Output: Output{
			ExportSignals: true,
		},
		Analysis: DefaultAnalysis(),
		Tuning:   DefaultTuning(),
	}
}

// DefaultAnalysis returns the analysis settings used when a config file
// leaves them unset.
func DefaultAnalysis() Analysis {
	return Analysis{
		ChosenCondition: DefaultCondition,
		ProbeSet:        defaultProbeSet,
		Method:          MethodTransferFunction,
		CorrectionMode:  ModeUncorrected,
		CutOffFrequency: defaultCutOffFrequency,
		MayerLower:      defaultMayerLower,
		MayerUpper:      defaultMayerUpper,
		MayerCorrBand:   defaultMayerCorrBand,
		RespLower:       defaultRespLower,
		RespUpper:       defaultRespUpper,
		RespCorrBand:    defaultRespCorrBand,
	}
}

// DefaultTuning returns the numerical constants of the reference pipeline.
func DefaultTuning() Tuning {
	return Tuning{
		AnalysisRate:        defaultAnalysisRate,
		TFWindowSeconds:     defaultTFWindowSeconds,
		MinOrder:            defaultMinOrder,
		MaxOrder:            defaultMaxOrder,
		ReferenceTaps:       defaultReferenceTaps,
		WelchWindowSeconds:  defaultWelchWindowSeconds,
		WelchOverlapSeconds: defaultWelchOverlapSeconds,
		WelchFFTSeconds:     defaultWelchFFTSeconds,
		NotchLow:            defaultNotchLow,
		NotchHigh:           defaultNotchHigh,
		ContinuousSteps:     defaultContinuousSteps,
		SmoothSpan:          defaultSmoothSpan,
	}
}
