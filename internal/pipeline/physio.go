package pipeline

import (
	"context"

	"nica/internal/config"
	"nica/internal/denoise"
	"nica/internal/hemo"
	"nica/internal/logging"
	"nica/internal/services"
)

// physio removes the physiological components from the filtered signals,
// either by the common average reference or by transfer-function models of
// the respiration and Mayer-wave references.
func (a *analysis) physio(context.Context) error {
	set := a.s.Analysis
	if set.UsesCommonAverage() {
		clean, err := a.commonAverage(set.Refused())
		if err != nil {
			a.r.output("Could not calculate CAR signals.")
			return err
		}
		a.s.Clean = clean
		a.r.output("Physiological Artefacts Removal successful")
		return nil
	}

	var noises [][]float64
	n := len(a.s.Filtered.Oxy[0])
	if set.NeedsRespiration() {
		if a.s.Bio == nil || len(a.s.Bio.Respiration) == 0 {
			return services.Wrap(services.ErrMissingData, "physio", "respiration reference", denoise.MissingRespiration, nil)
		}
		ref, err := denoise.PrepareReference(a.s.Bio.Respiration, a.s.Bio.SamplingRate, a.s.Fs, n, set.RespirationBand(), a.s.Tuning)
		if err != nil {
			return err
		}
		a.s.RespirationReference = &ref
		a.r.logger.Debug("reference prepared", logging.String("noise", "respiration"), logging.Float64("peak_hz", ref.Peak))
		a.r.output("Peak Resp (EF): %g", ref.Peak)
		noises = append(noises, ref.Signal)
	}
	if set.NeedsHeartRate() {
		if a.s.Bio == nil || len(a.s.Bio.ECG) == 0 {
			return services.Wrap(services.ErrMissingData, "physio", "heart rate reference", denoise.MissingHeartRate, nil)
		}
		hr, err := a.p.heartRate.Extract(a.s.Bio.ECG, a.s.Bio.SamplingRate)
		if err != nil {
			return services.Wrap(services.ErrNumerical, "physio", "heart rate", "heart rate extraction failed", err)
		}
		ref, err := denoise.PrepareReference(hr, a.s.Bio.SamplingRate, a.s.Fs, n, set.MayerBand(), a.s.Tuning)
		if err != nil {
			return err
		}
		a.s.HeartRate = hr
		a.s.MayerReference = &ref
		a.r.logger.Debug("reference prepared", logging.String("noise", "mayer"), logging.Float64("peak_hz", ref.Peak))
		a.r.output("Peak Heart Rate (EF): %g", ref.Peak)
		noises = append(noises, ref.Signal)
	}

	if len(noises) == 0 {
		a.s.Clean = a.s.Filtered
		a.r.logger.Debug("no physiological correction applied", logging.String("correction_mode", set.CorrectionMode))
		a.r.output("Physiological Artefacts Removal successful")
		return nil
	}

	clean, err := a.transferFunction(noises)
	if err != nil {
		a.r.output("Could not calculate TF-removed signals.")
		return err
	}
	a.s.Clean = clean
	switch set.CorrectionMode {
	case config.ModeRespiration:
		a.r.output("Respiration Correction done")
	case config.ModeMayer:
		a.r.output("Mayer Waves Correction done")
	case config.ModeMayerAndRespiration:
		a.r.output("Respiration and Mayer Waves Correction done")
	}
	a.r.output("Physiological Artefacts Removal successful")
	return nil
}

func (a *analysis) commonAverage(refused []int) (hemo.Concentration, error) {
	oxy, err := denoise.CommonAverage(a.s.Filtered.Oxy, refused)
	if err != nil {
		return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "physio", "common average", "oxy-Hb", err)
	}
	deoxy, err := denoise.CommonAverage(a.s.Filtered.Deoxy, refused)
	if err != nil {
		return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "physio", "common average", "deoxy-Hb", err)
	}
	return hemo.Concentration{Oxy: oxy, Deoxy: deoxy}, nil
}

// transferFunction corrects against the respiration reference first, then
// against the Mayer-wave reference.
func (a *analysis) transferFunction(noises [][]float64) (hemo.Concentration, error) {
	oxy, err := denoise.Chain(a.p.remover, a.s.Filtered.Oxy, a.s.Fs, noises...)
	if err != nil {
		return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "physio", "transfer function", "oxy-Hb", err)
	}
	deoxy, err := denoise.Chain(a.p.remover, a.s.Filtered.Deoxy, a.s.Fs, noises...)
	if err != nil {
		return hemo.Concentration{}, services.Wrap(services.ErrNumerical, "physio", "transfer function", "deoxy-Hb", err)
	}
	return hemo.Concentration{Oxy: oxy, Deoxy: deoxy}, nil
}
