package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nica/internal/config"
	"nica/internal/logging"
	"nica/internal/notifications"
	"nica/internal/pipeline"
	"nica/internal/runstore"
	"nica/internal/services"
	"nica/internal/workspace"
)

// analysisFlags override analysis settings from the configuration file. Only
// flags set on the command line are applied.
type analysisFlags struct {
	taskName     string
	condition    string
	trials       int
	probeSet     string
	method       string
	mode         string
	taskLength   float64
	preTask      float64
	postTask     float64
	lowPass      bool
	cutOff       float64
	baseline     bool
	notch        bool
	markerOffset bool
	excluded     []int
	exportSignal bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.taskName, "task", "", "Task name used in output file names")
	flags.StringVar(&f.condition, "condition", "", "Condition to analyze (Default keeps every marker)")
	flags.IntVar(&f.trials, "trials", 0, "Expected number of trials")
	flags.StringVar(&f.probeSet, "probe-set", "", "Probe set layout")
	flags.StringVar(&f.method, "method", "", "Signal analysis method (tf or car)")
	flags.StringVar(&f.mode, "mode", "", "Correction mode (uncorrected, respiration, mayer, mayer+respiration)")
	flags.Float64Var(&f.taskLength, "task-length", 0, "Task length in seconds")
	flags.Float64Var(&f.preTask, "pre-task", 0, "Pre-task length in seconds")
	flags.Float64Var(&f.postTask, "post-task", 0, "Post-task length in seconds")
	flags.BoolVar(&f.lowPass, "low-pass", false, "Apply the low-pass filter")
	flags.Float64Var(&f.cutOff, "cut-off", 0, "Low-pass cut-off frequency in Hz")
	flags.BoolVar(&f.baseline, "baseline", false, "Remove the baseline drift")
	flags.BoolVar(&f.notch, "notch", false, "Apply the mains notch to the biosignals")
	flags.BoolVar(&f.markerOffset, "marker-offset", false, "Shift epochs by the recording start to first marker offset")
	flags.IntSliceVar(&f.excluded, "exclude", nil, "Excluded channels (1-based)")
	flags.BoolVar(&f.exportSignal, "export-signals", false, "Write the cleaned signals as CSV")
}

func (f *analysisFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	a := &cfg.Analysis
	if changed("task") {
		a.TaskName = f.taskName
	}
	if changed("condition") {
		a.ChosenCondition = f.condition
	}
	if changed("trials") {
		a.Trials = f.trials
	}
	if changed("probe-set") {
		a.ProbeSet = f.probeSet
	}
	if changed("method") {
		a.Method = f.method
	}
	if changed("mode") {
		a.CorrectionMode = f.mode
	}
	if changed("task-length") {
		a.TaskLength = f.taskLength
	}
	if changed("pre-task") {
		a.PreTaskLength = f.preTask
	}
	if changed("post-task") {
		a.PostTaskLength = f.postTask
	}
	if changed("low-pass") {
		a.LowPass = f.lowPass
	}
	if changed("cut-off") {
		a.CutOffFrequency = f.cutOff
	}
	if changed("baseline") {
		a.Baseline = f.baseline
	}
	if changed("notch") {
		a.Notch = f.notch
	}
	if changed("marker-offset") {
		a.MarkerOffset = f.markerOffset
	}
	if changed("exclude") {
		a.ExcludedChannels = append([]int(nil), f.excluded...)
	}
	if changed("export-signals") {
		cfg.Output.ExportSignals = f.exportSignal
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var flags analysisFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <recording>",
		Short: "Analyze one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return fmt.Errorf("analysis settings: %w", err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return runAnalysis(cmd.Context(), cmd, cfg, logger, args[0], asJSON)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Stream events as JSON lines")
	return cmd
}

func runAnalysis(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, recordingPath string, asJSON bool) error {
	lock, err := workspace.Acquire(cfg.LockDir(), recordingPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := runstore.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := uuid.NewString()
	runLogger := logging.WithContext(services.WithRunID(ctx, runID), logger)
	notifier := notifications.NewService(cfg)
	p := pipeline.New(cfg, pipeline.Options{
		Logger:   logger,
		NewRunID: func() string { return runID },
	})

	started := time.Now()
	if err := store.Begin(ctx, runstore.Run{
		ID:        runID,
		Kind:      runstore.KindAnalysis,
		Recording: recordingPath,
		Condition: cfg.Analysis.ChosenCondition,
		StartedAt: started,
	}); err != nil {
		return err
	}

	printer := newEventPrinter(cmd.OutOrStdout(), asJSON)
	events, done := p.Start(ctx, recordingPath)
	for e := range events {
		printer.Emit(e)
	}
	outcome := <-done

	// The run record and notifications outlive a cancelled command context.
	finishCtx := context.WithoutCancel(ctx)
	result := runstore.Outcome{Status: runstore.StatusFinished}
	if outcome.Session != nil {
		result.EvalPath = outcome.Session.Layout.Dir
	}
	label := filepath.Base(recordingPath)
	if outcome.Err != nil {
		result.Status = runstore.StatusFailed
		result.ErrorMessage = services.Details(outcome.Err).Message
		status := "Analysis could not start"
		var stageErr *pipeline.StageError
		if errors.As(outcome.Err, &stageErr) {
			result.FailedStage = stageErr.Result.Stage
			status = stageErr.Result.Status
		}
		if result.ErrorMessage == "" {
			result.ErrorMessage = outcome.Err.Error()
		}
		if err := notifier.NotifyAnalysisFailed(finishCtx, label, status, outcome.Err); err != nil {
			logging.WarnWithContext(runLogger, "failure notification not sent", "notification_failed", logging.Error(err))
		}
	} else if err := notifier.NotifyAnalysisCompleted(finishCtx, label, result.EvalPath, time.Since(started)); err != nil {
		logging.WarnWithContext(runLogger, "completion notification not sent", "notification_failed", logging.Error(err))
	}
	if err := store.Finish(finishCtx, runID, result); err != nil {
		logging.ErrorWithContext(runLogger, "run history not updated", "runstore_failed", logging.Error(err))
	}

	if outcome.Err != nil {
		return outcome.Err
	}
	if !asJSON {
		for _, path := range outcome.Session.Artifacts {
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", runID)
	}
	return nil
}
