package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nica/internal/logging"
	"nica/internal/notifications"
	"nica/internal/pipeline"
	"nica/internal/runstore"
	"nica/internal/services"
)

func newGrandAverageCommand(ctx *commandContext) *cobra.Command {
	var (
		condition string
		rois      []string
		excluded  []int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "grand-average <bundle> <bundle>...",
		Short: "Aggregate result bundles into a grand average",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("condition") {
				cfg.GrandAverage.Condition = condition
			}
			if cmd.Flags().Changed("roi") {
				parsed, err := parseROIs(rois)
				if err != nil {
					return err
				}
				cfg.GrandAverage.ROIs = parsed
			}
			if cmd.Flags().Changed("exclude") {
				cfg.GrandAverage.ExcludedChannels = append([]int(nil), excluded...)
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("grand average settings: %w", err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runID := uuid.NewString()
			set := cfg.ForGrandAverage()
			if err := store.Begin(cmd.Context(), runstore.Run{
				ID:        runID,
				Kind:      runstore.KindGrandAverage,
				Recording: strings.Join(args, ","),
				Condition: set.ChosenCondition,
			}); err != nil {
				return err
			}

			p := pipeline.New(cfg, pipeline.Options{Logger: logger, NewRunID: func() string { return runID }})
			gs, runErr := p.RunGrandAverage(cmd.Context(), args, newEventPrinter(cmd.OutOrStdout(), asJSON))

			finishCtx := context.WithoutCancel(cmd.Context())
			runLogger := logging.WithContext(services.WithRunID(finishCtx, runID), logger)
			notifier := notifications.NewService(cfg)
			result := runstore.Outcome{Status: runstore.StatusFinished}
			if gs != nil {
				result.EvalPath = gs.Files.Dir
			}
			if runErr != nil {
				result.Status = runstore.StatusFailed
				result.ErrorMessage = runErr.Error()
				status := "Grand Average could not start"
				var stageErr *pipeline.StageError
				if errors.As(runErr, &stageErr) {
					result.FailedStage = stageErr.Result.Stage
					status = stageErr.Result.Status
				}
				if err := notifier.NotifyAnalysisFailed(finishCtx, "Grand Average "+set.ChosenCondition, status, runErr); err != nil {
					logging.WarnWithContext(runLogger, "failure notification not sent", "notification_failed", logging.Error(err))
				}
			} else if err := notifier.NotifyGrandAverageCompleted(finishCtx, set.ChosenCondition, len(args), gs.Files.Dir); err != nil {
				logging.WarnWithContext(runLogger, "completion notification not sent", "notification_failed", logging.Error(err))
			}
			if err := store.Finish(finishCtx, runID, result); err != nil {
				logging.ErrorWithContext(runLogger, "run history not updated", "runstore_failed", logging.Error(err))
			}
			if runErr != nil {
				return runErr
			}
			if !asJSON {
				for _, path := range gs.Artifacts {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&condition, "condition", "", "Condition of the batch (overrides grand_average.condition)")
	cmd.Flags().StringArrayVar(&rois, "roi", nil, "Region of interest as comma-separated channels; repeat per region")
	cmd.Flags().IntSliceVar(&excluded, "exclude", nil, "Channels excluded from the report (1-based)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Stream events as JSON lines")
	return cmd
}

func parseROIs(values []string) ([][]int, error) {
	out := make([][]int, 0, len(values))
	for i, value := range values {
		var roi []int
		for _, field := range strings.Split(value, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			ch, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("roi %d: invalid channel %q", i+1, field)
			}
			roi = append(roi, ch)
		}
		if len(roi) == 0 {
			return nil, fmt.Errorf("roi %d: no channels", i+1)
		}
		out = append(out, roi)
	}
	return out, nil
}
