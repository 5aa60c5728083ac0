package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nica/internal/biosignal"
	"nica/internal/recording"
)

func newRecordingCommand() *cobra.Command {
	recCmd := &cobra.Command{
		Use:         "recording",
		Short:       "Inspect and convert recordings",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	recCmd.AddCommand(newRecordingInspectCommand())
	recCmd.AddCommand(newRecordingConvertCommand())
	return recCmd
}

func newRecordingInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the contents of a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recording.Open(args[0])
			if err != nil {
				return err
			}
			duration := float64(rec.Samples()) / rec.Header.SamplingRate
			rows := [][]string{
				{"Name", rec.Name},
				{"Start", rec.Header.Start.Format("2006-01-02 15:04:05")},
				{"Sampling rate", strconv.FormatFloat(rec.Header.SamplingRate, 'g', -1, 64) + " Hz"},
				{"Channels", strconv.Itoa(rec.Channels())},
				{"Sources / detectors", fmt.Sprintf("%d / %d", rec.Header.Sources, rec.Header.Detectors)},
				{"Samples", strconv.Itoa(rec.Samples())},
				{"Duration", strconv.FormatFloat(duration, 'f', 1, 64) + " s"},
				{"Markers", strconv.Itoa(len(rec.Markers))},
				{"Marker classes", formatInts(biosignal.PossibleMarkers(rec.Markers))},
				{"Respiration", yesNo(rec.HasRespiration())},
				{"ECG", yesNo(rec.HasECG())},
			}
			if rec.Bio != nil {
				rows = append(rows, []string{"Biosignal rate", strconv.FormatFloat(rec.Bio.SamplingRate, 'g', -1, 64) + " Hz"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newRecordingConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a recording between JSON and EDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recording.Open(args[0])
			if err != nil {
				return err
			}
			target := args[1]
			switch strings.ToLower(filepath.Ext(target)) {
			case ".json":
				err = recording.WriteJSONFile(target, rec)
			case ".edf":
				err = recording.WriteEDFFile(target, rec)
			default:
				return fmt.Errorf("unsupported output format %q (use .json or .edf)", filepath.Ext(target))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
}

func formatInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
