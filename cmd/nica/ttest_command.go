package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nica/internal/bundle"
	"nica/internal/ttest"
)

func newTTestCommand() *cobra.Command {
	var showTable bool

	cmd := &cobra.Command{
		Use:         "ttest <bundle>",
		Short:       "Test every averaged channel against zero",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, report, err := ttest.Run(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range res.Lines() {
				fmt.Fprintln(out, line)
			}
			if showTable {
				fmt.Fprintln(out, renderTable(
					[]string{"Channel", "t oxy-Hb", "p oxy-Hb", "t deoxy-Hb", "p deoxy-Hb"},
					ttestRows(res),
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))
			}
			fmt.Fprintf(out, "Report written to %s\n", report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTable, "table", false, "Print per-channel statistics")
	return cmd
}

func ttestRows(res ttest.Result) [][]string {
	rows := make([][]string, len(res.Oxy))
	for i, oxy := range res.Oxy {
		row := []string{strconv.Itoa(oxy.Number), bundle.FormatValue(oxy.T), bundle.FormatValue(oxy.P), "", ""}
		if i < len(res.Deoxy) {
			row[3] = bundle.FormatValue(res.Deoxy[i].T)
			row[4] = bundle.FormatValue(res.Deoxy[i].P)
		}
		rows[i] = row
	}
	return rows
}
