package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/apply-cli/internal/model"
)

var statusDays int

// stageOrder fixes the display order; map iteration would shuffle it.
var stageOrder = []model.Stage{
	model.StageDiscovered,
	model.StageFiltered,
	model.StageTailoring,
	model.StageLetterDrafting,
	model.StageSubmitting,
	model.StageSubmitted,
	model.StageRejected,
	model.StageFailed,
	model.StageWithdrawn,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline counts and daily statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountByStage(ctx)
		if err != nil {
			return err
		}
		stats, err := st.Stats(ctx, statusDays)
		if err != nil {
			return err
		}

		formatStageCounts(os.Stdout, counts)
		fmt.Println()
		formatDailyStats(os.Stdout, stats)
		return nil
	},
}

func formatStageCounts(out io.Writer, counts map[model.Stage]int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tCOUNT")
	_, _ = fmt.Fprintln(w, "-----\t-----")
	total := 0
	for _, stage := range stageOrder {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", stage, counts[stage])
		total += counts[stage]
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}

func formatDailyStats(out io.Writer, stats []model.DailyStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tDISCOVERED\tSUBMITTED\tFOLLOW-UPS")
	_, _ = fmt.Fprintln(w, "----\t----------\t---------\t----------")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
			s.Date, s.Discovered, s.Submitted, s.FollowUpsFired)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().IntVar(&statusDays, "days", 14, "days of statistics to show")
	rootCmd.AddCommand(statusCmd)
}
