package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/export"
)

var (
	exportOut   string
	exportDays  int
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export opportunities, history, and statistics to a workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		opts := export.Options{
			StatsDays: exportDays,
			Limit:     exportLimit,
		}
		if err := export.Write(ctx, st, exportOut, opts); err != nil {
			return err
		}

		zap.L().Info("export written", zap.String("path", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "applications.xlsx", "output workbook path")
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "days of statistics to include")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "max opportunities to export (0 for default)")
	rootCmd.AddCommand(exportCmd)
}
