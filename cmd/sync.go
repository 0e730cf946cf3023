package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/pkg/notion"
)

var syncLimit int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the opportunity set to the Notion tracker",
	Long:  "Upserts every opportunity into the Notion tracker database, keyed by fingerprint. Safe to rerun; existing pages are updated in place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Notion.Token == "" || cfg.Notion.TrackerDB == "" {
			return eris.New("notion sync requires notion.token and notion.tracker_db")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ops, err := st.ListAll(ctx, syncLimit)
		if err != nil {
			return err
		}

		client := notion.NewClient(cfg.Notion.Token)
		synced := 0
		for _, op := range ops {
			if err := notion.UpsertOpportunity(ctx, client, cfg.Notion.TrackerDB, op); err != nil {
				zap.L().Warn("tracker upsert failed",
					zap.String("fingerprint", op.Fingerprint), zap.Error(err))
				continue
			}
			synced++
		}

		zap.L().Info("tracker sync complete",
			zap.Int("total", len(ops)),
			zap.Int("synced", synced),
		)
		return nil
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max opportunities to sync (0 for default)")
	rootCmd.AddCommand(syncCmd)
}
