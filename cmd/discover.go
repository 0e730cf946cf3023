package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/engine"
	"github.com/sells-group/apply-cli/internal/source"
)

var (
	discoverKeywords []string
	discoverLocation string
	discoverLimit    int
	discoverSource   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Sweep configured sources for new listings",
	Long:  "Fetches listings from every configured board and file source, archives the raw payloads, and merges them into the opportunity set by fingerprint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := buildSources()
		if err != nil {
			return err
		}
		if discoverSource != "" {
			kept := sources[:0]
			for _, src := range sources {
				if src.Name() == discoverSource {
					kept = append(kept, src)
				}
			}
			if len(kept) == 0 {
				return eris.Errorf("no configured source named %q", discoverSource)
			}
			sources = kept
		}

		q := source.Query{
			Keywords: cfg.Sources.Keywords,
			Location: cfg.Sources.Location,
			Limit:    cfg.Sources.Limit,
		}
		if len(discoverKeywords) > 0 {
			q.Keywords = discoverKeywords
		}
		if discoverLocation != "" {
			q.Location = discoverLocation
		}
		if discoverLimit > 0 {
			q.Limit = discoverLimit
		}

		d := engine.NewDiscoverer(st, initGateway(), sources)
		result, err := d.Discover(ctx, q)
		if err != nil {
			return err
		}

		zap.L().Info("discovery sweep complete",
			zap.Int("fetched", result.Fetched),
			zap.Int64("archived", result.Archived),
			zap.Int("new", result.New),
			zap.Int("merged", result.Merged),
		)
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringSliceVar(&discoverKeywords, "keywords", nil, "search keywords (default from config)")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "search location (default from config)")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max listings per source (default from config)")
	discoverCmd.Flags().StringVar(&discoverSource, "source", "", "sweep only the named source")
	rootCmd.AddCommand(discoverCmd)
}
