package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lifecycle engine and follow-up scheduler",
	Long:  "Processes every active stage in order (filter, tailor, draft, submit) and fires due follow-ups. With --once, runs a single cycle and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if runOnce {
			result, err := env.Engine.RunOnce(ctx)
			if err != nil {
				return err
			}
			tick, err := env.Scheduler.Tick(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("cycle complete",
				zap.Int("processed", result.Processed),
				zap.Int("advanced", result.Advanced),
				zap.Int("failed", result.Failed),
				zap.Int("follow_ups_fired", tick.Fired),
			)
			return nil
		}

		interval := time.Duration(cfg.Engine.IntervalSecs) * time.Second
		zap.L().Info("starting lifecycle loop", zap.Duration("interval", interval))

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Engine.Run(gCtx, interval)
		})
		g.Go(func() error {
			return env.Scheduler.Run(gCtx)
		})
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run one cycle and exit")
	rootCmd.AddCommand(runCmd)
}
