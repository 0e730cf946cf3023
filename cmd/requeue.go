package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/engine"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <fingerprint>",
	Short: "Send a failed or rejected opportunity back to discovered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := engine.Requeue(ctx, st, args[0]); err != nil {
			return err
		}
		zap.L().Info("opportunity requeued", zap.String("fingerprint", args[0]))
		return nil
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <fingerprint>",
	Short: "Withdraw an opportunity and cancel its follow-ups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := engine.Withdraw(ctx, st, args[0]); err != nil {
			return err
		}
		zap.L().Info("opportunity withdrawn", zap.String("fingerprint", args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(withdrawCmd)
}
