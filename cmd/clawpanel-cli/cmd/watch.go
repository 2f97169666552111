package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawpanel/clawpanel/internal/observer"
)

var (
	watchReconnect time.Duration
	watchReconcile time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live activity log",
	Long: `Attach to the observer stream, print the replayed history, then follow
new messages, sends and status changes. The stream is resubscribed after a
fixed delay whenever it drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loginCtx, cancel := context.WithTimeout(ctx, timeout)
		api, err := newAPIClient(loginCtx)
		cancel()
		if err != nil {
			return err
		}

		reconnect := watchReconnect
		if !cmd.Flags().Changed("reconnect") {
			if d, err := time.ParseDuration(api.cfg.Bridge.ReconnectDelay); err == nil && d > 0 {
				reconnect = d
			}
		}

		out := cmd.OutOrStdout()
		opts := observer.Options{
			BaseURL:           api.baseURL,
			Token:             api.token,
			ReconnectDelay:    reconnect,
			ReconcileInterval: watchReconcile,
			OnEntry: func(e observer.LogEntry) {
				fmt.Fprintln(out, formatEntry(e))
			},
		}
		if api.canRefresh() {
			opts.RefreshToken = func(ctx context.Context) (string, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return api.login(ctx)
			}
		}
		client, err := observer.New(opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, headerStyle.Render("Watching "+api.baseURL))
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchReconnect, "reconnect", observer.DefaultReconnectDelay, "Delay before resubscribing after a drop")
	watchCmd.Flags().DurationVar(&watchReconcile, "reconcile", observer.DefaultReconcileInterval, "Status poll interval")
}
