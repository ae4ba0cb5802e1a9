package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"frontsync/internal/app"
	"frontsync/pkg/mq"
	"frontsync/pkg/outbox"
)

var replayLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs and health metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			status, err := a.Monitor.SyncStatus(ctx)
			if err != nil {
				return err
			}
			metrics, err := a.Monitor.HealthMetrics(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"status": status, "health": metrics})
		})
	},
}

var breakerCmd = &cobra.Command{
	Use:       "breaker [status|reset]",
	Short:     "Inspect or reset the Front API circuit breaker",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"status", "reset"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(args) == 1 && args[0] == "reset" {
				if err := a.Monitor.ResetCircuitBreaker(ctx); err != nil {
					return err
				}
			}
			status, err := a.Monitor.CircuitBreakerStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(status)
		})
	},
}

var resetMetricsCmd = &cobra.Command{
	Use:   "reset-metrics",
	Short: "Clear rolling API health metrics (the circuit breaker is left as is)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Monitor.ResetMetrics(ctx); err != nil {
				return err
			}
			fmt.Println("health metrics cleared")
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("schema is up to date")
			return nil
		})
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Outbox event maintenance",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay [event-id]",
	Short: "Republish one outbox event, or every failed event when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var eventID int64
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			eventID = id
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			publisher, err := mq.NewPublisher(a.Config.MQ.URL)
			if err != nil {
				return err
			}
			defer publisher.Close()

			replay := outbox.NewReplayService(a.Store.Outbox(), publisher, a.Logger)
			if eventID != 0 {
				if err := replay.ReplayEvent(ctx, eventID); err != nil {
					return err
				}
				return printJSON(map[string]any{"replayed": 1, "event_id": eventID})
			}
			n, err := replay.ReplayFailedEvents(ctx, replayLimit)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"replayed": n})
		})
	},
}

func init() {
	outboxReplayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum failed events to replay")
	outboxCmd.AddCommand(outboxReplayCmd)
	rootCmd.AddCommand(statusCmd, breakerCmd, resetMetricsCmd, migrateCmd, outboxCmd)
}
