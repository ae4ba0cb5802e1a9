package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"frontsync/internal/app"
	"frontsync/internal/syncer"
)

var (
	syncSince         string
	withMessages      bool
	incrSince         string
	incrUntil         string
	incrMaxEvents     int
	errSyncIncomplete = errors.New("sync did not complete, see errors in output")
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full sync of every resource",
	Long: `Sync teammates, tags, inboxes, contacts, conversations and messages in
dependency order. With --since only conversations modified after that time
have their messages synced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(syncSince, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return report(a.Orchestrator.SyncAll(ctx, since))
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations <conversation-id>...",
	Short: "Sync specific conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return report(a.Orchestrator.SyncConversationIDs(ctx, args, withMessages))
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>...",
	Short: "Sync messages of conversations that are already stored locally",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return report(a.Orchestrator.SyncMessagesForConversations(ctx, args))
		})
	},
}

var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Detect changed conversations from events and sync them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		since, err := parseSince(incrSince, now)
		if err != nil {
			return err
		}
		if since == nil {
			return fmt.Errorf("--since is required")
		}
		until, err := parseSince(incrUntil, now)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res := a.Orchestrator.IncrementalSync(ctx, *since, until, incrMaxEvents)
			if err := printJSON(res); err != nil {
				return err
			}
			if res.Stats.Incomplete() {
				return errSyncIncomplete
			}
			return nil
		})
	},
}

func report(stats syncer.Stats) error {
	if err := printJSON(stats); err != nil {
		return err
	}
	if stats.Incomplete() {
		return errSyncIncomplete
	}
	return nil
}

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "", "only sync messages of conversations modified since (RFC3339, epoch or duration like 6h)")
	conversationsCmd.Flags().BoolVar(&withMessages, "messages", false, "also sync messages of each conversation")
	incrementalCmd.Flags().StringVar(&incrSince, "since", "", "window start (RFC3339, epoch or duration like 30m)")
	incrementalCmd.Flags().StringVar(&incrUntil, "until", "", "window end, defaults to now")
	incrementalCmd.Flags().IntVar(&incrMaxEvents, "max-events", 0, "stop scanning events after this many, 0 uses the default")

	for _, c := range []*cobra.Command{syncCmd, conversationsCmd, incrementalCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and process everything without touching the database")
	}

	rootCmd.AddCommand(syncCmd, conversationsCmd, messagesCmd, incrementalCmd)
}
