package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	scoutsync "github.com/fanscout/scout/internal/sync"
	"github.com/fanscout/scout/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push offline reports, then pull everything from the remote store",
	Long: `Synchronize the local cache with the remote store.

Reports created or edited offline are pushed first; each report that fails to
upload stays queued for the next sync. The user's reports, point history,
templates, clubs, matches and reward catalogue are then pulled into the cache.`,
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			fmt.Printf("%s Syncing %s...\n", ui.RenderAccent("🔄"), userID)
			start := time.Now()

			stop := watchProgress(a.sync)
			res, err := a.sync.SyncAllData(ctx, userID)
			stop()
			printPush(res)
			if err != nil {
				return err
			}

			fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
			fmt.Printf("   Cache: %s\n", a.cache.Root())
			return nil
		})
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload reports written while offline",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			res, err := a.sync.PushOfflineReports(ctx, userID)
			printPush(res)
			return err
		})
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the cached data with the remote copy",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			stop := watchProgress(a.sync)
			err = a.sync.PullAll(ctx, userID)
			stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s Pulled data for %s\n", ui.RenderPass("✓"), userID)
			return nil
		})
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync time and reports waiting to be pushed",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			fmt.Printf("Cache: %s\n", a.cache.Root())
			if id := a.cache.CurrentUserID(); id != "" {
				fmt.Printf("User: %s\n", id)
			}

			if last, ok := a.sync.LastSyncDate(); ok {
				fmt.Printf("Last sync: %s (%s ago)\n", last.Local().Format(time.DateTime), time.Since(last).Round(time.Second))
			} else {
				fmt.Printf("Last sync: %s\n", ui.RenderWarn("never"))
			}

			unsynced := a.cache.UnsyncedIDs()
			if len(unsynced) == 0 {
				fmt.Printf("%s No reports waiting to be pushed\n", ui.RenderPass("✓"))
				return nil
			}
			fmt.Printf("%s %d report(s) waiting to be pushed:\n", ui.RenderWarn("!"), len(unsynced))
			for _, id := range unsynced {
				fmt.Printf("   %s\n", id)
			}
			return nil
		})
	},
}

// watchProgress prints coordinator status changes until the returned
// function is called.
func watchProgress(c scoutsync.Syncer) (stop func()) {
	updates, cancel := c.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for st := range updates {
			switch st.State {
			case scoutsync.StateSyncing:
				if !ui.IsPlain() {
					fmt.Printf("\r   %s", ui.Progress(st.Progress, 30))
				}
			case scoutsync.StateFailed:
				if !ui.IsPlain() {
					fmt.Println()
				}
			case scoutsync.StateCompleted:
				if !ui.IsPlain() {
					fmt.Printf("\r   %s\n", ui.Progress(1, 30))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printPush(res scoutsync.PushResult) {
	if len(res.Pushed)+len(res.Failed) == 0 {
		return
	}
	fmt.Printf("   Pushed: %d\n", len(res.Pushed))
	if len(res.Failed) > 0 {
		fmt.Printf("   %s %d (kept for the next sync)\n", ui.RenderWarn("Failed:"), len(res.Failed))
	}
	if len(res.Skipped) > 0 {
		fmt.Printf("   Skipped: %d\n", len(res.Skipped))
	}
}

func init() {
	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
