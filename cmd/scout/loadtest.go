package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/loadtest"
	"github.com/fanscout/scout/internal/logging"
	"github.com/fanscout/scout/internal/remote"
	"github.com/fanscout/scout/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Stress the points ledger with concurrent awards and redemptions",
	Long: `Run concurrent awards and redemptions against the ledger and check that
every balance still equals the floored replay of its history.

By default a throwaway SQLite database is used. --remote runs against the
configured remote store instead, creating users named load-NNN.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadtest.DefaultOptions()
		opts.Users, _ = cmd.Flags().GetInt("users")
		opts.Workers, _ = cmd.Flags().GetInt("workers")
		opts.OpsPerWorker, _ = cmd.Flags().GetInt("ops")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		useRemote, _ := cmd.Flags().GetBool("remote")

		if useRemote {
			withApp(func(ctx context.Context, a *app) error {
				return runLoad(ctx, a.remote, a.ledger, opts)
			})
			return
		}

		dir, err := os.MkdirTemp("", "scout-loadtest-*")
		if err != nil {
			fatal(err)
		}
		defer os.RemoveAll(dir)

		store, err := remote.OpenSQLite(filepath.Join(dir, "load.db"))
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Quiet retries; contention is the point of the run
		quiet, _ := logging.New(logging.Options{Quiet: true})
		l := ledger.New(store, ledger.Config{MaxAttempts: max(cfg.Ledger.MaxAttempts, 20)}, quiet.Logger("ledger"))
		if err := runLoad(ctx, store, l, opts); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
			cancel()
			store.Close()
			os.RemoveAll(dir)
			os.Exit(1)
		}
	},
}

func runLoad(ctx context.Context, store remote.Store, l *ledger.Ledger, opts loadtest.Options) error {
	fmt.Printf("%s Running %d workers x %d ops over %d users...\n",
		ui.RenderAccent("⚡"), opts.Workers, opts.OpsPerWorker, opts.Users)

	stats, err := loadtest.Run(ctx, store, l, opts)
	if err != nil {
		return err
	}
	stats.Print(os.Stdout)

	if len(stats.Mismatches) > 0 {
		return fmt.Errorf("%d user(s) with balance/history mismatch", len(stats.Mismatches))
	}
	fmt.Printf("%s All balances match their history\n", ui.RenderPass("✓"))
	return nil
}

func init() {
	def := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("users", def.Users, "Number of users")
	loadtestCmd.Flags().Int("workers", def.Workers, "Concurrent workers")
	loadtestCmd.Flags().Int("ops", def.OpsPerWorker, "Operations per worker")
	loadtestCmd.Flags().Int64("seed", def.Seed, "Random seed for the operation mix")
	loadtestCmd.Flags().Bool("remote", false, "Use the configured remote store")
	rootCmd.AddCommand(loadtestCmd)
}
