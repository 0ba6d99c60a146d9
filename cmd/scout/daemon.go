package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fanscout/scout/internal/daemon"
	"github.com/fanscout/scout/internal/dashboard"
	"github.com/fanscout/scout/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the cache in sync in the background",
	Long: `Run the background sync daemon.

The daemon:
  1. Runs a full sync on startup and then every daemon.interval
  2. Watches the cached reports for edits made by other tools
  3. Pushes edited reports once they have been quiet for daemon.debounce

With --dashboard, sync and points events are also broadcast over WebSocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = cfg.Dashboard.Port
		}
		verbose = true

		withApp(func(ctx context.Context, a *app) error {
			return runDaemon(ctx, a, withDashboard, port)
		})
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the sync daemon with a real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server and the sync daemon feeding it.

WebSocket messages include:
- sync_status: Sync progress
- sync_complete: A sync finished
- sync_failed: A sync failed
- points_update: A balance changed
- stats: Totals, sent to each client on connect

Example usage:
  scout dashboard                   # Start on dashboard.port (default 8080)
  scout dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = cfg.Dashboard.Port
		}
		verbose = true

		withApp(func(ctx context.Context, a *app) error {
			return runDaemon(ctx, a, true, port)
		})
	},
}

// runDaemon blocks until ctx is cancelled.
func runDaemon(ctx context.Context, a *app, withDashboard bool, port int) error {
	userID, err := a.userID()
	if err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(a.sync, a.cache, userID, &daemon.Config{
		Interval: cfg.Daemon.Interval,
		Debounce: cfg.Daemon.Debounce,
		Logger:   a.logger("daemon"),
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	fmt.Printf("%s Starting sync daemon for %s...\n", ui.RenderAccent("🚀"), userID)
	fmt.Printf("   Cache: %s\n", a.cache.Root())
	fmt.Printf("   Interval: %v\n", cfg.Daemon.Interval)

	g, ctx := errgroup.WithContext(ctx)

	if withDashboard {
		server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: a.logger("dashboard")})
		handler := dashboard.NewHandler(server, a.logger("dashboard"))
		a.ledger.SetNotifier(handler)

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		fmt.Printf("   Dashboard: http://%s\n", server.Addr())
		fmt.Printf("   WebSocket: ws://%s/ws\n", server.Addr())

		g.Go(func() error {
			handler.Run(ctx, a.sync)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return server.Stop()
		})
	}

	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	g.Go(func() error {
		return d.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("Stopped")
	return nil
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (default: dashboard.port)")
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: dashboard.port)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(dashboardCmd)
}
