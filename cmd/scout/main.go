// Command scout is the fan-scouting client: it syncs the local cache with
// the remote store, files scouting reports and manages reward points.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/cache"
	"github.com/fanscout/scout/internal/config"
	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/logging"
	"github.com/fanscout/scout/internal/remote"
	"github.com/fanscout/scout/internal/report"
	"github.com/fanscout/scout/internal/reward"
	"github.com/fanscout/scout/internal/schedule"
	scoutsync "github.com/fanscout/scout/internal/sync"
	"github.com/fanscout/scout/internal/ui"
)

var (
	configPath string
	userFlag   string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Fan scouting: reports, points and rewards with offline sync",
	Long: `scout keeps a local cache of your scouting data in step with the remote
store. Reports can be drafted and submitted offline; they are pushed the next
time you sync or while the daemon is running.

Configuration is read from scout.yaml in the working directory or in
~/.fanscout, and from FANSCOUT_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./scout.yaml or ~/.fanscout/scout.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (default: user.id from config, then the cached user)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr or log.file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "scouting", Title: "Scouting:"},
		&cobra.Group{ID: "points", Title: "Points and rewards:"},
		&cobra.Group{ID: "sync", Title: "Synchronization:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

// app holds the opened stores and the services built on them.
type app struct {
	logs   *logging.Sink
	remote *remote.SQLiteStore
	cache  *cache.Store

	ledger   *ledger.Ledger
	reports  *report.Service
	rewards  *reward.Service
	schedule *schedule.Service
	sync     *scoutsync.Coordinator
}

// openApp opens the remote store and the local cache from cfg.
func openApp() (*app, error) {
	logs, err := logging.New(logging.Options{
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Quiet:     !verbose && cfg.Log.File == "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	var store *remote.SQLiteStore
	switch cfg.Remote.Driver {
	case config.DriverLibSQL:
		store, err = remote.OpenLibSQL(cfg.Remote.DSN)
	default:
		store, err = remote.OpenSQLite(cfg.Remote.DSN)
	}
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	local, err := cache.Open(cfg.CacheDir, logs.Logger("cache"))
	if err != nil {
		store.Close()
		logs.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	l := ledger.New(store, ledger.Config{MaxAttempts: cfg.Ledger.MaxAttempts}, logs.Logger("ledger"))

	return &app{
		logs:     logs,
		remote:   store,
		cache:    local,
		ledger:   l,
		reports:  report.New(store, local, l, logs.Logger("report")),
		rewards:  reward.New(store, local, l, logs.Logger("reward")),
		schedule: schedule.New(store, local, logs.Logger("schedule")),
		sync:     scoutsync.New(store, local, logs.Logger("sync")),
	}, nil
}

func (a *app) Close() {
	if err := a.remote.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	_ = a.logs.Close()
}

// logger returns a component logger on the app's log sink.
func (a *app) logger(component string) *log.Logger {
	return a.logs.Logger(component)
}

// userID resolves the acting user: --user, then user.id, then the user
// recorded by the last pull.
func (a *app) userID() (string, error) {
	switch {
	case userFlag != "":
		return userFlag, nil
	case cfg.UserID != "":
		return cfg.UserID, nil
	}
	if id := a.cache.CurrentUserID(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no user selected (pass --user or set user.id)")
}

// withApp opens the app for the duration of fn and maps errors to exit status 1.
func withApp(fn func(ctx context.Context, a *app) error) {
	a, err := openApp()
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = fn(ctx, a)
	cancel()
	a.Close()

	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
