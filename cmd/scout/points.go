package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/analytics"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/remote"
	"github.com/fanscout/scout/internal/ui"
)

var pointsCmd = &cobra.Command{
	Use:     "points",
	GroupID: "points",
	Short:   "Show your point balance",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			balance, err := a.ledger.Balance(ctx, userID)
			if remote.IsRetryable(err) {
				user, ok, cerr := a.cache.Users.Get(userID)
				if cerr != nil || !ok {
					return err
				}
				fmt.Printf("%s %d points %s\n", ui.RenderAccent("★"), user.Points, ui.RenderMuted("(cached, offline)"))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %d points\n", ui.RenderAccent("★"), balance)
			return nil
		})
	},
}

var pointsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List point changes, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			history, err := a.ledger.History(ctx, userID)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Println("No point history")
				return nil
			}
			if limit > 0 && len(history) > limit {
				history = history[:limit]
			}

			rows := make([][]string, 0, len(history))
			for _, h := range history {
				amount := strconv.Itoa(h.Amount)
				if h.Amount > 0 {
					amount = ui.RenderPass("+" + amount)
				} else {
					amount = ui.RenderWarn(amount)
				}
				rows = append(rows, []string{h.CreatedAt.Local().Format(time.DateTime), amount, string(h.Type), h.Description})
			}
			fmt.Print(ui.Table([]string{"WHEN", "AMOUNT", "TYPE", "DESCRIPTION"}, rows))
			return nil
		})
	},
}

var pointsAwardCmd = &cobra.Command{
	Use:   "award <user-id> <amount>",
	Short: "Award points to a user",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		desc, _ := cmd.Flags().GetString("description")
		amount, err := strconv.Atoi(args[1])
		if err != nil {
			fatal(fmt.Errorf("invalid amount %q", args[1]))
		}

		withApp(func(ctx context.Context, a *app) error {
			balance, err := a.ledger.Award(ctx, args[0], amount, model.PointsEarned, desc, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s Awarded %d points to %s (balance %d)\n", ui.RenderPass("✓"), amount, args[0], balance)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "points",
	Short:   "Summarize your cached reports and point flow",
	Long: `Summarize scouting activity from the local cache. Works offline.

The balance check replays the cached point history oldest first, flooring at
zero, and compares the result with the cached balance. Run 'scout sync' first
for an up-to-date view.`,
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			s, err := analytics.Summarize(a.cache, userID)
			if err != nil {
				return err
			}

			fmt.Printf("Reports: %d (draft %d, submitted %d, reviewed %d)\n", s.TotalReports,
				s.ReportsByStatus[model.ReportDraft], s.ReportsByStatus[model.ReportSubmitted], s.ReportsByStatus[model.ReportReviewed])
			if s.Unsynced > 0 {
				fmt.Printf("   %s %d not yet pushed\n", ui.RenderWarn("!"), s.Unsynced)
			}
			fmt.Printf("Likes: %d\n", s.TotalLikes)
			fmt.Printf("Points from feedback: %d\n", s.PointsAwarded)
			if s.LastReportAt != nil {
				fmt.Printf("Last report: %s\n", s.LastReportAt.Local().Format(time.DateTime))
			}
			fmt.Printf("Earned %d, redeemed %d, expired %d\n", s.Earned, s.Redeemed, s.Expired)

			if s.Balanced {
				fmt.Printf("%s Balance %d matches history\n", ui.RenderPass("✓"), s.Balance)
			} else {
				fmt.Printf("%s Balance %d, history replays to %d\n", ui.RenderWarn("!"), s.Balance, s.Replayed)
			}
			return nil
		})
	},
}

func init() {
	pointsHistoryCmd.Flags().IntP("limit", "n", 20, "Maximum entries to show (0 for all)")
	pointsAwardCmd.Flags().StringP("description", "d", "Manual award", "History description")

	pointsCmd.AddCommand(pointsHistoryCmd)
	pointsCmd.AddCommand(pointsAwardCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(statsCmd)
}
