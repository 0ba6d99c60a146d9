package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/ledger"
	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/ui"
)

var rewardCmd = &cobra.Command{
	Use:     "reward",
	GroupID: "points",
	Short:   "Browse and redeem rewards",
}

var rewardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available rewards, cheapest first",
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")

		var filter *model.RewardCategory
		if category != "" {
			c := model.RewardCategory(category)
			if !c.IsValid() {
				fatal(fmt.Errorf("invalid category %q (ticket, merchandise, experience, discount)", category))
			}
			filter = &c
		}

		withApp(func(ctx context.Context, a *app) error {
			items, err := a.rewards.Catalog(ctx, filter)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No rewards available")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{it.ID, it.Name, string(it.Category), strconv.Itoa(it.PointCost)})
			}
			fmt.Print(ui.Table([]string{"ID", "NAME", "CATEGORY", "COST"}, rows))
			return nil
		})
	},
}

var rewardRedeemCmd = &cobra.Command{
	Use:   "redeem <reward-id>",
	Short: "Spend points on a reward",
	Long: `Redeem a reward. The point cost is deducted and a redemption code is
issued in one transaction; nothing changes if the balance is too low.

You are asked to confirm unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		rewardID := args[0]

		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}

			ok, err := ui.Confirm(fmt.Sprintf("Redeem %s?", rewardID), "Points are deducted immediately.", yes)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Cancelled")
				return nil
			}

			r, err := a.rewards.Redeem(ctx, userID, rewardID)
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return fmt.Errorf("not enough points: %w", err)
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s Redeemed %s for %d points\n", ui.RenderPass("✓"), rewardID, r.PointsUsed)
			fmt.Printf("   Code: %s\n", ui.RenderAccent(model.Deref(r.RedemptionCode)))
			return nil
		})
	},
}

var rewardHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List your redemptions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			rs, err := a.rewards.Redemptions(ctx, userID)
			if err != nil {
				return err
			}
			if len(rs) == 0 {
				fmt.Println("No redemptions")
				return nil
			}
			rows := make([][]string, 0, len(rs))
			for _, r := range rs {
				rows = append(rows, []string{
					r.CreatedAt.Local().Format(time.DateTime),
					r.RewardID,
					strconv.Itoa(r.PointsUsed),
					string(r.Status),
					model.Deref(r.RedemptionCode),
				})
			}
			fmt.Print(ui.Table([]string{"WHEN", "REWARD", "POINTS", "STATUS", "CODE"}, rows))
			return nil
		})
	},
}

func init() {
	rewardListCmd.Flags().StringP("category", "c", "", "Only this category (ticket, merchandise, experience, discount)")
	rewardRedeemCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	rewardCmd.AddCommand(rewardListCmd)
	rewardCmd.AddCommand(rewardRedeemCmd)
	rewardCmd.AddCommand(rewardHistoryCmd)
	rootCmd.AddCommand(rewardCmd)
}
