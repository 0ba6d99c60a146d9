package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/schedule"
	"github.com/fanscout/scout/internal/ui"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	GroupID: "scouting",
	Short:   "List upcoming matches",
	Long: `List matches, earliest first.

--date takes one of today, tomorrow, this_week, next_week, this_month.
Weeks start on Monday. --when accepts a phrase such as "next saturday" or
"in 3 days" and selects that single day; it overrides --date.

Examples:
  scout schedule --region kanto --date this_week
  scout schedule --when "next saturday"`,
	Run: func(cmd *cobra.Command, args []string) {
		region, _ := cmd.Flags().GetString("region")
		category, _ := cmd.Flags().GetString("category")
		date, _ := cmd.Flags().GetString("date")
		phrase, _ := cmd.Flags().GetString("when")

		f := schedule.Filter{Region: region, Category: category, Phrase: phrase}
		if date != "" {
			d, err := schedule.ParseDateFilter(date)
			if err != nil {
				fatal(err)
			}
			f.Date = d
		}

		withApp(func(ctx context.Context, a *app) error {
			if w, ok, err := a.schedule.Window(f); err != nil {
				return err
			} else if ok {
				fmt.Printf("%s\n", ui.RenderMuted(fmt.Sprintf("%s to %s",
					w.Start.Format(time.DateTime), w.End.Format(time.DateTime))))
			}

			matches, err := a.schedule.Matches(ctx, f)
			if err != nil {
				return err
			}
			printMatches(matches)
			return nil
		})
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show <match-id>",
	Short: "Show one match",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			m, err := a.schedule.Match(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s vs %s\n", ui.RenderAccent(m.ID), m.HomeTeamID, m.AwayTeamID)
			fmt.Printf("When: %s\n", m.Date.Local().Format(time.DateTime))
			fmt.Printf("Venue: %s\n", m.Venue)
			fmt.Printf("Category: %s  Region: %s\n", m.Category, m.Region)
			fmt.Printf("Status: %s\n", m.Status)
			if len(m.InterestedClubs) > 0 {
				fmt.Printf("Scouting requested by: %s\n", strings.Join(m.InterestedClubs, ", "))
			}
			return nil
		})
	},
}

var scheduleClubCmd = &cobra.Command{
	Use:   "club <club-id>",
	Short: "List matches a club wants scouted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			matches, err := a.schedule.InterestedClubMatches(ctx, args[0])
			if err != nil {
				return err
			}
			printMatches(matches)
			return nil
		})
	},
}

func printMatches(matches []model.Match) {
	if len(matches) == 0 {
		fmt.Println("No matches")
		return
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.ID,
			m.Date.Local().Format("Mon 01-02 15:04"),
			m.HomeTeamID + " vs " + m.AwayTeamID,
			m.Venue,
			m.Category,
			string(m.Status),
		})
	}
	fmt.Print(ui.Table([]string{"ID", "WHEN", "FIXTURE", "VENUE", "CATEGORY", "STATUS"}, rows))
}

func init() {
	scheduleCmd.Flags().String("region", "", "Only matches in this region")
	scheduleCmd.Flags().String("category", "", "Only this league category (J1, J2, ...)")
	scheduleCmd.Flags().StringP("date", "d", "", "today, tomorrow, this_week, next_week or this_month")
	scheduleCmd.Flags().StringP("when", "w", "", `Natural-language day, e.g. "next saturday"`)

	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleClubCmd)
	rootCmd.AddCommand(scheduleCmd)
}
