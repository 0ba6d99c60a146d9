package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/model"
	"github.com/fanscout/scout/internal/report"
	"github.com/fanscout/scout/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "scouting",
	Short:   "Write, submit and review scouting reports",
}

var reportNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a draft report (works offline)",
	Long: `Create a draft scouting report in the local cache. The draft is pushed
on the next sync.

Ratings are given per evaluation item of the template:
  scout report new --club c1 --player p9 --match m3 --template t1 \
      --rate passing=4 --rate pace=5 --comment "Strong left foot"`,
	Run: func(cmd *cobra.Command, args []string) {
		club, _ := cmd.Flags().GetString("club")
		player, _ := cmd.Flags().GetString("player")
		match, _ := cmd.Flags().GetString("match")
		template, _ := cmd.Flags().GetString("template")
		comment, _ := cmd.Flags().GetString("comment")
		rates, _ := cmd.Flags().GetStringArray("rate")
		media, _ := cmd.Flags().GetStringArray("media")

		evals, err := parseRatings(rates)
		if err != nil {
			fatal(err)
		}

		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			r, err := a.reports.CreateDraft(ctx, report.Draft{
				UserID:         userID,
				ClubID:         club,
				PlayerID:       player,
				MatchID:        match,
				TemplateID:     template,
				Evaluations:    evals,
				OverallComment: comment,
				MediaURLs:      media,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Created draft %s\n", ui.RenderPass("✓"), r.ID)
			return nil
		})
	},
}

var reportEditCmd = &cobra.Command{
	Use:   "edit <report-id>",
	Short: "Change ratings or the comment of a draft",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rates, _ := cmd.Flags().GetStringArray("rate")
		evals, err := parseRatings(rates)
		if err != nil {
			fatal(err)
		}
		commentSet := cmd.Flags().Changed("comment")
		comment, _ := cmd.Flags().GetString("comment")

		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			r, err := a.reports.UpdateDraft(ctx, userID, args[0], func(r *model.ScoutingReport) {
				r.Evaluations = mergeRatings(r.Evaluations, evals)
				if commentSet {
					r.OverallComment = model.StringPtr(comment)
				}
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Updated draft %s\n", ui.RenderPass("✓"), r.ID)
			return nil
		})
	},
}

var reportSubmitCmd = &cobra.Command{
	Use:   "submit <report-id>",
	Short: "Submit a draft for club review; it can no longer be edited",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			userID, err := a.userID()
			if err != nil {
				return err
			}
			if _, err := a.reports.Submit(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Submitted %s\n", ui.RenderPass("✓"), args[0])
			if slices.Contains(a.cache.UnsyncedIDs(), args[0]) {
				fmt.Printf("   %s\n", ui.RenderMuted("Offline: it will be uploaded on the next sync"))
			}
			return nil
		})
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your reports, or a club's with --club",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		club, _ := cmd.Flags().GetString("club")

		var filter *model.ReportStatus
		if status != "" {
			s := model.ReportStatus(status)
			if !s.IsValid() {
				fatal(fmt.Errorf("invalid status %q (draft, submitted, reviewed)", status))
			}
			filter = &s
		}

		withApp(func(ctx context.Context, a *app) error {
			var (
				reports []model.ScoutingReport
				err     error
			)
			if club != "" {
				reports, err = a.reports.ListByClub(ctx, club)
			} else {
				userID, uerr := a.userID()
				if uerr != nil {
					return uerr
				}
				reports, err = a.reports.ListByUser(ctx, userID, filter)
			}
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No reports")
				return nil
			}

			unsynced := a.cache.UnsyncedIDs()
			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				id := r.ID
				if slices.Contains(unsynced, r.ID) {
					id += " *"
				}
				rows = append(rows, []string{
					id,
					r.UpdatedAt.Local().Format(time.DateTime),
					r.ClubID,
					r.PlayerID,
					renderStatus(r.Status),
					strconv.Itoa(r.Likes),
				})
			}
			fmt.Print(ui.Table([]string{"ID", "UPDATED", "CLUB", "PLAYER", "STATUS", "LIKES"}, rows))
			return nil
		})
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			r, err := a.reports.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", ui.RenderAccent(r.ID), renderStatus(r.Status))
			fmt.Printf("Club: %s  Player: %s  Match: %s\n", r.ClubID, r.PlayerID, r.MatchID)
			for _, e := range r.Evaluations {
				line := fmt.Sprintf("   %-16s %s", e.ItemID, strings.Repeat("★", e.Rating))
				if e.Comment != nil {
					line += "  " + ui.RenderMuted(*e.Comment)
				}
				fmt.Println(line)
			}
			if r.OverallComment != nil {
				fmt.Printf("Comment: %s\n", *r.OverallComment)
			}
			fmt.Printf("Likes: %d\n", r.Likes)
			if r.Feedback != nil {
				fmt.Printf("Feedback: %s (+%d points)\n", *r.Feedback, r.PointsAwarded)
			}
			return nil
		})
	},
}

var reportLikeCmd = &cobra.Command{
	Use:   "like <report-id>",
	Short: "Like a report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			likes, err := a.reports.Like(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s now has %d likes\n", ui.RenderPass("♥"), args[0], likes)
			return nil
		})
	},
}

var reportFeedbackCmd = &cobra.Command{
	Use:   "feedback <report-id> <text>",
	Short: "Review a submitted report and award points to its author",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		points, _ := cmd.Flags().GetInt("points")

		withApp(func(ctx context.Context, a *app) error {
			r, err := a.reports.AddFeedback(ctx, args[0], args[1], points)
			if err != nil {
				return err
			}
			fmt.Printf("%s Reviewed %s, awarded %d points to %s\n", ui.RenderPass("✓"), r.ID, r.PointsAwarded, r.UserID)
			return nil
		})
	},
}

var reportTemplatesCmd = &cobra.Command{
	Use:   "templates <club-id>",
	Short: "List a club's active report templates",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) error {
			ts, err := a.reports.Templates(ctx, args[0])
			if err != nil {
				return err
			}
			if len(ts) == 0 {
				fmt.Println("No templates")
				return nil
			}
			for _, t := range ts {
				fmt.Printf("%s  %s\n", ui.RenderAccent(t.ID), t.Name)
				for _, item := range t.EvaluationItems {
					fmt.Printf("   %-16s %s (1-%d)\n", item.ID, item.Name, item.MaxRating)
				}
			}
			return nil
		})
	},
}

// parseRatings turns item=rating[:comment] pairs into evaluations.
func parseRatings(rates []string) ([]model.Evaluation, error) {
	evals := make([]model.Evaluation, 0, len(rates))
	for _, r := range rates {
		item, rest, ok := strings.Cut(r, "=")
		if !ok || item == "" {
			return nil, fmt.Errorf("invalid rating %q (want item=rating)", r)
		}
		value, comment, hasComment := strings.Cut(rest, ":")
		rating, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid rating %q: %w", r, err)
		}
		e := model.Evaluation{ItemID: item, Rating: rating}
		if hasComment {
			e.Comment = model.StringPtr(comment)
		}
		evals = append(evals, e)
	}
	return evals, nil
}

// mergeRatings replaces ratings for items present in updates and appends the rest.
func mergeRatings(current, updates []model.Evaluation) []model.Evaluation {
	out := append([]model.Evaluation(nil), current...)
	for _, u := range updates {
		replaced := false
		for i := range out {
			if out[i].ItemID == u.ItemID {
				out[i].Rating = u.Rating
				if u.Comment != nil {
					out[i].Comment = u.Comment
				}
				replaced = true
				break
			}
		}
		if !replaced {
			u.ID = model.NewID()
			out = append(out, u)
		}
	}
	return out
}

func renderStatus(s model.ReportStatus) string {
	switch s {
	case model.ReportDraft:
		return ui.RenderMuted(string(s))
	case model.ReportSubmitted:
		return ui.RenderAccent(string(s))
	case model.ReportReviewed:
		return ui.RenderPass(string(s))
	default:
		return string(s)
	}
}

func init() {
	for _, c := range []*cobra.Command{reportNewCmd, reportEditCmd} {
		c.Flags().StringArrayP("rate", "r", nil, "Rating as item=value or item=value:comment (repeatable)")
		c.Flags().String("comment", "", "Overall comment")
	}
	reportNewCmd.Flags().String("club", "", "Club the report is for")
	reportNewCmd.Flags().String("player", "", "Player being scouted")
	reportNewCmd.Flags().String("match", "", "Match the player was seen in")
	reportNewCmd.Flags().String("template", "", "Report template ID")
	reportNewCmd.Flags().StringArray("media", nil, "Media URL (repeatable)")
	_ = reportNewCmd.MarkFlagRequired("club")
	_ = reportNewCmd.MarkFlagRequired("template")

	reportListCmd.Flags().StringP("status", "s", "", "Only reports in this status (draft, submitted, reviewed)")
	reportListCmd.Flags().String("club", "", "List reports filed for this club instead")

	reportFeedbackCmd.Flags().IntP("points", "p", 0, "Points to award the author")

	reportCmd.AddCommand(reportNewCmd)
	reportCmd.AddCommand(reportEditCmd)
	reportCmd.AddCommand(reportSubmitCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportLikeCmd)
	reportCmd.AddCommand(reportFeedbackCmd)
	reportCmd.AddCommand(reportTemplatesCmd)
	rootCmd.AddCommand(reportCmd)
}
