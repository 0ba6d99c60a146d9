package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/fanscout/scout/internal/seed"
	"github.com/fanscout/scout/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:     "seed <file.yaml>",
	GroupID: "advanced",
	Short:   "Load users, clubs, matches, rewards and templates into the remote store",
	Long: `Import a YAML seed file into the remote store. Records are upserted by ID,
so a seed file can be applied repeatedly. Invalid records are reported and
skipped; the rest are still written.

Top-level keys: users, clubs, matches, reward_items, report_templates.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		doc, err := seed.Load(args[0])
		if err != nil {
			fatal(err)
		}

		withApp(func(ctx context.Context, a *app) error {
			res, err := seed.Apply(ctx, a.remote, doc, seed.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			verb := "Wrote"
			if dryRun {
				verb = "Would write"
			}
			fmt.Printf("%s %s %d records to %s\n", ui.RenderPass("✓"), verb, res.Total(), a.remote.Path())
			for _, name := range slices.Sorted(maps.Keys(res.Written)) {
				fmt.Printf("   %s: %d\n", name, res.Written[name])
			}
			if len(res.Errors) > 0 {
				fmt.Printf("%s %d record(s) skipped:\n", ui.RenderWarn("!"), len(res.Errors))
				for _, e := range res.Errors {
					fmt.Printf("   %s\n", e)
				}
			}
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().Bool("dry-run", false, "Validate and count without writing")
	rootCmd.AddCommand(seedCmd)
}
