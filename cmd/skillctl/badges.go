package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skillswap-hub/skillswap-core/internal/app"
	"github.com/skillswap-hub/skillswap-core/internal/domain/badge"
)

func init() {
	rootCmd.AddCommand(badgesCmd)
	badgesCmd.AddCommand(badgesCatalogCmd)
	badgesCmd.AddCommand(badgesProgressCmd)
	badgesCmd.AddCommand(badgesEvaluateCmd)
	badgesCmd.AddCommand(badgesAwardCmd)
}

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "Inspect the badge catalog and award badges",
}

// ─── badges catalog ─────────────────────────────────────────────────────────

var badgesCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the badge catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCore(cmd, func(_ context.Context, core *app.App) error {
			defs := core.Badges.Catalog().All()
			return render(cmd, defs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tRARITY\tPOINTS\tCRITERIA\tTHRESHOLD")
				for _, d := range defs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%g\n",
						d.ID, d.Name, d.Rarity, d.Points, d.Criteria.Type, d.Criteria.Threshold)
				}
				_ = tw.Flush()
			})
		})
	},
}

// ─── badges progress ────────────────────────────────────────────────────────

var badgesProgressCmd = &cobra.Command{
	Use:   "progress USER_ID",
	Short: "Show a user's progress towards every badge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			u, err := core.Stores.Users.GetByID(ctx, args[0])
			if err != nil {
				return err
			}
			progress := badge.ProgressFor(u, core.Badges.Catalog())
			return render(cmd, progress, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BADGE\tCURRENT\tTHRESHOLD\tEARNED")
				for _, p := range progress {
					fmt.Fprintf(tw, "%s\t%g\t%g\t%t\n",
						p.Definition.ID, p.Current, p.Definition.Criteria.Threshold, p.Earned)
				}
				_ = tw.Flush()
			})
		})
	},
}

// ─── badges evaluate ────────────────────────────────────────────────────────

var badgesEvaluateCmd = &cobra.Command{
	Use:   "evaluate USER_ID",
	Short: "Run a full badge evaluation for a user",
	Long: `Evaluate every automatic badge for a user and award the ones newly
earned, including their ledger reward. Running it twice awards nothing new.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			res, err := core.Badges.EvaluateAndAward(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				if !res.HasNewBadges() {
					fmt.Fprintf(w, "%s: no new badges\n", res.UserID)
					return
				}
				for _, b := range res.Awarded {
					fmt.Fprintf(w, "awarded %s (%s)\n", b.ID, b.Name)
				}
				fmt.Fprintf(w, "total reward: %d credits\n", res.TotalReward)
			})
		})
	},
}

// ─── badges award ───────────────────────────────────────────────────────────

var badgesAwardCmd = &cobra.Command{
	Use:   "award USER_ID BADGE_ID",
	Short: "Grant a special (manual) badge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			added, err := core.Badges.AwardSpecial(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return render(cmd, map[string]any{"user_id": args[0], "badge_id": args[1], "awarded": added}, func(w io.Writer) {
				if added {
					fmt.Fprintf(w, "%s now holds %s\n", args[0], args[1])
				} else {
					fmt.Fprintf(w, "%s already holds %s\n", args[0], args[1])
				}
			})
		})
	},
}
