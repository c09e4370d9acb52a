package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skillswap-hub/skillswap-core/internal/app"
	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/domain/rate"
	"github.com/skillswap-hub/skillswap-core/internal/infrastructure/catalog"
)

func init() {
	rootCmd.AddCommand(ratesCmd)
	ratesCmd.AddCommand(ratesListCmd)
	ratesCmd.AddCommand(ratesImportCmd)
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Inspect and update the earning-rate table",
}

// ─── rates list ─────────────────────────────────────────────────────────────

var ratesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored earning rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			rates, err := core.Stores.Rates.List(ctx)
			if err != nil {
				return err
			}
			return render(cmd, rates, func(w io.Writer) { writeRates(w, rates) })
		})
	},
}

func writeRates(w io.Writer, rates []rate.SkillEarningRate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tCATEGORY\tBASE\tDEMAND\tDIFFICULTY")
	for _, r := range rates {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\n",
			r.SkillName, r.Category, r.BaseRate, r.DemandMultiplier, r.DifficultyMultiplier)
	}
	_ = tw.Flush()
}

// ─── rates import ───────────────────────────────────────────────────────────

var ratesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upsert earning rates from a YAML file",
	Long: `Upsert earning rates from a YAML file in the same format as the
embedded seed table. The whole file is validated before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rates, err := catalog.LoadRates(args[0])
		if err != nil {
			return err
		}
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			res, err := core.UpsertRates.Handle(ctx, command.UpsertEarningRatesCommand{Rates: rates})
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%d rate(s) upserted\n", res.Upserted)
			})
		})
	},
}
