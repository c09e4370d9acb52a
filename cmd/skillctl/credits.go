package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skillswap-hub/skillswap-core/internal/app"
	"github.com/skillswap-hub/skillswap-core/internal/application/command"
	"github.com/skillswap-hub/skillswap-core/internal/application/query"
	"github.com/skillswap-hub/skillswap-core/internal/domain/credit"
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsStatsCmd)
	creditsCmd.AddCommand(creditsPenalizeCmd)
	rootCmd.AddCommand(streakCmd)
	streakCmd.AddCommand(streakApplyCmd)

	creditsPenalizeCmd.Flags().String("reason", "", "Reason recorded on the penalty (required)")
	creditsPenalizeCmd.Flags().String("key", "", "Idempotency key")
	_ = creditsPenalizeCmd.MarkFlagRequired("reason")
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect balances and post manual ledger entries",
}

// ─── credits balance ────────────────────────────────────────────────────────

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Print a user's balance and journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			txs, err := core.Stores.Ledger.ListByUser(ctx, args[0])
			if err != nil {
				return err
			}
			balance, err := core.Ledger.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			out := map[string]any{"user_id": args[0], "balance": balance, "transactions": txs}
			return render(cmd, out, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tTYPE\tSOURCE\tAMOUNT\tBALANCE")
				for _, tx := range txs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%+d\t%d\n",
						tx.CreatedAt.Format("2006-01-02 15:04"), tx.Type, tx.Source, tx.Signed(), tx.BalanceAfter)
				}
				_ = tw.Flush()
				fmt.Fprintf(w, "balance: %d\n", balance)
			})
		})
	},
}

// ─── credits stats ──────────────────────────────────────────────────────────

var creditsStatsCmd = &cobra.Command{
	Use:   "stats USER_ID",
	Short: "Print earning statistics for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			stats, err := core.EarningStats.Handle(ctx, query.GetEarningStatsQuery{
				UserID:   args[0],
				Location: core.Config.App.Location,
			})
			if err != nil {
				return err
			}
			return render(cmd, stats, func(w io.Writer) { writeStats(w, stats) })
		})
	},
}

func writeStats(w io.Writer, s *credit.EarningStats) {
	fmt.Fprintf(w, "earned %d, spent %d, balance %d over %d transaction(s)\n",
		s.TotalEarned, s.TotalSpent, s.CurrentBalance, s.TransactionCount)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSOURCE\tAMOUNT\tCOUNT")
	for _, src := range s.TopEarningSources {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", src.Source, src.Amount, src.Count)
	}
	fmt.Fprintln(tw, "\nMONTH\tEARNED\tSPENT")
	for _, m := range s.MonthlyEarnings {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", m.Month, m.Earned, m.Spent)
	}
	_ = tw.Flush()
}

// ─── credits penalize ───────────────────────────────────────────────────────

var creditsPenalizeCmd = &cobra.Command{
	Use:   "penalize USER_ID AMOUNT",
	Short: "Debit a user as an administrative penalty",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		reason, _ := cmd.Flags().GetString("reason")
		key, _ := cmd.Flags().GetString("key")

		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			res, err := core.Ledger.Penalize(ctx, command.PenaltyCommand{
				UserID:         args[0],
				Amount:         amount,
				Reason:         reason,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "penalized %s by %d, balance %d\n", args[0], amount, res.Balance)
			})
		})
	},
}

// ─── streak apply ───────────────────────────────────────────────────────────

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Daily streak rewards",
}

var streakApplyCmd = &cobra.Command{
	Use:   "apply USER_ID DAYS",
	Short: "Apply today's streak bonus for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("days: %w", err)
		}
		return withCore(cmd, func(ctx context.Context, core *app.App) error {
			if core.Streaks == nil {
				return errors.New("streak rewards are disabled (FEATURE_REWARDS_STREAKS)")
			}
			res, err := core.Streaks.Handle(ctx, command.ApplyDailyStreakCommand{UserID: args[0], StreakDays: days})
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				switch {
				case res.Skipped:
					fmt.Fprintf(w, "a %d-day streak earns nothing\n", days)
				case res.Replayed:
					fmt.Fprintf(w, "already rewarded today, balance %d\n", res.Balance)
				default:
					fmt.Fprintf(w, "rewarded %d, balance %d\n", res.Reward, res.Balance)
				}
			})
		})
	},
}
