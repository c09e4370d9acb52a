// Command skillctl is the operator CLI for SkillSwap: schema migrations, the
// earning-rate table, badges and manual ledger adjustments. It reads the same
// environment as the API and runs the same handlers against the same store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillswap-hub/skillswap-core/config"
	"github.com/skillswap-hub/skillswap-core/internal/app"
)

var (
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "skillctl",
	Short:         "Operate a SkillSwap deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "skillctl: %v\n", err)
		os.Exit(1)
	}
}

// ─── Shared plumbing ────────────────────────────────────────────────────────

// withCore builds the core, runs fn and waits for queued event handlers
// before closing, so badge rewards triggered by fn are not lost.
func withCore(cmd *cobra.Command, fn func(ctx context.Context, core *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := cmd.Context()
	core, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	err = fn(ctx, core)
	core.Drain()
	return err
}

// render writes v as indented JSON when --json is set, otherwise calls human.
func render(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations (or create MongoDB indexes)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Database.AutoMigrate = false

		stores, err := app.OpenStores(cmd.Context(), cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
		if err != nil {
			return err
		}
		defer stores.Close()

		applied, err := stores.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, map[string]any{"backend": stores.Backend, "applied": applied}, func(w io.Writer) {
			fmt.Fprintf(w, "%s: %d migration(s) applied\n", stores.Backend, applied)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
