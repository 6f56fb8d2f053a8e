package commands

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"resultsync-backend/lib/osutil"

	"resultsync-backend/internal/pipeline"
	"resultsync-backend/internal/portal"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one scrape: log in, wait for results to load, extract and persist.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		// Cheap reachability probe before paying for a browser boot.
		if err := portal.Preflight(ctx, cfg.Portal.LoginURL, 10*time.Second); err != nil {
			osutil.Fatal("portal is unreachable", err)
		}

		store, database := openStore(cfg)
		defer database.Close()

		p, cleanup := buildPipeline(ctx, cfg, store)
		defer cleanup()

		summary, err := p.Run(ctx)
		if err != nil {
			notifier := pipeline.NewNotifier(cfg.Email)
			if notifier.Enabled() {
				if nerr := notifier.NotifyFailure(ctx, summary, err); nerr != nil {
					slog.Error("failed to notify operators", "err", nerr)
				}
			}
			osutil.Fatal("scrape run failed", err)
		}

		slog.Info("scrape run succeeded",
			"run_id", summary.RunID,
			"stabilized", summary.Stabilized,
			"extracted", summary.Extracted,
			"saved", summary.Persist.Saved,
			"skipped", summary.Persist.Skipped,
			"duration", summary.Duration)
	},
}
