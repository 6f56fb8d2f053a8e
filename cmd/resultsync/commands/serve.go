package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"resultsync-backend/lib/osutil"
	"resultsync-backend/lib/telemetry"

	"resultsync-backend/internal/api"
	"resultsync-backend/internal/pipeline"
)

var serveWithRunner *bool

func init() {
	serveWithRunner = serveCmd.Flags().Bool(
		"runner", false,
		"Allow POST /v1/runs to trigger scrape runs from this process.",
	)
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves persisted course records over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := osutil.SignalContext()
		telemetry.InstrumentPerfStats(ctx)
		cfg := loadConfig()

		store, database := openStore(cfg)
		defer database.Close()

		var runner api.Runner
		if *serveWithRunner {
			runner = func(runCtx context.Context) (pipeline.RunSummary, error) {
				p, cleanup := buildPipeline(runCtx, cfg, store)
				defer cleanup()
				return p.Run(runCtx)
			}
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: api.NewServer(store, runner).Handler(),
		}
		go func() {
			<-ctx.Done()
			slog.Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		slog.Info("listening...", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			osutil.Fatal("failed to serve http", err)
		}
	},
}
