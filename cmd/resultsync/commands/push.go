package commands

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"resultsync-backend/lib/osutil"

	"resultsync-backend/internal/ingest"
)

func init() {
	rootCmd.AddCommand(pushCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push [student...]",
	Short: "Pushes persisted records to the configured ingest endpoint.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		if cfg.Ingest.BaseURL == "" {
			osutil.Fatal("ingest is not configured", errors.New("ingest.base_url is empty"))
		}

		store, database := openStore(cfg)
		defer database.Close()

		students := args
		if len(students) == 0 {
			var err error
			students, err = store.Students(ctx)
			if err != nil {
				osutil.Fatal("failed to list students", err)
			}
		}

		client := ingest.NewClient(cfg.Ingest)
		for _, student := range students {
			summary, err := client.PushStudent(ctx, store, student)
			if err != nil {
				osutil.Fatal("push failed", err)
			}
			slog.Info("pushed student records",
				"student", student,
				"pushed", summary.Pushed,
				"skipped", summary.Skipped,
				"errors", summary.Errors)
		}
	},
}
