package main

import (
	"context"

	"resultsync-backend/cmd/resultsync/commands"
	"resultsync-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "resultsync")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
