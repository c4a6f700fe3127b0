package main

import (
	"context"

	"procheck-sweep/cmd/sweep-cli/commands"
	"procheck-sweep/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	telemetry.SetupFromEnv(context.Background(), "sweep-cli")
	commands.ExecuteContext(context.Background())
}
