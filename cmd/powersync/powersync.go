package main

import (
	"log/slog"
	"os"

	"github.com/powersync/powersync/internal/cmd"
)

var (
	// overridden during build
	version = "change-me"
)

func main() {
	cmd.RootCmd.Version = version
	if err := cmd.RootCmd.Execute(); err != nil {
		slog.Error("failed to start", "err", err)
		os.Exit(1)
	}
}
