package main

import (
	"log/slog"

	"github.com/BioHazard786/meshcall/internal/cli"
	"github.com/BioHazard786/meshcall/internal/logging"
)

func main() {
	// The call view owns the terminal; only errors reach stderr by default.
	logging.Init(slog.LevelError)
	cli.Execute()
}
